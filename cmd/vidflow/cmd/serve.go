package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vidflow/vidflow/internal/config"
	"github.com/vidflow/vidflow/internal/effects"
	"github.com/vidflow/vidflow/internal/events"
	"github.com/vidflow/vidflow/internal/ffmpeg"
	internalhttp "github.com/vidflow/vidflow/internal/http"
	"github.com/vidflow/vidflow/internal/http/handlers"
	"github.com/vidflow/vidflow/internal/ingest"
	"github.com/vidflow/vidflow/internal/metrics"
	"github.com/vidflow/vidflow/internal/scheduler"
	"github.com/vidflow/vidflow/internal/sink"
	"github.com/vidflow/vidflow/internal/supervisor"
	"github.com/vidflow/vidflow/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vidflow server",
	Long: `Start the vidflow HTTP server and stream supervisor.

The server provides:
- REST API for registering, inspecting, and removing streams
- MJPEG live view per stream at /api/v1/streams/{id}/live
- Prometheus metrics at /metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("output-dir", "output", "Directory for segmented outputs")
	serveCmd.Flags().Int("max-workers", 4, "Maximum concurrently processed streams")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("storage.output_dir", serveCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("processing.max_workers", serveCmd.Flags().Lookup("max-workers"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	// The global viper carries the bound serve flags, so they reach the
	// unmarshalled config.
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ffmpegPath, err := ffmpeg.FindBinary(cfg.FFmpeg.BinaryPath)
	if err != nil {
		return fmt.Errorf("locating ffmpeg: %w", err)
	}
	logger.Info("using ffmpeg binary", slog.String("path", ffmpegPath))

	// Event bus feeds the Prometheus collectors.
	bus := events.New()
	unobserve := metrics.Observe(bus)
	defer unobserve()

	geometry := ingest.Geometry{
		Width:  cfg.Processing.FrameWidth,
		Height: cfg.Processing.FrameHeight,
		FPS:    cfg.Processing.FrameRate,
	}

	sourceFactory := func(desc ingest.Descriptor) ingest.Source {
		switch desc.Kind {
		case "images":
			return ingest.NewCaptureSource(&ingest.ImageSequenceBackend{}, desc, logger)
		default:
			backend := &ingest.FFmpegDecodeBackend{
				Binary:    ffmpegPath,
				Geometry:  geometry,
				StopGrace: cfg.Streaming.StopGrace,
			}
			return ingest.NewPipelineSource(backend, desc, logger)
		}
	}

	var provider effects.Provider
	if cfg.Processing.GPUEnabled {
		provider = effects.NewSharpenProvider(cfg.Processing.Effects.Enhancement.Model)
		logger.Info("enhancement provider enabled",
			slog.String("model", cfg.Processing.Effects.Enhancement.Model))
	}
	chain := effects.NewChain(cfg.Processing.Effects, provider, logger)

	broker := sink.NewFrameBroker()
	segmenter := func(segmentSeconds int) sink.SegmenterConfig {
		return sink.SegmenterConfig{
			FFmpegPath:     ffmpegPath,
			OutputRoot:     cfg.Storage.OutputDir,
			Bitrate:        cfg.Streaming.Bitrate,
			SegmentSeconds: segmentSeconds,
			FPS:            cfg.Processing.FrameRate,
			StopGrace:      cfg.Streaming.StopGrace,
		}
	}
	sinkFactory := &sink.DefaultFactory{
		Transport: broker,
		HLS:       segmenter(cfg.Streaming.HLSSegmentDuration),
		DASH:      segmenter(cfg.Streaming.DASHSegmentDuration),
		Logger:    logger,
	}

	sup := supervisor.New(supervisor.Options{
		MaxWorkers:    cfg.Processing.MaxWorkers,
		CloseGrace:    cfg.Streaming.StopGrace,
		SourceFactory: sourceFactory,
		SinkFactory:   sinkFactory,
		Chain:         chain,
		Bus:           bus,
		Logger:        logger,
	})

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	handlers.NewHealthHandler(version.Version, sup).Register(server.API())
	handlers.NewStreamsHandler(sup, cfg.Processing.OutputKinds()).Register(server.API())
	handlers.NewLiveHandler(broker, sup, logger).RegisterMJPEG(server.Router())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Cleanup.Enabled {
		cleaner := scheduler.NewCleaner(sup, scheduler.CleanerConfig{
			OutputRoot:   cfg.Storage.OutputDir,
			CronSchedule: cfg.Cleanup.Cron,
		}).WithLogger(logger)
		if err := cleaner.Start(ctx); err != nil {
			return fmt.Errorf("starting output cleaner: %w", err)
		}
		defer cleaner.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting vidflow server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
	)

	serveErr := server.ListenAndServe(ctx)

	// Drain every stream before exiting so in-flight ffmpeg processes are
	// torn down cleanly.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Error("supervisor shutdown incomplete", slog.Any("error", err))
	}

	return serveErr
}
