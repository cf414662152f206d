// Package scheduler prunes output directories left behind by removed streams.
// Segmenter sinks write HLS and DASH artifacts under a per-stream directory;
// once the stream is gone nothing deletes them, so a cron-driven sweep does.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Registry reports which stream ids are currently live. The supervisor
// satisfies this.
type Registry interface {
	Has(id string) bool
}

// CleanerConfig holds configuration for the output sweeper.
type CleanerConfig struct {
	// OutputRoot is the directory holding per-stream output trees.
	OutputRoot string

	// CronSchedule is a 6-field (seconds-resolution) cron expression.
	// Default: top of every hour.
	CronSchedule string

	// RetentionGrace keeps an orphaned directory around until it has been
	// untouched for this long. Protects a stream that was just removed and
	// may still be re-added. Default: 10 minutes.
	RetentionGrace time.Duration

	// SyncInterval is how often the schedule is checked. Default: 1 minute.
	SyncInterval time.Duration
}

// DefaultCleanerConfig returns the default sweeper configuration.
func DefaultCleanerConfig() CleanerConfig {
	return CleanerConfig{
		CronSchedule:   "0 0 * * * *",
		RetentionGrace: 10 * time.Minute,
		SyncInterval:   time.Minute,
	}
}

// Cleaner periodically removes output directories whose stream is no longer
// registered.
type Cleaner struct {
	mu sync.RWMutex

	registry Registry
	logger   *slog.Logger

	// cron parser for validating/parsing the schedule
	parser cron.Parser

	// Running state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	outputRoot     string
	cronSchedule   string
	retentionGrace time.Duration
	syncInterval   time.Duration
}

// NewCleaner creates a new output sweeper.
func NewCleaner(registry Registry, config CleanerConfig) *Cleaner {
	defaults := DefaultCleanerConfig()
	if config.CronSchedule == "" {
		config.CronSchedule = defaults.CronSchedule
	}
	if config.RetentionGrace <= 0 {
		config.RetentionGrace = defaults.RetentionGrace
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = defaults.SyncInterval
	}
	return &Cleaner{
		registry:       registry,
		logger:         slog.Default(),
		parser:         cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		outputRoot:     config.OutputRoot,
		cronSchedule:   config.CronSchedule,
		retentionGrace: config.RetentionGrace,
		syncInterval:   config.SyncInterval,
	}
}

// WithLogger sets a custom logger.
func (c *Cleaner) WithLogger(logger *slog.Logger) *Cleaner {
	c.logger = logger
	return c
}

// ValidateCron validates a cron expression against the sweeper's parser.
func (c *Cleaner) ValidateCron(expr string) error {
	_, err := c.parser.Parse(expr)
	return err
}

// Start begins the sweeper's background loop.
func (c *Cleaner) Start(ctx context.Context) error {
	if err := c.ValidateCron(c.cronSchedule); err != nil {
		return fmt.Errorf("invalid cleanup cron expression %q: %w", c.cronSchedule, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx != nil {
		return fmt.Errorf("cleaner already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.loop()

	c.logger.Info("output cleaner started",
		slog.String("root", c.outputRoot),
		slog.String("cron", c.cronSchedule),
		slog.Duration("retention_grace", c.retentionGrace))

	return nil
}

// Stop stops the sweeper.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	c.ctx = nil
	c.cancel = nil
	c.mu.Unlock()

	c.logger.Info("output cleaner stopped")
}

func (c *Cleaner) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.isDue(c.cronSchedule) {
				c.Sweep()
			}
		}
	}
}

// isDue checks if the cron schedule fired within the current sync window.
func (c *Cleaner) isDue(cronExpr string) bool {
	schedule, err := c.parser.Parse(cronExpr)
	if err != nil {
		c.logger.Warn("invalid cron expression", slog.String("cron", cronExpr), slog.Any("error", err))
		return false
	}

	now := time.Now()
	next := schedule.Next(now.Add(-c.syncInterval))
	return !next.After(now)
}

// Sweep removes every orphaned per-stream output directory. A directory is
// orphaned when no registered stream claims its name and it has not been
// modified within the retention grace. Returns the names of removed
// directories.
func (c *Cleaner) Sweep() []string {
	entries, err := os.ReadDir(c.outputRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Error("reading output root", slog.String("root", c.outputRoot), slog.Any("error", err))
		}
		return nil
	}

	var removed []string
	cutoff := time.Now().Add(-c.retentionGrace)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if c.registry != nil && c.registry.Has(id) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(c.outputRoot, id)
		if err := os.RemoveAll(dir); err != nil {
			c.logger.Error("removing orphaned output directory",
				slog.String("dir", dir),
				slog.Any("error", err))
			continue
		}

		c.logger.Info("removed orphaned output directory", slog.String("stream_id", id))
		removed = append(removed, id)
	}

	return removed
}
