// Package handlers provides HTTP API handlers for vidflow.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/vidflow/vidflow/internal/ingest"
	"github.com/vidflow/vidflow/internal/sink"
	"github.com/vidflow/vidflow/internal/supervisor"
)

// StreamsHandler exposes stream lifecycle operations over the API.
type StreamsHandler struct {
	sup            *supervisor.Supervisor
	defaultOutputs []sink.Kind
}

// NewStreamsHandler creates a streams handler. defaultOutputs is used when a
// registration does not name its own outputs.
func NewStreamsHandler(sup *supervisor.Supervisor, defaultOutputs []sink.Kind) *StreamsHandler {
	return &StreamsHandler{sup: sup, defaultOutputs: defaultOutputs}
}

// StreamInput describes a stream's ingest source in API requests.
type StreamInput struct {
	Kind string `json:"kind" example:"rtsp" doc:"Source kind (rtsp, rtmp, file, images)"`
	URL  string `json:"url" example:"rtsp://10.0.0.5/ch1" doc:"Source URL or path"`
}

// CreateStreamInput is the request to register a stream.
type CreateStreamInput struct {
	Body struct {
		ID      string      `json:"id" minLength:"1" example:"cam1" doc:"Unique stream identifier"`
		Input   StreamInput `json:"input" doc:"Where frames come from"`
		Outputs []string    `json:"outputs,omitempty" example:"[\"lowlatency\",\"hls\"]" doc:"Output formats; defaults to the configured set"`
	}
}

// CreateStreamOutput is the response to a stream registration.
type CreateStreamOutput struct {
	Status int
	Body   struct {
		ID      string   `json:"id"`
		State   string   `json:"state"`
		Outputs []string `json:"outputs"`
	}
}

// ListStreamsOutput lists stats for every registered stream.
type ListStreamsOutput struct {
	Body struct {
		Streams []supervisor.Stats `json:"streams"`
		Count   int                `json:"count"`
	}
}

// StreamStatsInput identifies one stream.
type StreamStatsInput struct {
	ID string `path:"id" example:"cam1" doc:"Stream identifier"`
}

// StreamStatsOutput carries one stream's stats.
type StreamStatsOutput struct {
	Body supervisor.Stats
}

// RemoveStreamInput identifies the stream to remove.
type RemoveStreamInput struct {
	ID string `path:"id" example:"cam1" doc:"Stream identifier"`
}

// RemoveStreamOutput is the empty response to a removal.
type RemoveStreamOutput struct {
	Status int
}

// Register registers the stream routes with the API.
func (h *StreamsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "createStream",
		Method:        "POST",
		Path:          "/api/v1/streams",
		Summary:       "Register a stream",
		Description:   "Registers a stream and starts ingesting it asynchronously. Re-registering an existing id tears the old stream down and replaces it.",
		Tags:          []string{"Streams"},
		DefaultStatus: 201,
	}, h.CreateStream)

	huma.Register(api, huma.Operation{
		OperationID: "listStreams",
		Method:      "GET",
		Path:        "/api/v1/streams",
		Summary:     "List streams",
		Tags:        []string{"Streams"},
	}, h.ListStreams)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamStats",
		Method:      "GET",
		Path:        "/api/v1/streams/{id}/stats",
		Summary:     "Stream statistics",
		Tags:        []string{"Streams"},
	}, h.GetStreamStats)

	huma.Register(api, huma.Operation{
		OperationID:   "removeStream",
		Method:        "DELETE",
		Path:          "/api/v1/streams/{id}",
		Summary:       "Remove a stream",
		Description:   "Drains the stream and tears down its sinks; removing an unknown id succeeds",
		Tags:          []string{"Streams"},
		DefaultStatus: 204,
	}, h.RemoveStream)
}

// CreateStream registers a new stream with the supervisor.
func (h *StreamsHandler) CreateStream(_ context.Context, input *CreateStreamInput) (*CreateStreamOutput, error) {
	outputs := h.defaultOutputs
	if len(input.Body.Outputs) > 0 {
		outputs = make([]sink.Kind, 0, len(input.Body.Outputs))
		for _, format := range input.Body.Outputs {
			kind, err := sink.ParseKind(format)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity(err.Error())
			}
			outputs = append(outputs, kind)
		}
	}

	desc := ingest.Descriptor{Kind: input.Body.Input.Kind, URL: input.Body.Input.URL}
	if err := h.sup.AddStream(input.Body.ID, desc, outputs); err != nil {
		if errors.Is(err, supervisor.ErrShuttingDown) {
			return nil, huma.Error503ServiceUnavailable("service is shutting down")
		}
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	out := &CreateStreamOutput{Status: 201}
	out.Body.ID = input.Body.ID
	out.Body.State = "starting"
	for _, k := range outputs {
		out.Body.Outputs = append(out.Body.Outputs, string(k))
	}
	return out, nil
}

// ListStreams returns stats for every registered stream.
func (h *StreamsHandler) ListStreams(_ context.Context, _ *struct{}) (*ListStreamsOutput, error) {
	out := &ListStreamsOutput{}
	out.Body.Streams = h.sup.List()
	out.Body.Count = len(out.Body.Streams)
	return out, nil
}

// GetStreamStats returns one stream's stats or a 404.
func (h *StreamsHandler) GetStreamStats(_ context.Context, input *StreamStatsInput) (*StreamStatsOutput, error) {
	stats, err := h.sup.GetStats(input.ID)
	if err != nil {
		if errors.Is(err, supervisor.ErrStreamNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("stream %s not found", input.ID))
		}
		return nil, err
	}
	return &StreamStatsOutput{Body: stats}, nil
}

// RemoveStream drains and erases a stream. Unknown ids succeed.
func (h *StreamsHandler) RemoveStream(ctx context.Context, input *RemoveStreamInput) (*RemoveStreamOutput, error) {
	if err := h.sup.RemoveStream(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}
	return &RemoveStreamOutput{Status: 204}, nil
}
