package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_GetLivez(t *testing.T) {
	handler := NewHealthHandler("1.0.0", nil)

	output, err := handler.GetLivez(context.Background(), &struct{}{})
	require.NoError(t, err)
	require.NotNil(t, output)
	assert.Equal(t, "ok", output.Body.Status)
}

func TestHealthHandler_GetHealth(t *testing.T) {
	handler := NewHealthHandler("1.0.0", newTestSupervisor(t))

	output, err := handler.GetHealth(context.Background(), &struct{}{})
	require.NoError(t, err)
	require.NotNil(t, output)

	assert.Equal(t, "healthy", output.Body.Status)
	assert.Equal(t, "1.0.0", output.Body.Version)
	assert.NotEmpty(t, output.Body.Uptime)
	assert.NotEmpty(t, output.Body.Timestamp)
	assert.Equal(t, 0, output.Body.ActiveStreams)
	assert.NotZero(t, output.Body.CPU.Cores)
}

func TestHealthHandler_GetHealthNilSupervisor(t *testing.T) {
	handler := NewHealthHandler("dev", nil)

	output, err := handler.GetHealth(context.Background(), &struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 0, output.Body.ActiveStreams)
}
