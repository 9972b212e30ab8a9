package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupWithWriter_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupWithWriter(Config{Enabled: true, ServiceName: "expense-approval", ServiceVersion: "test"}, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "ApprovalService.Approve")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "ApprovalService.Approve")
	assert.Contains(t, buf.String(), "expense-approval")
}
