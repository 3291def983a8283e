package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/processors/minsev"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevLogger := output, slog.Default()
	output = &buf
	t.Cleanup(func() {
		output = prevOut
		slog.SetDefault(prevLogger)
	})
	return &buf
}

func TestInstrument_JSON(t *testing.T) {
	buf := captureOutput(t)

	shutdown, err := Instrument(context.Background(), slog.LevelInfo, "json", ExporterNone)
	require.NoError(t, err)
	defer func() { require.NoError(t, shutdown(context.Background())) }()

	slog.Debug("hidden")
	slog.Info("session restored", "identity", "admin")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "session restored", rec["msg"])
	require.Equal(t, "admin", rec["identity"])
}

func TestInstrument_Text(t *testing.T) {
	buf := captureOutput(t)

	_, err := Instrument(context.Background(), slog.LevelDebug, "", "")
	require.NoError(t, err)

	slog.Debug("polling", "interval", "10s")
	require.Contains(t, buf.String(), "msg=polling")
	require.Contains(t, buf.String(), "interval=10s")
}

func TestInstrument_StdoutExporter(t *testing.T) {
	buf := captureOutput(t)

	shutdown, err := Instrument(context.Background(), slog.LevelWarn, "text", ExporterStdout)
	require.NoError(t, err)

	slog.Info("dropped")
	slog.Warn("renewal failed")
	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "renewal failed")

	require.NoError(t, shutdown(context.Background()))
}

func TestInstrument_Invalid(t *testing.T) {
	captureOutput(t)

	_, err := Instrument(context.Background(), slog.LevelInfo, "xml", ExporterNone)
	require.ErrorContains(t, err, "unsupported log format")

	_, err = Instrument(context.Background(), slog.LevelInfo, "text", "kafka")
	require.ErrorContains(t, err, "unsupported log exporter")
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  minsev.Severity
	}{
		{slog.LevelDebug, minsev.SeverityDebug},
		{slog.LevelInfo, minsev.SeverityInfo},
		{slog.LevelWarn, minsev.SeverityWarn},
		{slog.LevelError, minsev.SeverityError},
		{slog.LevelError + 4, minsev.SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			require.Equal(t, tt.want, severityFor(tt.level))
		})
	}
}
