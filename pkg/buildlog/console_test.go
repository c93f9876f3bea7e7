package buildlog

import (
	"bytes"
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleWriterFormatsEvents(t *testing.T) {
	var out bytes.Buffer
	writer := &ConsoleWriter{Out: &out, NoColor: true}
	logger := zerolog.New(writer)

	logger.Info().Str("task", "umd").Msg("removing dist/umd")
	logger.Error().Err(eris.New("rollup exited with 1")).Msg("build failed")

	lines := out.String()
	assert.Contains(t, lines, "umd: removing dist/umd\n")
	assert.Contains(t, lines, "Error: build failed\n")
	assert.Contains(t, lines, "rollup exited with 1")
	assert.NotContains(t, lines, "[green]")
}

func TestConsoleWriterRejectsGarbage(t *testing.T) {
	writer := &ConsoleWriter{Out: &bytes.Buffer{}, NoColor: true}
	_, err := writer.Write([]byte("not json"))
	assert.Error(t, err)
}

func TestWithTaskTagsEvents(t *testing.T) {
	var out bytes.Buffer
	logger := zerolog.New(&out)
	ctx := WithTask(WithLogger(context.Background(), &logger), "cjs")

	Log(ctx).Info().Msg("hello")
	assert.Contains(t, out.String(), `"task":"cjs"`)
}

func TestLogPanicsWithoutLogger(t *testing.T) {
	require.Panics(t, func() {
		Log(context.Background())
	})
}
