package breakpoint

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamicLoggerDropsBeforeInitialize(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := NewDynamicLogger(zerolog.New(buf))
	def := NewDefinition("com/example/App.java", 10)

	sink.Log(def, "too early")
	assert.Zero(t, buf.Len())
	assert.Equal(t, uint64(1), sink.Skipped())

	require.NoError(t, sink.Initialize())
	sink.Log(def, "on time")
	assert.Contains(t, buf.String(), "on time")
	assert.Contains(t, buf.String(), def.ID)
}

func TestDynamicLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{level: "debug", want: `"level":"debug"`},
		{level: "", want: `"level":"info"`},
		{level: "warn", want: `"level":"warn"`},
		{level: "error", want: `"level":"error"`},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			sink := NewDynamicLogger(zerolog.New(buf))
			require.NoError(t, sink.Initialize())

			def := NewDefinition("com/example/App.java", 10)
			def.LogLevel = tt.level
			sink.Log(def, "msg")
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
