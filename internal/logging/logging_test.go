package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_DefaultLevel(t *testing.T) {
	l := NewLogger(&bytes.Buffer{})
	assert.Equal(t, log.WarnLevel, l.GetLevel())
}

func TestConfigure_Levels(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
		want  log.Level
	}{
		{"default", Flags{}, log.WarnLevel},
		{"verbose", Flags{Verbose: true}, log.DebugLevel},
		{"quiet", Flags{Quiet: true}, log.ErrorLevel},
		{"quiet wins over verbose", Flags{Verbose: true, Quiet: true}, log.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLogger(&bytes.Buffer{})
			Configure(l, tt.flags)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestConfigure_JSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	Configure(l, Flags{JSON: true})

	l.Warn("skipped snapshot", "file", "bad.csv")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "skipped snapshot", entry["msg"])
	assert.Equal(t, "bad.csv", entry["file"])
}

func TestFromContext(t *testing.T) {
	l := NewLogger(&bytes.Buffer{})
	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))

	fallback := FromContext(context.Background())
	require.NotNil(t, fallback)
	assert.Equal(t, log.WarnLevel, fallback.GetLevel())
}

func TestNewTestContext_CapturesOutput(t *testing.T) {
	ctx, buf := NewTestContext(Flags{Verbose: true})
	FromContext(ctx).Debug("scanning namespace")
	assert.True(t, strings.Contains(buf.String(), "scanning namespace"))
}
