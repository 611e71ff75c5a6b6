package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level Level) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: level})
	l.console = buf
	return l, buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"fatal":   LevelFatal,
		" info ":  LevelInfo,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "FATAL", LevelFatal.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
	assert.Equal(t, "UNKNOWN", Level(-1).String())
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LevelWarn)

	l.Debug("dropped debug")
	l.Info("dropped info")
	l.Warn("kept warn")
	l.Error("kept error")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept warn")
	assert.Contains(t, out, "kept error")
}

func TestComponentTag(t *testing.T) {
	l, buf := newBufferLogger(LevelDebug)

	l.WithComponent("policy").Info("verdict rendered")

	assert.Contains(t, buf.String(), "[policy]")
	assert.Contains(t, buf.String(), "verdict rendered")
}

func TestWithComponentSharesLevel(t *testing.T) {
	l, buf := newBufferLogger(LevelError)

	l.WithComponent("dispatch").Info("should be dropped")
	assert.Empty(t, buf.String())
}

func TestFormatArguments(t *testing.T) {
	l, buf := newBufferLogger(LevelInfo)

	l.Info("attempt %d of %d", 2, 3)
	assert.Contains(t, buf.String(), "attempt 2 of 3")
}

func TestFileOutputHasNoColorCodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log")
	l := New(&Config{Level: LevelInfo, Colored: true, FilePath: path})
	l.console = &bytes.Buffer{}

	l.Info("written to disk")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to disk")
	assert.NotContains(t, string(data), "\033[")
}

func TestSetFileOutputCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "out.log")
	l, _ := newBufferLogger(LevelInfo)

	require.NoError(t, l.SetFileOutput(path))
	l.Info("first line")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first line")
}

func TestCloseWithoutFileIsNoop(t *testing.T) {
	l, _ := newBufferLogger(LevelInfo)
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestCallerLocation(t *testing.T) {
	l, buf := newBufferLogger(LevelDebug)
	l.showCaller = true

	l.Debug("where am I")
	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestStripANSI(t *testing.T) {
	in := "\033[31mERROR\033[0m plain"
	assert.Equal(t, "ERROR plain", stripANSI(in))
	assert.Equal(t, "untouched", stripANSI("untouched"))
}

func TestConfigPresets(t *testing.T) {
	d := DefaultConfig()
	assert.Equal(t, LevelInfo, d.Level)
	assert.True(t, d.Colored)
	assert.False(t, d.ShowCaller)

	v := VerboseConfig()
	assert.Equal(t, LevelDebug, v.Level)
	assert.True(t, v.ShowCaller)
}

func TestGlobalSwapAndLevel(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	l, buf := newBufferLogger(LevelInfo)
	SetGlobal(l)
	require.Same(t, l, Global())

	SetLevel(LevelError)
	Global().Info("muted")
	Global().Error("audible")

	out := buf.String()
	assert.NotContains(t, out, "muted")
	assert.True(t, strings.Contains(out, "audible"))
}
