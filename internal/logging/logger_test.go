package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DEBUG, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, INFO, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestWriterLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("session", &buf, WARN)

	l.Info("skip me")
	l.Warn("drop %s", "ignored")
	l.Error("boom")

	out := buf.String()
	assert.NotContains(t, out, "skip me")
	assert.Contains(t, out, "[WARN] [session] drop ignored")
	assert.Contains(t, out, "[ERROR] [session] boom")
}

func TestDefaultLoggerSwap(t *testing.T) {
	var buf bytes.Buffer
	prev := current()
	SetDefaultLogger(NewWriterLogger("", &buf, DEBUG))
	t.Cleanup(func() { SetDefaultLogger(prev) })

	Debug("round %d", 3)
	Trace("hidden")

	assert.Contains(t, buf.String(), "[DEBUG] round 3")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestComponentLoggers_Files(t *testing.T) {
	dir := t.TempDir()
	SetLogDir(dir)
	t.Cleanup(func() { SetLogDir("logs") })

	c := NewComponentLoggers()
	a := c.Get(ComponentStorage)
	assert.Same(t, a, c.Get(ComponentStorage))
	c.Get(ComponentAPI)
	assert.Equal(t, []string{ComponentAPI, ComponentStorage}, c.Names())

	a.Debug("written to file")
	require.NoError(t, c.Close())
	assert.Empty(t, c.Names())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestComponentLoggers_Levels(t *testing.T) {
	SetLogDir(t.TempDir())
	t.Cleanup(func() { SetLogDir("logs") })

	c := NewComponentLoggers()
	t.Cleanup(func() { _ = c.Close() })

	existing := c.Get(ComponentSession)
	err := c.ApplyLevels(map[string]string{
		ComponentSession: "debug",
		ComponentBot:     "error",
		ComponentAPI:     "loud",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api")

	assert.Equal(t, DEBUG, existing.minConsoleLevel)
	// уровень применяется и к логгеру, созданному позже
	assert.Equal(t, ERROR, c.Get(ComponentBot).minConsoleLevel)
	assert.Equal(t, INFO, c.Get(ComponentAPI).minConsoleLevel)
}

func TestComponentLoggers_NoLogDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	SetLogDir(filepath.Join(blocker, "logs"))
	t.Cleanup(func() { SetLogDir("logs") })

	c := NewComponentLoggers()
	l := c.Get(ComponentHealth)
	require.NotNil(t, l)
	assert.Nil(t, l.file)
	assert.Equal(t, ComponentHealth, l.Component())
}

func TestHexDump(t *testing.T) {
	assert.Equal(t, "No data", HexDump(nil))
	assert.Contains(t, HexDump([]byte("tower")), "74 6f 77 65 72")
}
