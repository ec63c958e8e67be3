package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("INFO")
		_ = SetFormat("text")
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("WARN")

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 2")
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")
	SetLevel("verbose")

	Debug("still debug")
	assert.Contains(t, buf.String(), "[DEBUG] still debug")
	assert.True(t, IsDebug())
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	require.NoError(t, SetFormat("json"))

	Error("boom: %s", "disk")

	var line map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "boom: disk", line["msg"])
	assert.NotEmpty(t, line["time"])
}

func TestConfigure(t *testing.T) {
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("INFO")
		_ = SetFormat("text")
	})

	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, Configure("debug", "text", path))

	Debug("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[DEBUG] to file"))

	assert.Error(t, Configure("loud", "text", "stdout"))
	assert.Error(t, Configure("INFO", "xml", "stdout"))
}
