package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shield.log")

	l, err := New(Config{Level: "info", Encoding: "json", Service: "linkshield", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	l.Info("session gated")
	l.Debug("not written")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"session gated"`)
	assert.Contains(t, string(data), `"service":"linkshield"`)
	assert.NotContains(t, string(data), "not written")
}
