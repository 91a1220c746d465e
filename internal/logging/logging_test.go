package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProductionJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false, false)
	log.Debug("hidden")
	log.Info("rendered", "pages", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "rendered", entry["msg"])
	assert.Equal(t, "badge-print-service", entry["service"])
	assert.EqualValues(t, 2, entry["pages"])
}

func TestNew_DevelopmentConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, true, true)
	log.Debug("cache warm", "entries", 3)
	assert.Contains(t, buf.String(), "cache warm")
	assert.Contains(t, buf.String(), "entries")
}
