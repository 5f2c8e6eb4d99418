package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwatch/slotwatch/internal/logging"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     logging.Config
		wantErr bool
	}{
		{name: "defaults", cfg: logging.Config{}},
		{name: "debug console", cfg: logging.Config{Level: "debug", Format: "console"}},
		{name: "bad level", cfg: logging.Config{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: logging.Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.SetDefaults()
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: "info"}, &buf, "slotwatch-api", "1.2.3")

	log.Debug().Msg("hidden")
	log.Info().Str("station", "U882").Msg("visible")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "U882", entry["station"])
	assert.Equal(t, "slotwatch-api", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Contains(t, entry, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: "debug", Format: "console"}, &buf, "slotwatch", "dev")

	log.Debug().Msg("scan started")

	assert.Contains(t, buf.String(), "scan started")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
