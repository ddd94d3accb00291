package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestHandler(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, slog.LevelInfo)).With(slog.String("component", "player"))

	log.Info("Now playing", "guild", "g1")
	log.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "[INFO] [PLAYER] Now playing guild=g1")
	assert.NotContains(t, out, "hidden")
}

func TestHandlerGroup(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, slog.LevelDebug)).WithGroup("vote")

	log.Warn("threshold", "required", 2)

	assert.Contains(t, buf.String(), "[WARN] threshold vote.required=2")
}
