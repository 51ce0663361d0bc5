package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)
	log.Info().Str("account", "123456").Msg("saved movements")

	out := buf.String()
	if !strings.Contains(out, "saved movements") {
		t.Errorf("missing message: %s", out)
	}
	if !strings.Contains(out, `"account":"123456"`) {
		t.Errorf("missing field: %s", out)
	}
}

func TestForTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	log := For(NewWithWriter(&buf), "store")
	log.Info().Msg("ready")

	if !strings.Contains(buf.String(), `"component":"store"`) {
		t.Errorf("missing component tag: %s", buf.String())
	}
}
