package msg

import (
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	before := time.Now().UTC()

	e := NewEvent(MirrorDivergent, "mirror", "count 110 vs height 100")

	if e.Type != MirrorDivergent || e.Source != "mirror" || e.Detail == "" {
		t.Errorf("unexpected event:%+v", e)
	}
	if e.ID == "" {
		t.Errorf("expected a fresh event id")
	}
	if e.TS.Before(before) || e.TS.After(time.Now().UTC()) {
		t.Errorf("unexpected event timestamp:%v", e.TS)
	}

	if other := NewEvent(MirrorReady, "mirror", ""); other.ID == e.ID {
		t.Errorf("expected distinct event ids")
	}
}
