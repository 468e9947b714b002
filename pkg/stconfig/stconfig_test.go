package stconfig

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	var c Config
	if err := c.UnmarshalEnv(nil); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.ExpiresMs != 16*time.Second {
		t.Fatalf("expected default ExpiresMs=16s, got %s", c.ExpiresMs)
	}
	if c.MaxTries != 3 {
		t.Fatalf("expected default MaxTries=3, got %d", c.MaxTries)
	}
	if c.AdvancePartyCap != 8 {
		t.Fatalf("expected default AdvancePartyCap=8, got %d", c.AdvancePartyCap)
	}
}

func TestOverrideAndUnknownKey(t *testing.T) {
	var c Config
	if err := c.UnmarshalEnv([]string{"ST_MAX_TRIES=5", "ST_HEARTBEAT_MS=10s"}); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.MaxTries != 5 {
		t.Fatalf("expected override MaxTries=5, got %d", c.MaxTries)
	}
	if c.HeartbeatMs != 10*time.Second {
		t.Fatalf("expected override HeartbeatMs=10s, got %s", c.HeartbeatMs)
	}

	var c2 Config
	if err := c2.UnmarshalEnv([]string{"ST_NOT_A_REAL_OPTION=1"}); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}
