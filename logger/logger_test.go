package logger

import (
	"testing"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Level != "info" {
		t.Errorf("expected level info, got %s", cfg.Level)
	}
	if cfg.Format != "console" {
		t.Errorf("expected format console, got %s", cfg.Format)
	}
	if cfg.Output != "stdout" {
		t.Errorf("expected output stdout, got %s", cfg.Output)
	}
	if !cfg.Timestamp {
		t.Error("expected timestamp enabled by default")
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid json", Config{Level: "debug", Format: "json"}, false},
		{"valid console", Config{Level: "warn", Format: "console"}, false},
		{"bad level", Config{Level: "loud", Format: "json"}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestFields_PairsUp(t *testing.T) {
	m := Fields("address", "addr-1", "attempt", 2)
	if m["address"] != "addr-1" {
		t.Errorf("expected address field, got %v", m)
	}
	if m["attempt"] != 2 {
		t.Errorf("expected attempt field, got %v", m)
	}
}

func TestFields_IgnoresDanglingKey(t *testing.T) {
	m := Fields("only-key")
	if len(m) != 0 {
		t.Errorf("dangling key should be dropped, got %v", m)
	}
}

func TestWithComponent_DoesNotMutateParent(t *testing.T) {
	parent := Nop()
	child := parent.WithComponent("guardian")
	if child == parent {
		t.Error("WithComponent must return a new logger")
	}
	// Smoke: all levels must not panic on a nop logger.
	child.Debug("d")
	child.Info("i", Fields("k", "v"))
	child.Warn("w")
	child.Error("e")
}
