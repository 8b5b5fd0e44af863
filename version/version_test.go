package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("expected version %q, got %q", Version, info.Version)
	}
}

func TestShort_StartsWithVersion(t *testing.T) {
	if !strings.HasPrefix(Short(), Version) {
		t.Errorf("short version %q must start with %q", Short(), Version)
	}
}
