package version

import (
	"strings"
	"testing"
)

func TestCurrent_Defaults(t *testing.T) {
	b := Current()
	if b.Version == "" || b.Commit == "" || b.Date == "" {
		t.Fatalf("build info must not contain empty fields: %+v", b)
	}
}

func TestBuild_String(t *testing.T) {
	s := Build{Version: "1.2.0", Commit: "abc123", Date: "2026-04-19"}.String()
	for _, want := range []string{"lahmacun 1.2.0", "commit=abc123", "built=2026-04-19"} {
		if !strings.Contains(s, want) {
			t.Fatalf("%q does not contain %q", s, want)
		}
	}
}
