package tui

import (
	"strings"
	"testing"
)

func TestBanner(t *testing.T) {
	out := Banner("1.2.3\n")

	if !strings.Contains(out, "v1.2.3") {
		t.Errorf("banner missing trimmed version:\n%s", out)
	}
	if !strings.Contains(out, "_ _") {
		t.Errorf("banner missing the art:\n%s", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Errorf("banner should end with a blank line:\n%q", out)
	}
}
