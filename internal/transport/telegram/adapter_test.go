package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextShort(t *testing.T) {
	got := splitText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(s, 10)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2: %q", len(got), got)
	}
	if got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("unexpected chunks %q", got)
	}
}

func TestSplitTextHardCut(t *testing.T) {
	got := splitText(strings.Repeat("x", 25), 10)
	if len(got) != 3 || len(got[2]) != 5 {
		t.Fatalf("unexpected chunks %q", got)
	}
}
