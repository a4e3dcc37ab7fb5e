package components

import (
	"strings"
	"testing"
)

func TestStatusBar_Render_SingleItem(t *testing.T) {
	sb := NewStatusBar()
	result := sb.Render(50, []string{"q Quit"})

	if !strings.Contains(result, "q Quit") {
		t.Errorf("expected result to contain 'q Quit', got: %s", result)
	}
}

func TestStatusBar_Render_MultipleItems(t *testing.T) {
	sb := NewStatusBar()
	items := []string{"r Refresh", "q Quit"}
	result := sb.Render(60, items)

	if !strings.Contains(result, "r Refresh") {
		t.Errorf("expected result to contain 'r Refresh', got: %s", result)
	}
	if !strings.Contains(result, "q Quit") {
		t.Errorf("expected result to contain 'q Quit', got: %s", result)
	}
	if !strings.Contains(result, "•") {
		t.Errorf("expected result to contain '•' separator, got: %s", result)
	}
}

func TestStatusBar_Render_EmptyItems(t *testing.T) {
	sb := NewStatusBar()
	// Should not panic; styling may produce an empty string.
	_ = sb.Render(50, []string{})
}

func TestStatusBar_Render_NarrowWidth(t *testing.T) {
	sb := NewStatusBar()
	items := []string{"r Refresh", "q Quit"}
	result := sb.Render(10, items)

	if result == "" {
		t.Error("expected non-empty result even with narrow width")
	}
}

func TestStatusBar_Render_SeparatorFormat(t *testing.T) {
	sb := NewStatusBar()
	items := []string{"A", "B", "C"}
	result := sb.Render(40, items)

	if !strings.Contains(result, "A • B • C") {
		t.Errorf("expected items to be joined with ' • ', got: %s", result)
	}
}
