package monitoring

import (
	"fmt"
	"testing"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	prev := Logf
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() {
		Logf = prev
		SetDebug(false)
	})
	return &lines
}

func TestSetLogger_Nil(t *testing.T) {
	prev := Logf
	t.Cleanup(func() { Logf = prev })

	SetLogger(nil)
	// must not panic
	Logf("dropped %d", 1)
}

func TestDebugf_Gated(t *testing.T) {
	lines := capture(t)

	Debugf("hidden %s", "line")
	if len(*lines) != 0 {
		t.Fatalf("expected no output with debug off, got %v", *lines)
	}

	SetDebug(true)
	if !DebugEnabled() {
		t.Fatal("DebugEnabled() = false after SetDebug(true)")
	}
	Debugf("shown %s", "line")
	if len(*lines) != 1 || (*lines)[0] != "[debug] shown line" {
		t.Errorf("unexpected output: %v", *lines)
	}
}
