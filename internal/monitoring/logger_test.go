package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	var captured []string
	SetLogger(func(format string, v ...interface{}) {
		captured = append(captured, fmt.Sprintf(format, v...))
	})

	Logf("hello %d", 42)
	if len(captured) != 1 || captured[0] != "hello 42" {
		t.Errorf("expected captured log 'hello 42', got %v", captured)
	}

	// nil installs a no-op logger rather than panicking
	SetLogger(nil)
	Logf("dropped")
	if len(captured) != 1 {
		t.Errorf("no-op logger should not capture, got %v", captured)
	}
}

func TestEnableTrace(t *testing.T) {
	defer SetLogger(nil)
	defer EnableTrace(false)

	var captured []string
	SetLogger(func(format string, v ...interface{}) {
		captured = append(captured, fmt.Sprintf(format, v...))
	})

	Tracef("quiet by default")
	if len(captured) != 0 {
		t.Fatalf("trace should be muted by default, got %v", captured)
	}

	EnableTrace(true)
	Tracef("frame %s", "f1")
	if len(captured) != 1 || captured[0] != "frame f1" {
		t.Errorf("expected traced 'frame f1', got %v", captured)
	}

	EnableTrace(false)
	Tracef("muted again")
	if len(captured) != 1 {
		t.Errorf("trace should be muted after disable, got %v", captured)
	}
}
