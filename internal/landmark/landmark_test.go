package landmark

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFrameVisible(t *testing.T) {
	frame := Frame{
		Landmarks: map[ID]Landmark{
			LeftShoulder:  {Point: Point{X: 0.4, Y: 0.5}, Visibility: 0.9},
			RightShoulder: {Point: Point{X: 0.6, Y: 0.5}, Visibility: 0.3},
		},
	}

	if !frame.Visible(LeftShoulder, 0.7) {
		t.Error("left shoulder at 0.9 visibility should pass a 0.7 floor")
	}
	if frame.Visible(RightShoulder, 0.7) {
		t.Error("right shoulder at 0.3 visibility should fail a 0.7 floor")
	}
	if frame.Visible(Nose, 0.0) {
		t.Error("absent landmark should never be visible")
	}
}

func TestFrameTime(t *testing.T) {
	now := time.Now()

	withTimestamp := Frame{Timestamp: now}
	if !withTimestamp.Time().Equal(now) {
		t.Errorf("Time() = %v, want %v", withTimestamp.Time(), now)
	}

	wireOnly := Frame{UnixNanos: now.UnixNano()}
	if got := wireOnly.Time().UnixNano(); got != now.UnixNano() {
		t.Errorf("Time().UnixNano() = %d, want %d", got, now.UnixNano())
	}
}

func TestFrameJSONRoundTrip(t *testing.T) {
	in := Frame{
		UnixNanos: 1234567890,
		Landmarks: map[ID]Landmark{
			Nose: {Point: Point{X: 0.5, Y: 0.2, Z: -0.1}, Visibility: 0.95},
		},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Frame
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.UnixNanos != in.UnixNanos {
		t.Errorf("UnixNanos = %d, want %d", out.UnixNanos, in.UnixNanos)
	}
	nose, ok := out.At(Nose)
	if !ok || nose.X != 0.5 || nose.Visibility != 0.95 {
		t.Errorf("nose landmark did not survive round trip: %+v (ok=%v)", nose, ok)
	}
}

func TestFileSourceReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixtures.jsonl")

	lines := `{"ts_unix_nanos":1,"landmarks":{"nose":{"x":0.5,"y":0.2,"z":0,"visibility":0.9}}}
not json

{"ts_unix_nanos":2,"landmarks":{"nose":{"x":0.5,"y":0.3,"z":0,"visibility":0.9}}}
`
	if err := os.WriteFile(path, []byte(lines), 0644); err != nil {
		t.Fatalf("write fixtures: %v", err)
	}

	src := &FileSource{Path: path, Interval: time.Millisecond}
	out := make(chan Frame, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := src.Run(ctx, out); err != nil {
		t.Fatalf("replay: %v", err)
	}
	close(out)

	var frames []Frame
	for f := range out {
		frames = append(frames, f)
	}
	// Malformed and blank lines are skipped, valid frames delivered in order.
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Timestamp.IsZero() {
		t.Error("replayed frames should be restamped with the replay clock")
	}
}
