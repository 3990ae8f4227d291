// Package landmark defines the keypoint model delivered by an external pose
// detector and the source abstractions that feed frames into the monitor.
//
// Coordinates follow the MediaPipe convention: X and Y are normalized to the
// image ([0,1], Y grows downward), Z is a camera-relative depth estimate where
// more negative means closer to the camera. Each landmark carries a visibility
// score in [0,1].
package landmark

import "time"

// ID names a pose keypoint.
type ID string

// Pose keypoints used by the posture metrics. The set matches the upper-body
// subset of the MediaPipe Pose topology.
const (
	Nose          ID = "nose"
	LeftEye       ID = "left_eye"
	RightEye      ID = "right_eye"
	LeftEar       ID = "left_ear"
	RightEar      ID = "right_ear"
	LeftShoulder  ID = "left_shoulder"
	RightShoulder ID = "right_shoulder"
	LeftElbow     ID = "left_elbow"
	RightElbow    ID = "right_elbow"
	LeftHip       ID = "left_hip"
	RightHip      ID = "right_hip"
)

// Point is a 3D position in normalized image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Landmark is a detected keypoint with its visibility score.
type Landmark struct {
	Point
	Visibility float64 `json:"visibility"`
}

// Frame is one detector output: a timestamped set of named keypoints.
// Frames are transient; the processing cycle that consumes one discards it
// once metric readings have been derived.
type Frame struct {
	Timestamp time.Time       `json:"-"`
	UnixNanos int64           `json:"ts_unix_nanos"`
	Landmarks map[ID]Landmark `json:"landmarks"`
}

// At returns the named landmark and whether it is present in the frame.
func (f *Frame) At(id ID) (Landmark, bool) {
	lm, ok := f.Landmarks[id]
	return lm, ok
}

// Visible reports whether the named landmark is present with visibility at or
// above min.
func (f *Frame) Visible(id ID, min float64) bool {
	lm, ok := f.Landmarks[id]
	return ok && lm.Visibility >= min
}

// Time returns the frame timestamp, preferring the parsed Timestamp and
// falling back to the wire-level UnixNanos field.
func (f *Frame) Time() time.Time {
	if !f.Timestamp.IsZero() {
		return f.Timestamp
	}
	return time.Unix(0, f.UnixNanos)
}
