package visiondto

import "time"

// Observation is one detector hit for a single square.
type Observation struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Frame is one full-board detector result as received over the wire.
// Squares is keyed by coordinate in the detector's own frame ("a1".."h8");
// absent keys mean the square was seen empty. WhiteBottom reports the
// physical camera orientation and defaults to true when omitted.
type Frame struct {
	FrameID     int64                  `json:"frame_id"`
	CapturedAt  time.Time              `json:"captured_at"`
	WhiteBottom *bool                  `json:"white_bottom,omitempty"`
	Squares     map[string]Observation `json:"squares"`
}
