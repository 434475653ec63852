// Package editing holds the JSON document behind an editing session and the
// operations a user applies to it.
package editing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

const (
	StatusActive   = "active"
	StatusSaved    = "saved"
	StatusExported = "exported"
)

// timeEpsilon absorbs float noise when comparing clip boundaries.
const timeEpsilon = 1e-6

var (
	ErrClipNotFound    = errors.New("clip not found")
	ErrSessionExported = errors.New("editing session already exported")
	ErrInvalidStatus   = errors.New("unknown editing session status")
	ErrInvalidPosition = errors.New("clip position must be non-negative")
	ErrInvalidTrim     = errors.New("trim range must satisfy 0 <= start < end <= source duration")
	ErrInvalidSplit    = errors.New("split point must fall strictly inside the clip")
	ErrNotMergeable    = errors.New("clips are not contiguous segments of the same source")
)

// Clip is one segment on the timeline. StartTime/EndTime place it on the timeline;
// TrimStart/TrimEnd select the range of the source file that plays.
type Clip struct {
	ID         string   `json:"id"`
	SourcePath string   `json:"source_path"`
	SceneIndex int      `json:"scene_index"`
	StartTime  float64  `json:"start_time"`
	EndTime    float64  `json:"end_time"`
	TrimStart  *float64 `json:"trim_start,omitempty"`
	TrimEnd    *float64 `json:"trim_end,omitempty"`
	// SourceDuration is the length of the rendered file; zero when unknown.
	SourceDuration float64  `json:"source_duration,omitempty"`
	Track          int      `json:"track"`
	SplitFrom      string   `json:"split_from,omitempty"`
	MergedFrom     []string `json:"merged_from,omitempty"`
}

// SourceRange is the part of the source file this clip plays.
func (c Clip) SourceRange() (float64, float64) {
	if c.TrimStart != nil && c.TrimEnd != nil {
		return *c.TrimStart, *c.TrimEnd
	}
	return 0, c.EndTime - c.StartTime
}

// Duration honours trim overrides before falling back to the timeline span.
func (c Clip) Duration() float64 {
	from, to := c.SourceRange()
	return to - from
}

// State is the editing_state JSON document.
type State struct {
	Version int    `json:"version"`
	Clips   []Clip `json:"clips"`
}

// ParseState decodes an editing_state column. An empty document is a fresh state.
func ParseState(raw []byte) (*State, error) {
	st := &State{Clips: []Clip{}}
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return st, nil
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("invalid editing state: %w", err)
	}
	if st.Clips == nil {
		st.Clips = []Clip{}
	}
	return st, nil
}

// Encode renders the state back to JSON for persistence.
func (s *State) Encode() ([]byte, error) {
	return json.Marshal(s)
}

func (s *State) indexOf(clipID string) int {
	for i := range s.Clips {
		if s.Clips[i].ID == clipID {
			return i
		}
	}
	return -1
}

// Clip returns a copy of the clip with the given id.
func (s *State) Clip(clipID string) (Clip, error) {
	i := s.indexOf(clipID)
	if i < 0 {
		return Clip{}, fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}
	return s.Clips[i], nil
}

// SceneClip describes one rendered scene used to seed a new session.
type SceneClip struct {
	SceneIndex int
	Path       string
	Duration   float64
}

// InitialState lays the rendered scenes end to end on track 0.
func InitialState(scenes []SceneClip) *State {
	st := &State{Clips: make([]Clip, 0, len(scenes))}
	cursor := 0.0
	for _, sc := range scenes {
		st.Clips = append(st.Clips, Clip{
			ID:             uuid.NewString(),
			SourcePath:     sc.Path,
			SceneIndex:     sc.SceneIndex,
			StartTime:      cursor,
			EndTime:        cursor + sc.Duration,
			SourceDuration: sc.Duration,
		})
		cursor += sc.Duration
	}
	return st
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < timeEpsilon
}

func float64Ptr(v float64) *float64 {
	return &v
}
