package editing

import (
	"fmt"

	"github.com/google/uuid"
)

// Session pairs an editing state with its lifecycle status.
// Every successful mutation bumps State.Version; failed ones leave it untouched.
type Session struct {
	Status string
	State  *State
}

// NewSession wraps a decoded state with its persisted status.
func NewSession(status string, st *State) (*Session, error) {
	switch status {
	case StatusActive, StatusSaved, StatusExported:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if st == nil {
		st = &State{Clips: []Clip{}}
	}
	return &Session{Status: status, State: st}, nil
}

func (s *Session) mutable() error {
	if s.Status == StatusExported {
		return ErrSessionExported
	}
	return nil
}

// locate finds the clip index for a mutation.
func (s *Session) locate(clipID string) (int, error) {
	if err := s.mutable(); err != nil {
		return -1, err
	}
	i := s.State.indexOf(clipID)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}
	return i, nil
}

// DeleteClip removes a clip from the timeline.
func (s *Session) DeleteClip(clipID string) error {
	i, err := s.locate(clipID)
	if err != nil {
		return err
	}
	s.State.Clips = append(s.State.Clips[:i], s.State.Clips[i+1:]...)
	s.State.Version++
	return nil
}

// MoveClip repositions a clip. The end time is always derived from the clip's
// own duration; callers never supply it. A nil track keeps the current track.
func (s *Session) MoveClip(clipID string, newStart float64, track *int) error {
	if newStart < 0 || (track != nil && *track < 0) {
		return ErrInvalidPosition
	}
	i, err := s.locate(clipID)
	if err != nil {
		return err
	}
	c := &s.State.Clips[i]
	duration := c.Duration()
	c.StartTime = newStart
	c.EndTime = newStart + duration
	if track != nil {
		c.Track = *track
	}
	s.State.Version++
	return nil
}

// TrimClip selects [trimStart, trimEnd) of the source and shrinks the clip in place.
// The range must lie inside the rendered file when its length is known.
func (s *Session) TrimClip(clipID string, trimStart, trimEnd float64) error {
	if trimStart < 0 || trimEnd <= trimStart {
		return ErrInvalidTrim
	}
	i, err := s.locate(clipID)
	if err != nil {
		return err
	}
	c := &s.State.Clips[i]
	if c.SourceDuration > 0 && trimEnd > c.SourceDuration+timeEpsilon {
		return ErrInvalidTrim
	}
	c.TrimStart = float64Ptr(trimStart)
	c.TrimEnd = float64Ptr(trimEnd)
	c.EndTime = c.StartTime + (trimEnd - trimStart)
	s.State.Version++
	return nil
}

// SplitClip cuts a clip at offset seconds from its start into two clips that
// both record the original id in SplitFrom. It returns the new ids.
func (s *Session) SplitClip(clipID string, offset float64) (string, string, error) {
	i, err := s.locate(clipID)
	if err != nil {
		return "", "", err
	}
	orig := s.State.Clips[i]
	if offset <= 0 || offset >= orig.Duration() {
		return "", "", ErrInvalidSplit
	}
	from, to := orig.SourceRange()

	first := orig
	first.ID = uuid.NewString()
	first.SplitFrom = orig.ID
	first.MergedFrom = nil
	first.TrimStart = float64Ptr(from)
	first.TrimEnd = float64Ptr(from + offset)
	first.EndTime = orig.StartTime + offset

	second := orig
	second.ID = uuid.NewString()
	second.SplitFrom = orig.ID
	second.MergedFrom = nil
	second.TrimStart = float64Ptr(from + offset)
	second.TrimEnd = float64Ptr(to)
	second.StartTime = orig.StartTime + offset
	second.EndTime = orig.StartTime + (to - from)

	clips := make([]Clip, 0, len(s.State.Clips)+1)
	clips = append(clips, s.State.Clips[:i]...)
	clips = append(clips, first, second)
	clips = append(clips, s.State.Clips[i+1:]...)
	s.State.Clips = clips
	s.State.Version++
	return first.ID, second.ID, nil
}

// MergeClips joins two clips that play adjacent ranges of the same source on the
// same track. The merged clip takes the first clip's position.
func (s *Session) MergeClips(firstID, secondID string) (string, error) {
	i, err := s.locate(firstID)
	if err != nil {
		return "", err
	}
	j, err := s.locate(secondID)
	if err != nil {
		return "", err
	}
	a, b := s.State.Clips[i], s.State.Clips[j]
	aFrom, aTo := a.SourceRange()
	bFrom, bTo := b.SourceRange()
	if i == j || a.SourcePath != b.SourcePath || a.Track != b.Track || !almostEqual(aTo, bFrom) {
		return "", ErrNotMergeable
	}

	merged := a
	merged.ID = uuid.NewString()
	merged.SplitFrom = ""
	merged.MergedFrom = []string{a.ID, b.ID}
	merged.TrimStart = float64Ptr(aFrom)
	merged.TrimEnd = float64Ptr(bTo)
	merged.EndTime = a.StartTime + (bTo - aFrom)

	s.State.Clips[i] = merged
	s.State.Clips = append(s.State.Clips[:j], s.State.Clips[j+1:]...)
	s.State.Version++
	return merged.ID, nil
}

// Save marks the session saved. Exported sessions cannot go back.
func (s *Session) Save() error {
	if err := s.mutable(); err != nil {
		return err
	}
	s.Status = StatusSaved
	return nil
}

// Export marks the session exported; it is terminal.
func (s *Session) Export() error {
	if err := s.mutable(); err != nil {
		return err
	}
	s.Status = StatusExported
	return nil
}
