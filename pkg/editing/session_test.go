package editing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	st := InitialState([]SceneClip{
		{SceneIndex: 0, Path: "/work/scene_0.mp4", Duration: 5},
		{SceneIndex: 1, Path: "/work/scene_1.mp4", Duration: 5},
		{SceneIndex: 2, Path: "/work/scene_2.mp4", Duration: 5},
	})
	s, err := NewSession(StatusActive, st)
	require.NoError(t, err)
	return s
}

func TestInitialState_LaysClipsEndToEnd(t *testing.T) {
	s := newTestSession(t)
	require.Len(t, s.State.Clips, 3)
	assert.Equal(t, 0.0, s.State.Clips[0].StartTime)
	assert.Equal(t, 10.0, s.State.Clips[2].StartTime)
	assert.Equal(t, 15.0, s.State.Clips[2].EndTime)
	assert.Equal(t, 0, s.State.Version)

	ids := map[string]bool{}
	for _, c := range s.State.Clips {
		ids[c.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestDeleteClip(t *testing.T) {
	s := newTestSession(t)
	target := s.State.Clips[1].ID

	require.NoError(t, s.DeleteClip(target))
	assert.Len(t, s.State.Clips, 2)
	assert.Equal(t, 1, s.State.Version)
	_, err := s.State.Clip(target)
	assert.ErrorIs(t, err, ErrClipNotFound)
}

func TestDeleteClip_MissingLeavesVersion(t *testing.T) {
	s := newTestSession(t)
	err := s.DeleteClip("does-not-exist")
	assert.ErrorIs(t, err, ErrClipNotFound)
	assert.Equal(t, 0, s.State.Version)
	assert.Len(t, s.State.Clips, 3)
}

func TestMoveClip_DerivesEndFromDuration(t *testing.T) {
	s := newTestSession(t)
	id := s.State.Clips[0].ID
	track := 1

	require.NoError(t, s.MoveClip(id, 20, &track))
	c, err := s.State.Clip(id)
	require.NoError(t, err)
	assert.Equal(t, 20.0, c.StartTime)
	assert.Equal(t, 25.0, c.EndTime)
	assert.Equal(t, 1, c.Track)
	assert.Equal(t, 1, s.State.Version)
}

func TestMoveClip_PreservesTrimmedDuration(t *testing.T) {
	s := newTestSession(t)
	id := s.State.Clips[1].ID

	require.NoError(t, s.TrimClip(id, 1.5, 3.5))
	require.NoError(t, s.MoveClip(id, 30, nil))

	c, err := s.State.Clip(id)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, c.StartTime, timeEpsilon)
	assert.InDelta(t, 32.0, c.EndTime, timeEpsilon)
	assert.InDelta(t, 2.0, c.Duration(), timeEpsilon)
	assert.Equal(t, 0, c.Track)
	assert.Equal(t, 2, s.State.Version)
}

func TestMoveClip_RejectsNegativeStart(t *testing.T) {
	s := newTestSession(t)
	err := s.MoveClip(s.State.Clips[0].ID, -1, nil)
	assert.ErrorIs(t, err, ErrInvalidPosition)
	assert.Equal(t, 0, s.State.Version)
}

func TestTrimClip_Validation(t *testing.T) {
	s := newTestSession(t)
	id := s.State.Clips[0].ID
	assert.ErrorIs(t, s.TrimClip(id, 3, 3), ErrInvalidTrim)
	assert.ErrorIs(t, s.TrimClip(id, -1, 2), ErrInvalidTrim)
	assert.ErrorIs(t, s.TrimClip("nope", 0, 1), ErrClipNotFound)
	assert.Equal(t, 0, s.State.Version)
}

func TestTrimClip_StaysInsideSource(t *testing.T) {
	s := newTestSession(t)
	id := s.State.Clips[0].ID

	assert.ErrorIs(t, s.TrimClip(id, 0, 100), ErrInvalidTrim)
	assert.Equal(t, 5.0, s.State.Clips[0].EndTime)

	require.NoError(t, s.TrimClip(id, 1, 5))
	assert.Equal(t, 4.0, s.State.Clips[0].Duration())

	left, _, err := s.SplitClip(id, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, s.TrimClip(left, 0, 6), ErrInvalidTrim)
	assert.NoError(t, s.TrimClip(left, 0, 5))
}

func TestTrimClip_UnknownSourceLength(t *testing.T) {
	st := &State{Clips: []Clip{{ID: "legacy", SourcePath: "/w/a.mp4", EndTime: 5}}}
	s, err := NewSession(StatusActive, st)
	require.NoError(t, err)
	assert.NoError(t, s.TrimClip("legacy", 0, 7))
}

func TestSplitThenMerge_RoundTripsRange(t *testing.T) {
	s := newTestSession(t)
	orig := s.State.Clips[0]

	a, b, err := s.SplitClip(orig.ID, 2)
	require.NoError(t, err)
	require.Len(t, s.State.Clips, 4)

	first, err := s.State.Clip(a)
	require.NoError(t, err)
	second, err := s.State.Clip(b)
	require.NoError(t, err)
	assert.Equal(t, orig.ID, first.SplitFrom)
	assert.Equal(t, orig.ID, second.SplitFrom)
	assert.InDelta(t, 2.0, first.Duration(), timeEpsilon)
	assert.InDelta(t, 3.0, second.Duration(), timeEpsilon)
	assert.InDelta(t, 2.0, second.StartTime, timeEpsilon)
	assert.InDelta(t, 5.0, second.EndTime, timeEpsilon)

	merged, err := s.MergeClips(a, b)
	require.NoError(t, err)
	require.Len(t, s.State.Clips, 3)
	m, err := s.State.Clip(merged)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, m.MergedFrom)
	assert.InDelta(t, 5.0, m.Duration(), timeEpsilon)
	assert.Equal(t, 2, s.State.Version)
}

func TestSplitClip_OutOfRange(t *testing.T) {
	s := newTestSession(t)
	_, _, err := s.SplitClip(s.State.Clips[0].ID, 5)
	assert.ErrorIs(t, err, ErrInvalidSplit)
	assert.Equal(t, 0, s.State.Version)
}

func TestMergeClips_RejectsDifferentSources(t *testing.T) {
	s := newTestSession(t)
	_, err := s.MergeClips(s.State.Clips[0].ID, s.State.Clips[1].ID)
	assert.ErrorIs(t, err, ErrNotMergeable)
	assert.Equal(t, 0, s.State.Version)
}

func TestLifecycle_NoBackTransitions(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Save())
	assert.Equal(t, StatusSaved, s.Status)

	require.NoError(t, s.DeleteClip(s.State.Clips[0].ID))
	require.NoError(t, s.Export())
	assert.Equal(t, StatusExported, s.Status)

	assert.ErrorIs(t, s.Save(), ErrSessionExported)
	assert.ErrorIs(t, s.Export(), ErrSessionExported)
	assert.ErrorIs(t, s.DeleteClip(s.State.Clips[0].ID), ErrSessionExported)
}

func TestParseState(t *testing.T) {
	st, err := ParseState(nil)
	require.NoError(t, err)
	assert.Empty(t, st.Clips)

	st, err = ParseState([]byte(`{"version":4,"clips":[{"id":"c1","source_path":"a.mp4","start_time":0,"end_time":3,"track":0}]}`))
	require.NoError(t, err)
	assert.Equal(t, 4, st.Version)
	require.Len(t, st.Clips, 1)
	assert.Equal(t, 3.0, st.Clips[0].Duration())

	_, err = ParseState([]byte(`{"clips":`))
	assert.Error(t, err)

	_, err = NewSession("archived", st)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
