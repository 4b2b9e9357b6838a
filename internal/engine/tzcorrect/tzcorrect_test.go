package tzcorrect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrector_StableStream(t *testing.T) {
	c := New()
	ts := []int64{100, 99, 98, 97, 96}
	for i, v := range ts {
		got := c.Adjust(v, i)
		assert.Equal(t, v, got)
		assert.Empty(t, c.DrainRetroSegments())
	}
	c.FinalizeSuspected()
}

func TestCorrector_JumpThenReturn_ScenarioThree(t *testing.T) {
	// Mirrors the worked example: a single type's stream jumps hard for
	// three lines, then returns to the pre-jump trajectory.
	input := []int64{100, 99, 98, 97, 1000000, 1000001, 1000002, 96, 95}
	c := NewWithTunables(1000, 2)

	var segments []RetroSegment
	for i, ts := range input {
		c.Adjust(ts, i)
		segments = append(segments, c.DrainRetroSegments()...)
	}
	c.FinalizeSuspected()

	require.Len(t, segments, 1)
	assert.Equal(t, 4, segments[0].Start)
	assert.Equal(t, 6, segments[0].End)
	assert.Equal(t, int64(-999903), segments[0].DeltaMs)

	// Apply the retro-segment the way the stager does: the jumped lines
	// land back on the pre-jump trajectory.
	corrected := append([]int64(nil), input...)
	for j := segments[0].Start; j <= segments[0].End; j++ {
		corrected[j] += segments[0].DeltaMs
	}
	assert.Equal(t, []int64{100, 99, 98, 97, 97, 98, 99, 96, 95}, corrected)
}

func TestCorrector_UnconfirmedJumpDiscardedAtEnd(t *testing.T) {
	c := NewWithTunables(1000, 2)
	input := []int64{100, 99, 98, 1000000, 1000001}
	var segments []RetroSegment
	for i, ts := range input {
		c.Adjust(ts, i)
		segments = append(segments, c.DrainRetroSegments()...)
	}
	c.FinalizeSuspected()
	assert.Empty(t, segments, "a suspect run with no confirmed return must not be finalized")
}

func TestCorrector_BlipDoesNotEnterSuspect(t *testing.T) {
	// A single deviating line that returns immediately is a blip, not a
	// confirmed jump: minSuspectLines=2 means it never gets promoted.
	c := NewWithTunables(1000, 2)
	input := []int64{100, 99, 5000, 98, 97}
	var segments []RetroSegment
	for i, ts := range input {
		got := c.Adjust(ts, i)
		assert.Equal(t, ts, got)
		segments = append(segments, c.DrainRetroSegments()...)
	}
	c.FinalizeSuspected()
	assert.Empty(t, segments)
}
