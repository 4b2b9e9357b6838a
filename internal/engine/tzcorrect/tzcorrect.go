// Package tzcorrect detects local clock/timezone jumps within a single
// producer's stream and applies retroactive deltas to a bounded "suspect"
// window, without rewriting history it can't corroborate.
//
// Rationale: local device clocks roll forward on a timezone change but
// often roll back after a sync; the algorithm refuses to rewrite history it
// can't corroborate with a confirmed return to the prior trajectory.
package tzcorrect

// Tunables exposed so a session can override the heuristic's sensitivity.
const (
	// DefaultJumpThresholdMs is how far a timestamp must jump, relative to
	// the pre-jump baseline, before the corrector starts watching for a
	// confirmed clock jump.
	DefaultJumpThresholdMs = 30 * 60 * 1000
	// DefaultMinSuspectLines is how many consecutive deviating entries are
	// required before a pending jump is confirmed as Suspect.
	DefaultMinSuspectLines = 2
	// returnToleranceMs is how close to the pre-jump baseline a raw
	// timestamp must land for a pending or confirmed jump to be considered
	// resolved.
	returnToleranceMs = 60 * 1000
)

type state int

const (
	stateStable state = iota
	statePending
	stateSuspect
)

// RetroSegment is a finalized Suspect segment: the inclusive index range
// [Start, End] should have DeltaMs added to every entry in it.
type RetroSegment struct {
	Start   int
	End     int
	DeltaMs int64
}

// Corrector is a per-type, stateful detector. Feed it entries in the order
// they are consumed (the stager feeds newest-to-oldest, but the algorithm
// is symmetric modulo sign) via Adjust, drain finalized segments with
// DrainRetroSegments after each call, and call FinalizeSuspected once the
// stream ends.
type Corrector struct {
	jumpThresholdMs int64
	minSuspectLines int

	st state

	lastGood     int64
	haveLastGood bool

	suspectStart   int
	suspectCount   int
	candidateDelta int64

	pending []RetroSegment
}

// New creates a Corrector using the default jump threshold and minimum
// suspect run length.
func New() *Corrector {
	return &Corrector{
		jumpThresholdMs: DefaultJumpThresholdMs,
		minSuspectLines: DefaultMinSuspectLines,
	}
}

// NewWithTunables creates a Corrector with explicit threshold/run-length
// overrides.
func NewWithTunables(jumpThresholdMs int64, minSuspectLines int) *Corrector {
	c := New()
	if jumpThresholdMs > 0 {
		c.jumpThresholdMs = jumpThresholdMs
	}
	if minSuspectLines > 0 {
		c.minSuspectLines = minSuspectLines
	}
	return c
}

// Adjust processes one entry's raw timestamp at the given buffer index and
// returns it unchanged: Suspect-state entries are only corrected once a
// matching retro-segment is drained and applied by the caller.
func (c *Corrector) Adjust(ts int64, index int) int64 {
	if !c.haveLastGood {
		c.lastGood = ts
		c.haveLastGood = true
		return ts
	}

	switch c.st {
	case stateStable:
		if abs64(ts-c.lastGood) <= c.jumpThresholdMs {
			c.lastGood = ts
			return ts
		}
		c.st = statePending
		c.suspectStart = index
		c.suspectCount = 1
		c.candidateDelta = c.lastGood - ts
		return ts

	case statePending:
		if abs64(ts-c.lastGood) <= returnToleranceMs {
			// Returned before confirmation: a one-off blip, not a jump.
			c.lastGood = ts
			c.st = stateStable
			c.suspectCount = 0
			return ts
		}
		c.suspectCount++
		if c.suspectCount >= c.minSuspectLines {
			c.st = stateSuspect
		}
		return ts

	case stateSuspect:
		if abs64(ts-c.lastGood) <= returnToleranceMs {
			c.pending = append(c.pending, RetroSegment{
				Start:   c.suspectStart,
				End:     index - 1,
				DeltaMs: c.candidateDelta,
			})
			c.lastGood = ts
			c.st = stateStable
			c.suspectCount = 0
			return ts
		}
		c.suspectCount++
		return ts
	}
	return ts
}

// DrainRetroSegments returns and clears any retro-segments finalized by
// the most recent Adjust call. The caller is expected to apply
// entry[j].ts += seg.DeltaMs for j in [seg.Start, seg.End] to its
// already-buffered entries.
func (c *Corrector) DrainRetroSegments() []RetroSegment {
	if len(c.pending) == 0 {
		return nil
	}
	out := c.pending
	c.pending = nil
	return out
}

// FinalizeSuspected ends the stream. A pending or unconfirmed-return
// Suspect segment is discarded: there is no evidence the clock ever
// returned, so no retroactive rewrite is applied.
func (c *Corrector) FinalizeSuspected() {
	c.st = stateStable
	c.suspectCount = 0
	c.candidateDelta = 0
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
