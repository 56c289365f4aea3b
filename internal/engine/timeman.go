package engine

import (
	"time"

	"github.com/hailam/chesscore/internal/board"
)

// Limits bounds one search. Zero fields are unset; with nothing set the
// search runs until stopped.
type Limits struct {
	Time      [2]time.Duration // wtime, btime (remaining time for each color)
	Inc       [2]time.Duration // winc, binc (increment per move)
	MovesToGo int              // moves until next time control (0 = sudden death)
	MoveTime  time.Duration    // fixed time per move (overrides other time controls)
	Depth     int              // maximum search depth
	Nodes     uint64           // maximum nodes to search
	Infinite  bool             // search until stopped
}

// timed reports whether the limits impose a clock.
func (l Limits) timed(us board.Color) bool {
	return !l.Infinite && (l.MoveTime > 0 || l.Time[us] > 0)
}

// TimeManager splits the clock into a soft limit, after which no new
// iteration starts, and a hard limit, at which the running search stops.
type TimeManager struct {
	optimumTime time.Duration
	baseOptimum time.Duration
	maximumTime time.Duration
	startTime   time.Time
	timed       bool
	fixed       bool
}

// NewTimeManager creates a new time manager.
func NewTimeManager() *TimeManager {
	return &TimeManager{}
}

// Init initializes the time manager for a new search.
// ply is the current game ply (half-move number); overhead is subtracted
// from every allocation to cover transport latency.
func (tm *TimeManager) Init(limits Limits, us board.Color, ply int, overhead time.Duration) {
	tm.startTime = time.Now()
	tm.timed = limits.timed(us)
	tm.fixed = limits.MoveTime > 0
	if !tm.timed {
		tm.optimumTime, tm.maximumTime = 0, 0
		return
	}

	// Fixed move time mode
	if limits.MoveTime > 0 {
		t := max(limits.MoveTime-overhead, time.Millisecond)
		tm.optimumTime = t
		tm.baseOptimum = t
		tm.maximumTime = t
		return
	}

	timeLeft := max(limits.Time[us]-overhead, time.Millisecond)
	inc := limits.Inc[us]

	mtg := limits.MovesToGo
	if mtg == 0 {
		// Sudden death: expect fewer remaining moves as the game goes on.
		mtg = clamp(50-ply/4, 10, 50)
	}

	baseTime := timeLeft/time.Duration(mtg) + inc*9/10
	tm.optimumTime = baseTime
	if ply < 8 {
		tm.optimumTime = baseTime * 85 / 100
	}

	// Maximum time: 5x optimum or 80% of remaining, whichever is smaller
	tm.maximumTime = min(tm.optimumTime*5, timeLeft*8/10)

	tm.optimumTime = min(max(tm.optimumTime, 10*time.Millisecond), timeLeft)
	tm.maximumTime = min(max(tm.maximumTime, tm.optimumTime), timeLeft)
	tm.baseOptimum = tm.optimumTime
}

// Timed reports whether a clock applies at all.
func (tm *TimeManager) Timed() bool {
	return tm.timed
}

// Elapsed returns the time elapsed since search started.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.startTime)
}

// Deadline is the hard stop, or the zero time without a clock.
func (tm *TimeManager) Deadline() time.Time {
	if !tm.timed {
		return time.Time{}
	}
	return tm.startTime.Add(tm.maximumTime)
}

func (tm *TimeManager) OptimumTime() time.Duration {
	return tm.optimumTime
}

func (tm *TimeManager) MaximumTime() time.Duration {
	return tm.maximumTime
}

// PastOptimum returns true if we've exceeded the optimum time.
func (tm *TimeManager) PastOptimum() bool {
	return tm.timed && tm.Elapsed() >= tm.optimumTime
}

// Adjust rescales the soft limit from its initial value: shorter when the
// best move has been stable for several iterations, longer (up to the hard
// limit) when it keeps changing. A fixed move time is never rescaled.
func (tm *TimeManager) Adjust(stability, changes int) {
	if tm.fixed {
		return
	}
	t := tm.baseOptimum
	switch {
	case stability >= 6:
		t = t * 40 / 100
	case stability >= 4:
		t = t * 60 / 100
	case stability >= 2:
		t = t * 80 / 100
	}
	switch {
	case changes >= 4:
		t *= 2
	case changes >= 2:
		t = t * 3 / 2
	}
	tm.optimumTime = min(t, tm.maximumTime)
}
