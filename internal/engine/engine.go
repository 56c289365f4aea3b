// Package engine searches chess positions: a transposition table, move
// ordering and a principal variation search driven by iterative deepening.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/eval"
)

const (
	DefaultHashMB       = 64
	DefaultMoveOverhead = 30 * time.Millisecond
)

// SearchInfo contains information about the current search.
type SearchInfo struct {
	Depth    int
	SelDepth int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int // Permille of hash table used
	TBHits   uint64
}

// NPS returns nodes per second.
func (si SearchInfo) NPS() uint64 {
	ms := si.Time.Milliseconds()
	if ms == 0 {
		return 0
	}
	return si.Nodes * 1000 / uint64(ms)
}

// Result is what BestMove returns. Move is NoMove only when the position
// has no legal moves.
type Result struct {
	Move     board.Move
	Ponder   board.Move
	Score    int
	Depth    int
	SelDepth int
	Nodes    uint64
	TBHits   uint64
	Time     time.Duration
	PV       []board.Move
}

// Engine is the chess AI engine. It owns the tables that persist between
// searches of one game; each BestMove call runs on its own SearchContext.
// An Engine runs one search at a time; Stop may be called from any goroutine.
type Engine struct {
	tt       *TranspositionTable
	orderer  *MoveOrderer
	eval     Evaluator
	prober   Prober
	overhead time.Duration
	stop     atomic.Bool

	// cancel ends the running search's context, releasing a blocked
	// tablebase probe on Stop.
	mu     sync.Mutex
	cancel context.CancelFunc

	// Callbacks
	OnInfo func(SearchInfo)
}

// NewEngine creates a new chess engine with the given transposition table size in MB.
func NewEngine(hashMB int) *Engine {
	return &Engine{
		tt:       NewTranspositionTable(hashMB),
		orderer:  NewMoveOrderer(),
		eval:     eval.New(),
		overhead: DefaultMoveOverhead,
	}
}

func (e *Engine) SetEvaluator(ev Evaluator) {
	e.eval = ev
}

func (e *Engine) Evaluator() Evaluator { return e.eval }

// SetProber installs a tablebase prober; nil disables probing.
func (e *Engine) SetProber(p Prober) {
	e.prober = p
}

// SetHashSize replaces the transposition table, dropping its contents.
func (e *Engine) SetHashSize(mb int) {
	e.tt = NewTranspositionTable(mb)
}

func (e *Engine) SetMoveOverhead(d time.Duration) {
	e.overhead = max(d, 0)
}

// NewGame clears every table so nothing learned in a previous game leaks
// into the next.
func (e *Engine) NewGame() {
	e.tt.Clear()
	e.orderer.Clear()
	if c, ok := e.eval.(clearer); ok {
		c.Clear()
	}
	log.Debug().Uint64("tt_entries", e.tt.Size()).Msg("new game")
}

// ClearHash empties the transposition table only.
func (e *Engine) ClearHash() {
	e.tt.Clear()
}

// Stop stops the current search. BestMove still returns its best move.
func (e *Engine) Stop() {
	e.stop.Store(true)
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
}

// searchContext derives the context a search and its tablebase probes run
// under: it ends at the hard deadline, on Stop or when parent ends.
func (e *Engine) searchContext(parent context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	if !deadline.IsZero() {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, deadline)
		inner := cancel
		cancel = func() {
			cancelDeadline()
			inner()
		}
	}
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	if e.stop.Load() {
		cancel()
	}
	return ctx, func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}
}

// HashFull reports transposition table usage in permille.
func (e *Engine) HashFull() int {
	return e.tt.HashFull()
}

// Evaluate returns the static evaluation of pos from the side to move's view.
func (e *Engine) Evaluate(pos *board.Position) int {
	e.eval.Init(pos)
	return e.eval.Evaluate(pos)
}

// BestMove searches pos within limits and returns the best move found by the
// last completed iteration. rep holds the game's position hashes, most
// recent last; it may be nil and is never modified. The search stops at
// the depth limit, the node limit, the clock, Stop or ctx cancellation,
// whichever comes first.
func (e *Engine) BestMove(ctx context.Context, pos *board.Position, rep *board.RepetitionTracker, limits Limits) Result {
	start := time.Now()
	e.stop.Store(false)

	work := pos.Copy()
	s := &SearchContext{
		pos:      work,
		tt:       e.tt,
		orderer:  e.orderer,
		eval:     e.eval,
		prober:   e.prober,
		maxNodes: limits.Nodes,
		stop:     &e.stop,
	}
	if rep != nil {
		s.rep = *rep
	}
	if s.rep.Len() == 0 || s.rep.Top() != work.Hash {
		s.rep.Push(work.Hash)
	}

	rootMoves, inCheck := work.LegalMoves()
	if rootMoves.Len() == 0 {
		res := Result{}
		if inCheck {
			res.Score = -MateScore
		}
		return res
	}

	e.eval.Init(work)
	e.orderer.Age()

	var tm TimeManager
	tm.Init(limits, work.SideToMove, gamePly(work), e.overhead)
	s.deadline = tm.Deadline()
	var done context.CancelFunc
	s.ctx, done = e.searchContext(ctx, s.deadline)
	defer done()

	// Until an iteration completes, the best ordered move stands in.
	var ttMove board.Move
	if entry, ok := e.tt.Probe(work.Hash); ok {
		ttMove = entry.Move
	}
	e.orderer.Score(work, rootMoves, 0, ttMove)
	rootMoves.Sort()
	res := Result{Move: rootMoves.Get(0)}

	maxDepth := MaxPly - 1
	if limits.Depth > 0 {
		maxDepth = min(limits.Depth, maxDepth)
	}

	score := 0
	stability, changes := 0, 0
	for depth := 1; depth <= maxDepth; depth++ {
		s.selDepth = 0
		v, ok := s.aspiration(depth, score)
		if !ok {
			break
		}
		line := s.pv.Line()
		if len(line) == 0 || !rootMoves.Contains(line[0]) {
			break
		}
		score = v

		switch {
		case res.Depth == 0:
		case line[0] == res.Move:
			stability++
			changes = max(changes-1, 0)
		default:
			stability = 0
			changes++
		}

		res.Move = line[0]
		res.Ponder = board.NoMove
		if len(line) > 1 {
			res.Ponder = line[1]
		}
		res.Score = v
		res.Depth = depth
		res.SelDepth = s.selDepth
		res.PV = line

		info := SearchInfo{
			Depth:    depth,
			SelDepth: s.selDepth,
			Score:    v,
			Nodes:    s.nodes,
			Time:     time.Since(start),
			PV:       line,
			HashFull: e.tt.HashFull(),
			TBHits:   s.tbHits,
		}
		log.Debug().
			Int("depth", depth).
			Int("seldepth", s.selDepth).
			Int("score", v).
			Uint64("nodes", s.nodes).
			Str("best", line[0].String()).
			Dur("elapsed", info.Time).
			Msg("iteration complete")
		if e.OnInfo != nil {
			e.OnInfo(info)
		}

		if tm.Timed() {
			if rootMoves.Len() == 1 {
				break
			}
			tm.Adjust(stability, changes)
			if tm.PastOptimum() {
				break
			}
		}
		// A mate found within the full-width horizon cannot get shorter.
		if !limits.Infinite && abs(v) > MateBound && MateScore-abs(v) <= depth {
			break
		}
	}

	res.Nodes = s.nodes
	res.TBHits = s.tbHits
	res.Time = time.Since(start)
	return res
}

// aspiration searches depth inside a window around the previous score and
// widens it on every fail until the score falls inside.
func (s *SearchContext) aspiration(depth, prev int) (int, bool) {
	alpha, beta := -Infinity, Infinity
	delta := aspirationDelta
	if depth >= aspirationMinimum {
		alpha = max(prev-delta, -Infinity)
		beta = min(prev+delta, Infinity)
	}

	for {
		v := s.pvSearch(alpha, beta, depth, 0, false)
		if s.stopped {
			return 0, false
		}
		switch {
		case v <= alpha:
			beta = (alpha + beta) / 2
			alpha = max(v-delta, -Infinity)
		case v >= beta:
			beta = min(v+delta, Infinity)
		default:
			return v, true
		}
		delta += delta / 2
	}
}

func gamePly(pos *board.Position) int {
	ply := (pos.FullMoveNumber - 1) * 2
	if pos.SideToMove == board.Black {
		ply++
	}
	return ply
}

// MateIn converts a mate score into moves to mate, negative when the side
// to move is being mated. ok is false for ordinary scores.
func MateIn(score int) (moves int, ok bool) {
	switch {
	case score > MateBound:
		return (MateScore - score + 1) / 2, true
	case score < -MateBound:
		return -(MateScore + score) / 2, true
	}
	return 0, false
}
