package engine

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/hailam/chesscore/internal/board"
)

// Search constants
const (
	Infinity  = 32000
	MateScore = 31000
	// MaxPly bounds the search height. Frames, killers and the PV table are
	// sized by it and no node deeper than MaxPly-1 is expanded.
	MaxPly = 128
	// Scores beyond MateBound are mates, stored relative to the node.
	MateBound = MateScore - MaxPly

	tbWinScore = 20000
)

// Pruning constants
const (
	pollInterval = 2048

	rfpMargin         = 80
	rfpMaxDepth       = 6
	razorMargin       = 300
	probcutDepth      = 5
	probcutMargin     = 200
	probcutReduction  = 4
	iidDepth          = 6
	deltaMargin       = 200
	bigDelta          = 1100 // a queen plus margin; nothing recovers more
	seePruneMaxDepth  = 3
	futilityMaxDepth  = 3
	lmpMaxDepth       = 7
	maxTrackedQuiets  = 64
	aspirationDelta   = 25
	aspirationMinimum = 4
)

var futilityMargin = [futilityMaxDepth + 1]int{0, 200, 300, 500}

// LMP (Late Move Pruning) thresholds by depth
var lmpThreshold = [lmpMaxDepth + 1]int{0, 3, 5, 9, 15, 23, 33, 45}

var lmrReductions [64][64]int

func init() {
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			lmrReductions[d][m] = int(0.75 + math.Log(float64(d))*math.Log(float64(m))/2.25)
		}
	}
}

// PVTable stores the principal variation, triangular by ply.
type PVTable struct {
	length [MaxPly]int
	moves  [MaxPly][MaxPly]board.Move
}

func (pv *PVTable) update(ply int, m board.Move) {
	pv.moves[ply][ply] = m
	for j := ply + 1; j < pv.length[ply+1]; j++ {
		pv.moves[ply][j] = pv.moves[ply+1][j]
	}
	pv.length[ply] = max(pv.length[ply+1], ply+1)
}

// Line returns a copy of the root principal variation.
func (pv *PVTable) Line() []board.Move {
	return append([]board.Move(nil), pv.moves[0][:pv.length[0]]...)
}

// frame is the per-ply state of the recursion.
type frame struct {
	gen        board.MoveGen
	undo       board.Undo
	staticEval int
	quiets     [maxTrackedQuiets]board.Move
}

// SearchContext holds everything one BestMove call mutates: the working
// position, its repetition record, the per-ply frames and the counters.
// The transposition table and the orderer are borrowed from the Engine.
type SearchContext struct {
	pos     *board.Position
	rep     board.RepetitionTracker
	tt      *TranspositionTable
	orderer *MoveOrderer
	eval    Evaluator
	prober  Prober

	stack [MaxPly]frame
	pv    PVTable

	nodes    uint64
	tbHits   uint64
	selDepth int

	ctx      context.Context
	deadline time.Time
	maxNodes uint64
	stop     *atomic.Bool
	stopped  bool
}

// poll checks every stop condition. It runs every pollInterval nodes, not
// every node, to keep the clock off the hot path.
func (s *SearchContext) poll() {
	switch {
	case s.stop != nil && s.stop.Load():
	case s.ctx != nil && s.ctx.Err() != nil:
	case !s.deadline.IsZero() && time.Now().After(s.deadline):
	case s.maxNodes > 0 && s.nodes >= s.maxNodes:
	default:
		return
	}
	s.stopped = true
}

func (s *SearchContext) visit(ply int) {
	s.nodes++
	if s.nodes%pollInterval == 0 {
		s.poll()
	}
	s.selDepth = max(s.selDepth, ply)
}

func (s *SearchContext) evaluate() int {
	return clamp(s.eval.Evaluate(s.pos), -tbWinScore+1, tbWinScore-1)
}

func (s *SearchContext) makeMove(m board.Move, ply int) {
	s.stack[ply].undo = s.pos.MakeMove(m)
	s.rep.Push(s.pos.Hash)
	s.eval.OnMake(m)
}

func (s *SearchContext) unmakeMove(m board.Move, ply int) {
	s.eval.OnUnmake()
	s.rep.Pop()
	s.pos.UnmakeMove(m, s.stack[ply].undo)
}

// drawScore is zero with a one point jitter by height, which keeps the
// search from steering into repetitions when it is slightly ahead.
func drawScore(ply int) int {
	return 1 - (ply & 2)
}

func (s *SearchContext) isDraw() bool {
	pos := s.pos
	if pos.IsFiftyMoveDraw() || pos.IsInsufficientMaterial() {
		return true
	}
	return s.rep.IsTwoFold(pos.Hash, pos.HalfMoveClock) ||
		s.rep.IsThreeFold(pos.Hash, pos.HalfMoveClock)
}

// pvSearch is a fail-soft principal variation search. Nodes with
// beta-alpha > 1 are PV nodes; everything else is searched with a null
// window and is a candidate for pruning.
func (s *SearchContext) pvSearch(alpha, beta, depth, ply int, nullAllowed bool) int {
	s.pv.length[ply] = ply
	if depth <= 0 {
		return s.qsearch(alpha, beta, ply)
	}
	if ply >= MaxPly-1 {
		return s.evaluate()
	}

	s.visit(ply)
	if s.stopped {
		return 0
	}

	pos := s.pos
	pvNode := beta-alpha > 1
	root := ply == 0

	if !root {
		if s.isDraw() {
			return drawScore(ply)
		}
		// Mate distance pruning
		alpha = max(alpha, -MateScore+ply)
		beta = min(beta, MateScore-ply-1)
		if alpha >= beta {
			return alpha
		}
	}

	inCheck := pos.Checkers != 0

	// Probe transposition table
	var ttMove board.Move
	entry, ttHit := s.tt.Probe(pos.Hash)
	if ttHit {
		ttMove = entry.Move
		score := AdjustScoreFromTT(int(entry.Score), ply)
		if !pvNode && !root && int(entry.Depth) >= depth && abs(score) <= MateBound {
			switch entry.Flag {
			case TTExact:
				return score
			case TTLowerBound:
				alpha = max(alpha, score)
			case TTUpperBound:
				beta = min(beta, score)
			}
			if alpha >= beta {
				return score
			}
		}
	}

	// Tablebase probe, right after a capture or pawn move brought the
	// position into range.
	if s.prober != nil && !root && pos.HalfMoveClock == 0 && pos.PieceCount() <= s.prober.MaxPieces() {
		dtm, ok := s.prober.Probe(s.ctx, pos)
		if ok {
			s.tbHits++
			score := tbScore(dtm, ply)
			s.tt.Store(pos.Hash, MaxPly-1, AdjustScoreToTT(score, ply), 0, TTExact, board.NoMove)
			return score
		}
		// The probe gave up because the search ran out of time.
		if s.ctx.Err() != nil {
			s.stopped = true
			return 0
		}
	}

	staticEval := -Infinity
	if !inCheck {
		switch {
		case ttHit && entry.StaticEval != 0:
			staticEval = int(entry.StaticEval)
		default:
			staticEval = s.evaluate()
		}
	}
	s.stack[ply].staticEval = staticEval
	improving := !inCheck && ply >= 2 && staticEval > s.stack[ply-2].staticEval

	if !pvNode && !inCheck && !root {
		// Reverse futility pruning
		if depth <= rfpMaxDepth && abs(beta) < MateBound {
			margin := rfpMargin * depth
			if improving {
				margin -= rfpMargin / 2
			}
			if staticEval-margin >= beta {
				return staticEval
			}
		}

		// Razoring
		if depth <= 2 && staticEval+razorMargin+100*depth <= alpha {
			score := s.qsearch(alpha, alpha+1, ply)
			if s.stopped {
				return 0
			}
			if score <= alpha {
				return score
			}
		}

		// Null move pruning, skipped without pieces where zugzwang is likely.
		if nullAllowed && depth >= 3 && staticEval >= beta && pos.HasNonPawnMaterial() {
			r := 3 + depth/6 + min((staticEval-beta)/200, 3)
			u := pos.MakeNullMove()
			s.rep.Push(pos.Hash)
			s.eval.OnMake(board.NoMove)
			score := -s.pvSearch(-beta, -beta+1, depth-1-r, ply+1, false)
			s.eval.OnUnmake()
			s.rep.Pop()
			pos.UnmakeNullMove(u)
			if s.stopped {
				return 0
			}
			if score >= beta {
				if score > MateBound {
					score = beta
				}
				return score
			}
		}

		// ProbCut: a capture that beats beta by a margin at reduced depth
		// almost certainly beats beta at full depth.
		if depth >= probcutDepth && abs(beta) < MateBound {
			if score, ok := s.probCut(beta+probcutMargin, depth, ply, staticEval); ok {
				return score
			}
		}
	}

	// Internal iterative deepening
	if ttMove == board.NoMove && depth >= iidDepth && (pvNode || depth >= iidDepth+2) {
		s.pvSearch(alpha, beta, depth-2, ply, nullAllowed)
		if s.stopped {
			return 0
		}
		if e, ok := s.tt.Probe(pos.Hash); ok {
			ttMove = e.Move
		}
	}

	futile := !pvNode && !inCheck && !root && depth <= futilityMaxDepth &&
		staticEval+futilityMargin[depth] <= alpha

	extension := 0
	if inCheck {
		extension = 1
	}

	us := pos.SideToMove
	f := &s.stack[ply]
	quiets := f.quiets[:0]
	bestScore := -Infinity
	bestMove := board.NoMove
	flag := TTUpperBound
	moveCount := 0

	f.gen.Init(pos, false)
batches:
	for f.gen.NextBatch() {
		batch := f.gen.Batch()
		s.orderer.Score(pos, batch, ply, ttMove)
		batch.Sort()

		for i := 0; i < batch.Len(); i++ {
			m := batch.Get(i)
			quiet := m.IsQuiet()

			if !root && moveCount > 0 && bestScore > -MateBound && !inCheck {
				if quiet && futile {
					continue
				}
				if quiet && !pvNode && depth <= lmpMaxDepth {
					threshold := lmpThreshold[depth]
					if !improving {
						threshold = threshold * 2 / 3
					}
					if moveCount >= threshold {
						continue
					}
				}
				if m.IsCapture() && depth <= seePruneMaxDepth && SEE(pos, m) < -100*depth {
					continue
				}
			}

			s.makeMove(m, ply)
			moveCount++
			givesCheck := pos.Checkers != 0
			newDepth := depth - 1 + extension

			var score int
			if moveCount == 1 {
				score = -s.pvSearch(-beta, -alpha, newDepth, ply+1, true)
			} else {
				// Late move reductions
				r := 0
				if depth >= 3 && moveCount > 3 && quiet && !inCheck && !givesCheck {
					r = lmrReductions[min(depth, 63)][min(moveCount, 63)]
					if !improving {
						r++
					}
					if pvNode {
						r--
					}
					if s.orderer.IsKiller(m, ply) {
						r--
					}
					r -= s.orderer.History(us, m) / (historyMax / 4)
					r = clamp(r, 0, newDepth-1)
				}

				score = -s.pvSearch(-alpha-1, -alpha, newDepth-r, ply+1, true)
				if score > alpha && r > 0 {
					score = -s.pvSearch(-alpha-1, -alpha, newDepth, ply+1, true)
				}
				if score > alpha && score < beta {
					score = -s.pvSearch(-beta, -alpha, newDepth, ply+1, true)
				}
			}

			s.unmakeMove(m, ply)
			if s.stopped {
				return 0
			}

			if score > bestScore {
				bestScore = score
				bestMove = m
				if score > alpha {
					alpha = score
					flag = TTExact
					s.pv.update(ply, m)
					if score >= beta {
						flag = TTLowerBound
						if quiet {
							s.orderer.UpdateKillers(m, ply)
							s.orderer.UpdateHistory(us, m, quiets, depth)
						}
						break batches
					}
				}
			}
			if quiet && len(quiets) < maxTrackedQuiets {
				quiets = append(quiets, m)
			}
		}
	}

	if moveCount == 0 {
		if inCheck {
			return -MateScore + ply
		}
		return 0
	}

	s.tt.Store(pos.Hash, depth, AdjustScoreToTT(bestScore, ply), staticEval, flag, bestMove)
	return bestScore
}

// probCut searches captures with a null window around pcBeta, first in
// quiescence and then at reduced depth for those that pass.
func (s *SearchContext) probCut(pcBeta, depth, ply, staticEval int) (int, bool) {
	pos := s.pos
	g := &s.stack[ply].gen
	g.Init(pos, true)
	for g.NextBatch() {
		batch := g.Batch()
		s.orderer.ScoreCaptures(pos, batch)
		batch.Sort()
		for i := 0; i < batch.Len(); i++ {
			m := batch.Get(i)
			if !m.IsCapture() || SEE(pos, m) < pcBeta-staticEval {
				continue
			}
			s.makeMove(m, ply)
			score := -s.qsearch(-pcBeta, -pcBeta+1, ply+1)
			if score >= pcBeta {
				score = -s.pvSearch(-pcBeta, -pcBeta+1, depth-probcutReduction, ply+1, true)
			}
			s.unmakeMove(m, ply)
			if s.stopped {
				return 0, false
			}
			if score >= pcBeta {
				return score, true
			}
		}
	}
	return 0, false
}

// qsearch resolves captures until the position is quiet. Out of check the
// side to move may stand pat on the static evaluation; in check every
// evasion is searched.
func (s *SearchContext) qsearch(alpha, beta, ply int) int {
	s.pv.length[ply] = ply
	if ply >= MaxPly-1 {
		return s.evaluate()
	}

	s.visit(ply)
	if s.stopped {
		return 0
	}

	pos := s.pos
	if pos.IsFiftyMoveDraw() || pos.IsInsufficientMaterial() {
		return drawScore(ply)
	}

	pvNode := beta-alpha > 1
	if entry, ok := s.tt.Probe(pos.Hash); ok && !pvNode {
		score := AdjustScoreFromTT(int(entry.Score), ply)
		if abs(score) <= MateBound {
			switch {
			case entry.Flag == TTExact,
				entry.Flag == TTLowerBound && score >= beta,
				entry.Flag == TTUpperBound && score <= alpha:
				return score
			}
		}
	}

	inCheck := pos.Checkers != 0
	bestScore := -Infinity
	standPat := 0
	if !inCheck {
		standPat = s.evaluate()
		if standPat >= beta {
			return standPat
		}
		// Delta pruning: even winning a queen would not reach alpha.
		if standPat+bigDelta < alpha {
			return standPat
		}
		alpha = max(alpha, standPat)
		bestScore = standPat
	}

	g := &s.stack[ply].gen
	g.Init(pos, true)
	moveCount := 0
	for g.NextBatch() {
		batch := g.Batch()
		s.orderer.ScoreCaptures(pos, batch)
		batch.Sort()

		for i := 0; i < batch.Len(); i++ {
			m := batch.Get(i)
			if !inCheck {
				gain := board.PieceValue[m.Captured()]
				if m.IsPromotion() {
					gain += board.PieceValue[m.Promotion()] - board.PieceValue[board.Pawn]
				}
				if standPat+gain+deltaMargin <= alpha {
					continue
				}
				if SEE(pos, m) < 0 {
					continue
				}
			}

			s.makeMove(m, ply)
			moveCount++
			score := -s.qsearch(-beta, -alpha, ply+1)
			s.unmakeMove(m, ply)
			if s.stopped {
				return 0
			}

			if score > bestScore {
				bestScore = score
				if score > alpha {
					alpha = score
					s.pv.update(ply, m)
					if score >= beta {
						return score
					}
				}
			}
		}
	}

	if inCheck && moveCount == 0 {
		return -MateScore + ply
	}
	return bestScore
}
