package engine

import (
	"github.com/hailam/chesscore/internal/board"
)

// Move ordering priorities
const (
	TTMoveScore     = 1_000_000 // TT move gets highest priority
	CaptureBase     = 100_000
	QueenPromoScore = 100_800
	KillerScore1    = 90_000 // First killer move
	KillerScore2    = 89_000

	// Captures that lose material on the exchange sort after the killers.
	LosingCaptureBase = 50_000

	// Under-promotions to rook or bishop are almost never best.
	underPromoPenalty = -2000

	historyMax = 1 << 14
)

// pawnCaptureScore replaces SEE for pawn captures: a pawn never loses
// material by capturing, so the victim's value is enough.
var pawnCaptureScore = [6]int32{100, 220, 230, 400, 800, 0}

var promoScore = [6]int32{0, 500, underPromoPenalty, underPromoPenalty, QueenPromoScore, 0}

// MoveOrderer handles move ordering for the search.
type MoveOrderer struct {
	// Killer moves (quiet moves that caused beta cutoffs)
	killers [MaxPly][2]board.Move

	// History heuristic, indexed by side to move, from and to.
	history [2][64][64]int
}

// NewMoveOrderer creates a new move orderer.
func NewMoveOrderer() *MoveOrderer {
	return &MoveOrderer{}
}

// Clear forgets everything, for a new game.
func (mo *MoveOrderer) Clear() {
	*mo = MoveOrderer{}
}

// Age prepares for a new search: killers are position specific and go,
// history is halved.
func (mo *MoveOrderer) Age() {
	mo.killers = [MaxPly][2]board.Move{}
	for c := range mo.history {
		for from := range mo.history[c] {
			for to := range mo.history[c][from] {
				mo.history[c][from][to] /= 2
			}
		}
	}
}

// Score assigns ordering scores to every move of ml. The caller sorts.
func (mo *MoveOrderer) Score(pos *board.Position, ml *board.MoveList, ply int, ttMove board.Move) {
	us := pos.SideToMove
	enemyPawnAttacks := pawnAttacks(pos.Pieces[us.Other()][board.Pawn], us.Other())

	for i := 0; i < ml.Len(); i++ {
		m := ml.Get(i)
		ml.SetScore(i, mo.scoreMove(pos, m, ply, ttMove, enemyPawnAttacks))
	}
}

// ScoreCaptures orders quiescence moves: SEE for captures, fixed scores for
// promotions, history for the quiet evasions generated in check.
func (mo *MoveOrderer) ScoreCaptures(pos *board.Position, ml *board.MoveList) {
	for i := 0; i < ml.Len(); i++ {
		m := ml.Get(i)
		var score int32
		switch {
		case m.IsCapture():
			score = mo.captureScore(pos, m)
		case m.IsPromotion():
			score = promoScore[m.Promotion()]
		default:
			score = int32(mo.historyScore(pos.SideToMove, m))
		}
		ml.SetScore(i, score)
	}
}

func (mo *MoveOrderer) scoreMove(pos *board.Position, m board.Move, ply int, ttMove board.Move, enemyPawnAttacks board.Bitboard) int32 {
	if ttMove != board.NoMove && m.SameAs(ttMove) {
		return TTMoveScore
	}

	if m.IsCapture() {
		score := mo.captureScore(pos, m)
		if m.IsPromotion() {
			score += promoScore[m.Promotion()]
		}
		return score
	}
	if m.IsPromotion() {
		return promoScore[m.Promotion()]
	}

	if ply < MaxPly {
		if m == mo.killers[ply][0] {
			return KillerScore1
		}
		if m == mo.killers[ply][1] {
			return KillerScore2
		}
	}

	score := int32(mo.historyScore(pos.SideToMove, m))
	if pt := m.Piece().Type(); pt != board.Pawn && enemyPawnAttacks.IsSet(m.To()) {
		score -= int32(board.PieceValue[pt] / 2)
	}
	return score
}

func (mo *MoveOrderer) captureScore(pos *board.Position, m board.Move) int32 {
	if m.Piece().Type() == board.Pawn {
		return CaptureBase + pawnCaptureScore[m.Captured()]
	}
	see := SEE(pos, m)
	if see < 0 {
		return LosingCaptureBase + int32(see)
	}
	// Most valuable victim breaks ties among equal exchanges.
	return CaptureBase + int32(see) + int32(board.PieceValue[m.Captured()]/16)
}

// historyScore compresses the raw history value with a square root so a
// few deep cutoffs do not drown every other quiet move.
func (mo *MoveOrderer) historyScore(c board.Color, m board.Move) int {
	h := mo.history[c][m.From()][m.To()]
	if h < 0 {
		return -isqrt(-h)
	}
	return isqrt(h)
}

// History returns the raw history value of m for side c.
func (mo *MoveOrderer) History(c board.Color, m board.Move) int {
	return mo.history[c][m.From()][m.To()]
}

// IsKiller reports whether m is one of the killers at ply.
func (mo *MoveOrderer) IsKiller(m board.Move, ply int) bool {
	return ply < MaxPly && (m == mo.killers[ply][0] || m == mo.killers[ply][1])
}

// UpdateKillers adds a killer move at the given ply.
func (mo *MoveOrderer) UpdateKillers(m board.Move, ply int) {
	if ply >= MaxPly || mo.killers[ply][0] == m {
		return
	}
	mo.killers[ply][1] = mo.killers[ply][0]
	mo.killers[ply][0] = m
}

// UpdateHistory rewards the quiet move that caused a cutoff and punishes the
// quiet moves tried before it.
func (mo *MoveOrderer) UpdateHistory(c board.Color, best board.Move, tried []board.Move, depth int) {
	bonus := min(depth*depth, historyMax/4)
	mo.addHistory(c, best, bonus)
	for _, m := range tried {
		mo.addHistory(c, m, -bonus)
	}
}

// addHistory applies the gravity formula, which keeps entries within
// +-historyMax without periodic rescaling.
func (mo *MoveOrderer) addHistory(c board.Color, m board.Move, bonus int) {
	h := &mo.history[c][m.From()][m.To()]
	*h += bonus - *h*abs(bonus)/historyMax
}

func pawnAttacks(pawns board.Bitboard, c board.Color) board.Bitboard {
	if c == board.White {
		return pawns.NorthEast() | pawns.NorthWest()
	}
	return pawns.SouthEast() | pawns.SouthWest()
}
