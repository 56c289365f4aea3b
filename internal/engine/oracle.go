package engine

import (
	"context"

	"github.com/hailam/chesscore/internal/board"
)

// Evaluator is the static evaluation the search consults at its leaves.
// The search calls Init once at the root, then OnMake after every make and
// OnUnmake before every unmake, so an implementation can keep incremental
// state. A null move is reported as OnMake(board.NoMove).
type Evaluator interface {
	Init(pos *board.Position)
	// Evaluate scores pos in centipawns from the side to move's view.
	Evaluate(pos *board.Position) int
	OnMake(m board.Move)
	OnUnmake()
}

// Prober answers endgame tablebase queries.
type Prober interface {
	// Probe returns the distance to mate in plies from the side to move's
	// view: positive when it wins, negative when it loses, zero for a draw.
	// ok is false when the position is not covered. A probe that may block
	// must return once ctx is done; the search cancels it at its deadline.
	Probe(ctx context.Context, pos *board.Position) (dtm int, ok bool)
	// MaxPieces is the largest piece count, kings included, Probe covers.
	MaxPieces() int
}

// clearer is implemented by evaluators that cache across searches.
type clearer interface {
	Clear()
}

// tbScore converts a tablebase distance to mate into a search score at ply.
func tbScore(dtm, ply int) int {
	switch {
	case dtm > 0:
		return max(MateScore-ply-dtm, tbWinScore)
	case dtm < 0:
		return min(-MateScore+ply-dtm, -tbWinScore)
	}
	return 0
}
