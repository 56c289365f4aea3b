// Package tablebase provides endgame tablebase probers for the search.
// Every prober reports distance to mate in plies from the side to move's
// view, the contract engine.Prober expects.
package tablebase

import (
	"context"

	"github.com/hailam/chesscore/internal/board"
)

// WDL represents Win/Draw/Loss result.
type WDL int

const (
	WDLLoss        WDL = -2
	WDLBlessedLoss WDL = -1 // Loss the 50-move rule turns into a draw
	WDLDraw        WDL = 0
	WDLCursedWin   WDL = 1 // Win the 50-move rule turns into a draw
	WDLWin         WDL = 2
)

func (w WDL) String() string {
	switch w {
	case WDLLoss:
		return "loss"
	case WDLBlessedLoss:
		return "blessed-loss"
	case WDLDraw:
		return "draw"
	case WDLCursedWin:
		return "cursed-win"
	case WDLWin:
		return "win"
	}
	return "unknown"
}

// UnknownDTM stands in for the distance of a won position whose source
// gives a result but no distance. It keeps the score below the mate range.
const UnknownDTM = 1000

// Result is one tablebase answer.
type Result struct {
	WDL WDL
	DTM int // plies to mate, signed like WDL; 0 for draws
}

// dtm folds a result into the signed distance the search consumes. Results
// the 50-move rule turns into draws score as draws.
func (r Result) dtm() int {
	switch r.WDL {
	case WDLWin:
		if r.DTM <= 0 {
			return UnknownDTM
		}
		return r.DTM
	case WDLLoss:
		if r.DTM >= 0 {
			return -UnknownDTM
		}
		return r.DTM
	}
	return 0
}

// NoopProber is a prober that always returns "not found".
// Use this as a placeholder when tablebases are not available.
type NoopProber struct{}

func (NoopProber) Probe(context.Context, *board.Position) (int, bool) {
	return 0, false
}

func (NoopProber) MaxPieces() int {
	return 0
}
