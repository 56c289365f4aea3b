package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hailam/chesscore/internal/board"
)

// DivideEntry is the perft count below one root move.
type DivideEntry struct {
	Move  board.Move
	Nodes uint64
}

// Divide runs perft to depth below every root move in parallel, each on its
// own copy of pos, and returns the per-move counts in generation order with
// their total. Cancelling ctx abandons moves not yet started.
func Divide(ctx context.Context, pos *board.Position, depth int) ([]DivideEntry, uint64, error) {
	if depth < 1 {
		return nil, 1, nil
	}
	moves, _ := pos.LegalMoves()
	entries := make([]DivideEntry, moves.Len())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range moves.Slice() {
		entries[i].Move = m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			child := pos.Copy()
			child.MakeMove(m)
			entries[i].Nodes = board.Perft(child, depth-1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var total uint64
	for _, e := range entries {
		total += e.Nodes
	}
	return entries, total, nil
}
