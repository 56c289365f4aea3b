package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/chesscore/internal/board"
)

// BenchPositions is the fixed bench suite: openings, middlegames with
// tactics, and endgames.
var BenchPositions = []string{
	board.StartFEN,
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
	"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
	"r1bqkb1r/pppp1ppp/2n2n2/4p2Q/2B1P3/8/PPPP1PPP/RNB1K1NR w KQkq - 4 4",
	"2kr3r/pp1q1ppp/2nbpn2/3p4/3P4/2NBPN2/PP1Q1PPP/2KR3R w - - 6 12",
	"6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1",
	"8/8/4k3/8/2p5/8/B2P2K1/8 w - - 0 1",
	"8/5k2/8/3KP3/8/8/8/8 w - - 0 1",
	"4k3/8/8/8/8/8/8/4K2R w K - 0 1",
}

// BenchResult is the outcome of searching one bench position.
type BenchResult struct {
	FEN   string        `json:"fen"`
	Move  string        `json:"move"`
	Score int           `json:"score"`
	Depth int           `json:"depth"`
	Nodes uint64        `json:"nodes"`
	Time  time.Duration `json:"time"`
}

// Bench searches every position to depth, each on a fresh engine with a
// hashMB table, running up to concurrency searches at once. Results keep
// the order of fens. newEval, when not nil, builds each engine's evaluator.
func Bench(ctx context.Context, fens []string, depth, hashMB, concurrency int, newEval func() Evaluator) ([]BenchResult, error) {
	positions := make([]*board.Position, len(fens))
	for i, fen := range fens {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			return nil, fmt.Errorf("bench position %d: %w", i, err)
		}
		positions[i] = pos
	}

	results := make([]BenchResult, len(positions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, pos := range positions {
		g.Go(func() error {
			e := NewEngine(hashMB)
			if newEval != nil {
				e.SetEvaluator(newEval())
			}
			r := e.BestMove(ctx, pos, nil, Limits{Depth: depth})
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = BenchResult{
				FEN:   fens[i],
				Move:  r.Move.String(),
				Score: r.Score,
				Depth: r.Depth,
				Nodes: r.Nodes,
				Time:  r.Time,
			}
			log.Debug().Int("position", i).Str("move", r.Move.String()).Uint64("nodes", r.Nodes).Msg("bench position done")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	nodes, elapsed := Summarize(results)
	log.Info().
		Int("positions", len(results)).
		Int("depth", depth).
		Uint64("nodes", nodes).
		Dur("search_time", elapsed).
		Msg("bench complete")
	return results, nil
}

// Summarize totals the nodes and the search time of a bench run.
func Summarize(results []BenchResult) (nodes uint64, elapsed time.Duration) {
	nodes = lo.SumBy(results, func(r BenchResult) uint64 { return r.Nodes })
	elapsed = lo.SumBy(results, func(r BenchResult) time.Duration { return r.Time })
	return nodes, elapsed
}
