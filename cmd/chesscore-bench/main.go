// Command chesscore-bench searches a fixed suite of positions, records the
// results and reports best moves that changed since the last run at the
// same depth. With -perft it runs a parallel perft divide instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/engine"
	"github.com/hailam/chesscore/internal/nnue"
	"github.com/hailam/chesscore/internal/storage"
)

var (
	depth       = flag.Int("depth", 8, "search depth per position")
	hashMB      = flag.Int("hash", 16, "transposition table size in MB per search")
	concurrency = flag.Int("concurrency", runtime.GOMAXPROCS(0), "positions searched at once")
	filter      = flag.String("filter", "", "only positions whose FEN contains this text")
	dbDir       = flag.String("db", "", "analysis database directory (default: user data dir)")
	noStore     = flag.Bool("no-store", false, "do not read or write the analysis database")
	nnueFile    = flag.String("nnue", "", "evaluate with this network file instead of the handcrafted evaluation")
	perft       = flag.Int("perft", 0, "run perft divide to this depth instead of the bench")
	fen         = flag.String("fen", board.StartFEN, "position for -perft")
	logLevel    = flag.String("log-level", "info", "stderr log level: trace, debug, info, warn, error")
	cpuProfile  = flag.Bool("cpuprofile", false, "write a CPU profile on exit")
	profileDir  = flag.String("profile-dir", ".", "directory for profiles")
)

func main() {
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	if *cpuProfile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*profileDir), profile.Quiet).Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *perft > 0 {
		err = runPerft(ctx)
	} else {
		err = runBench(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("bench failed")
		stop()
		os.Exit(1)
	}
}

func runPerft(ctx context.Context) error {
	pos, err := board.ParseFEN(*fen)
	if err != nil {
		return err
	}

	start := time.Now()
	entries, total, err := engine.Divide(ctx, pos, *perft)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	for _, e := range entries {
		fmt.Printf("%s: %d\n", e.Move, e.Nodes)
	}
	fmt.Printf("\nNodes searched: %d\n", total)
	log.Info().
		Int("depth", *perft).
		Uint64("nodes", total).
		Dur("elapsed", elapsed).
		Float64("nps", float64(total)/max(elapsed.Seconds(), 1e-9)).
		Msg("perft complete")
	return nil
}

func runBench(ctx context.Context) error {
	fens := lo.Filter(engine.BenchPositions, func(f string, _ int) bool {
		return strings.Contains(f, *filter)
	})
	if len(fens) == 0 {
		return fmt.Errorf("no bench position matches %q", *filter)
	}

	var newEval func() engine.Evaluator
	if *nnueFile != "" {
		net, err := nnue.LoadNetwork(*nnueFile)
		if err != nil {
			return err
		}
		newEval = func() engine.Evaluator { return nnue.New(net) }
		log.Info().Str("file", *nnueFile).Msg("network loaded")
	}

	results, err := engine.Bench(ctx, fens, *depth, *hashMB, *concurrency, newEval)
	if err != nil {
		return err
	}

	for i, r := range results {
		fmt.Printf("%2d  %-6s %7d %12d %10v  %s\n", i+1, r.Move, r.Score, r.Nodes, r.Time.Round(time.Millisecond), r.FEN)
	}
	nodes, elapsed := engine.Summarize(results)
	fmt.Printf("\n%d nodes in %v (%.0f nps)\n", nodes, elapsed.Round(time.Millisecond), float64(nodes)/max(elapsed.Seconds(), 1e-9))

	if *noStore {
		return nil
	}
	return record(results)
}

// record stores results and reports positions whose best move changed
// since the last run at the same depth.
func record(results []engine.BenchResult) error {
	dir := *dbDir
	if dir == "" {
		d, err := storage.DatabaseDir()
		if err != nil {
			return err
		}
		dir = d
	}
	store, err := storage.Open(dir)
	if err != nil {
		return err
	}
	defer store.Close()

	changed := 0
	for _, r := range results {
		pos, err := board.ParseFEN(r.FEN)
		if err != nil {
			return err
		}
		prev, err := store.Get(pos.Hash)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return err
		case prev.Depth == r.Depth && prev.Move != r.Move:
			changed++
			log.Warn().Str("fen", r.FEN).Str("was", prev.Move).Str("now", r.Move).Msg("best move changed")
		}

		if err := store.Put(pos.Hash, storage.Analysis{
			FEN:   r.FEN,
			Move:  r.Move,
			Score: r.Score,
			Depth: r.Depth,
			Nodes: r.Nodes,
			Time:  r.Time,
		}); err != nil {
			return err
		}
	}
	log.Info().Int("stored", len(results)).Int("changed", changed).Str("db", dir).Msg("results recorded")
	return nil
}
