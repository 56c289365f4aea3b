package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hailam/chesscore/internal/engine"
	"github.com/hailam/chesscore/internal/uci"
)

var (
	hashMB       = flag.Int("hash", engine.DefaultHashMB, "transposition table size in MB")
	logLevel     = flag.String("log-level", "warn", "stderr log level: trace, debug, info, warn, error")
	cpuProfile   = flag.Bool("cpuprofile", false, "write a CPU profile on exit")
	memProfile   = flag.Bool("memprofile", false, "write a heap profile on exit")
	profileDir   = flag.String("profile-dir", ".", "directory for profiles")
	tablebaseURL = flag.String("tablebase", "", "probe this Lichess-compatible tablebase endpoint (empty disables)")
	nnueFile     = flag.String("nnue", "", "evaluate with this network file instead of the handcrafted evaluation")
)

func main() {
	flag.Parse()
	setupLogging(*logLevel)

	switch {
	case *cpuProfile:
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*profileDir), profile.Quiet).Stop()
	case *memProfile:
		defer profile.Start(profile.MemProfile, profile.ProfilePath(*profileDir), profile.Quiet).Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.NewEngine(*hashMB)
	protocol := uci.New(eng, os.Stdin, os.Stdout)
	if *tablebaseURL != "" {
		protocol.Execute(ctx, "setoption name TablebaseURL value "+*tablebaseURL)
		protocol.Execute(ctx, "setoption name UseTablebase value true")
	}
	if *nnueFile != "" {
		protocol.Execute(ctx, "setoption name EvalFile value "+*nnueFile)
	}

	log.Info().Int("hash_mb", *hashMB).Msg("engine ready")
	if err := protocol.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("reading commands")
	}
}

// setupLogging sends human-readable logs to stderr; stdout belongs to the
// protocol.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using warn")
	}
}
