// Package uci drives the engine over the Universal Chess Interface line
// protocol.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/engine"
	"github.com/hailam/chesscore/internal/eval"
	"github.com/hailam/chesscore/internal/nnue"
	"github.com/hailam/chesscore/internal/tablebase"
)

const (
	EngineName   = "chesscore"
	EngineAuthor = "the chesscore authors"
	maxHashMB    = 4096
)

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	engine *engine.Engine
	in     io.Reader

	outMu sync.Mutex
	out   io.Writer

	position *board.Position
	// Position history for repetition detection, current position last.
	history board.RepetitionTracker

	tbEndpoint string
	tbEnabled  bool

	// Search state, touched only by the command loop.
	cancel     context.CancelFunc
	searchDone chan struct{}
	infinite   bool
}

// New creates a new UCI protocol handler reading commands from in and
// writing responses to out.
func New(eng *engine.Engine, in io.Reader, out io.Writer) *UCI {
	u := &UCI{
		engine:     eng,
		in:         in,
		out:        out,
		tbEndpoint: tablebase.DefaultLichessEndpoint,
	}
	u.resetPosition(board.NewPosition())
	return u
}

// Run reads commands until quit, end of input or ctx cancellation. At end
// of input a running finite search is allowed to finish.
func (u *UCI) Run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(u.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			u.handleStop()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				u.wait()
				return <-scanErr
			}
			if !u.Execute(ctx, line) {
				return nil
			}
		}
	}
}

// Execute runs one command line. It returns false after quit.
func (u *UCI) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "uci":
		u.handleUCI()
	case "isready":
		u.send("readyok")
	case "ucinewgame":
		u.handleNewGame()
	case "position":
		u.handlePosition(args)
	case "go":
		u.handleGo(ctx, args)
	case "stop":
		u.handleStop()
	case "quit":
		u.handleStop()
		return false
	case "setoption":
		u.handleSetOption(args)
	// Debug commands
	case "d":
		u.send("%s", u.position.String())
	case "perft":
		u.handlePerft(args)
	case "divide":
		u.handleDivide(ctx, args)
	case "eval":
		u.handleEval()
	case "moves":
		ml, _ := u.position.LegalMoves()
		u.send("%s", strings.Join(lo.Map(ml.Slice(), func(m board.Move, _ int) string { return m.String() }), " "))
	default:
		log.Warn().Str("command", cmd).Msg("unknown command")
	}
	return true
}

func (u *UCI) send(format string, args ...any) {
	u.outMu.Lock()
	defer u.outMu.Unlock()
	fmt.Fprintf(u.out, format+"\n", args...)
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	u.send("id name %s", EngineName)
	u.send("id author %s", EngineAuthor)
	u.send("")
	u.send("option name Hash type spin default %d min 1 max %d", engine.DefaultHashMB, maxHashMB)
	u.send("option name Clear Hash type button")
	u.send("option name Move Overhead type spin default %d min 0 max 5000", engine.DefaultMoveOverhead.Milliseconds())
	u.send("option name UseTablebase type check default false")
	u.send("option name TablebaseURL type string default %s", tablebase.DefaultLichessEndpoint)
	u.send("option name EvalFile type string default <empty>")
	u.send("uciok")
}

// handleNewGame resets the engine for a new game.
func (u *UCI) handleNewGame() {
	u.handleStop()
	u.engine.NewGame()
	u.resetPosition(board.NewPosition())
	log.Info().Msg("new game")
}

func (u *UCI) resetPosition(pos *board.Position) {
	u.position = pos
	u.history.Reset()
	u.history.Push(pos.Hash)
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
//
// A bad FEN leaves the current position alone; moves are applied up to the
// first illegal one.
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}
	u.handleStop()

	movesAt := lo.IndexOf(args, "moves")
	setup := args
	if movesAt >= 0 {
		setup = args[:movesAt]
	}
	if len(setup) == 0 {
		log.Warn().Msg("position without setup")
		return
	}

	var pos *board.Position
	switch setup[0] {
	case "startpos":
		pos = board.NewPosition()
	case "fen":
		p, err := board.ParseFEN(strings.Join(setup[1:], " "))
		if err != nil {
			log.Warn().Err(err).Msg("position rejected")
			u.send("info string invalid fen: %v", err)
			return
		}
		pos = p
	default:
		log.Warn().Str("setup", setup[0]).Msg("position rejected")
		return
	}
	u.resetPosition(pos)

	if movesAt < 0 {
		return
	}
	for _, s := range args[movesAt+1:] {
		m, err := board.ParseMove(s, u.position)
		if err != nil {
			log.Warn().Err(err).Msg("move rejected")
			u.send("info string invalid move: %s", s)
			return
		}
		u.position.MakePermanent(m)
		u.history.Push(u.position.Hash)
	}
}

// GoOptions holds parsed "go" command options.
type GoOptions struct {
	Depth     int
	Nodes     uint64
	MoveTime  time.Duration
	Infinite  bool
	WTime     time.Duration
	BTime     time.Duration
	WInc      time.Duration
	BInc      time.Duration
	MovesToGo int
}

// ParseGoOptions parses "go" command arguments. Malformed numbers are
// logged and ignored.
func ParseGoOptions(args []string) GoOptions {
	var opts GoOptions
	ms := func(n int64) time.Duration { return time.Duration(max(n, 0)) * time.Millisecond }
	numeric := map[string]func(int64){
		"depth":     func(n int64) { opts.Depth = int(n) },
		"nodes":     func(n int64) { opts.Nodes = uint64(max(n, 0)) },
		"movetime":  func(n int64) { opts.MoveTime = ms(n) },
		"wtime":     func(n int64) { opts.WTime = ms(n) },
		"btime":     func(n int64) { opts.BTime = ms(n) },
		"winc":      func(n int64) { opts.WInc = ms(n) },
		"binc":      func(n int64) { opts.BInc = ms(n) },
		"movestogo": func(n int64) { opts.MovesToGo = int(n) },
	}

	for i := 0; i < len(args); i++ {
		if args[i] == "infinite" {
			opts.Infinite = true
			continue
		}
		set, ok := numeric[args[i]]
		if !ok || i+1 >= len(args) {
			continue
		}
		n, err := strconv.ParseInt(args[i+1], 10, 64)
		if err != nil {
			log.Warn().Str("token", args[i]).Str("value", args[i+1]).Msg("bad go argument")
			continue
		}
		set(n)
		i++
	}
	return opts
}

// Limits converts the options into engine limits.
func (o GoOptions) Limits() engine.Limits {
	var l engine.Limits
	l.Time[board.White], l.Time[board.Black] = o.WTime, o.BTime
	l.Inc[board.White], l.Inc[board.Black] = o.WInc, o.BInc
	l.MovesToGo = o.MovesToGo
	l.MoveTime = o.MoveTime
	l.Depth = o.Depth
	l.Nodes = o.Nodes
	l.Infinite = o.Infinite
	return l
}

// handleGo starts a search in the background. Infinite searches hold their
// bestmove until stop.
func (u *UCI) handleGo(ctx context.Context, args []string) {
	u.handleStop()

	opts := ParseGoOptions(args)
	searchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	u.cancel, u.searchDone, u.infinite = cancel, done, opts.Infinite

	pos := u.position.Copy()
	rep := u.history
	u.engine.OnInfo = u.sendInfo

	go func() {
		defer close(done)
		res := u.engine.BestMove(searchCtx, pos, &rep, opts.Limits())
		if opts.Infinite {
			<-searchCtx.Done()
		}
		switch {
		case res.Move == board.NoMove:
			u.send("bestmove 0000")
		case res.Ponder != board.NoMove:
			u.send("bestmove %s ponder %s", res.Move, res.Ponder)
		default:
			u.send("bestmove %s", res.Move)
		}
	}()
}

// handleStop stops the current search and waits for its bestmove.
func (u *UCI) handleStop() {
	if u.searchDone == nil {
		return
	}
	u.cancel()
	u.engine.Stop()
	<-u.searchDone
	u.searchDone = nil
}

// wait lets a finite search run to completion; an infinite one is stopped.
func (u *UCI) wait() {
	if u.searchDone == nil {
		return
	}
	if u.infinite {
		u.handleStop()
		return
	}
	<-u.searchDone
	u.cancel()
	u.searchDone = nil
}

// FormatScore renders a score as "cp N" or "mate N".
func FormatScore(score int) string {
	if n, ok := engine.MateIn(score); ok {
		return fmt.Sprintf("mate %d", n)
	}
	return fmt.Sprintf("cp %d", score)
}

// sendInfo outputs search info in UCI format.
func (u *UCI) sendInfo(info engine.SearchInfo) {
	parts := []string{
		fmt.Sprintf("depth %d", info.Depth),
		fmt.Sprintf("seldepth %d", info.SelDepth),
		"score " + FormatScore(info.Score),
		fmt.Sprintf("nodes %d", info.Nodes),
		fmt.Sprintf("nps %d", info.NPS()),
		fmt.Sprintf("hashfull %d", info.HashFull),
		fmt.Sprintf("tbhits %d", info.TBHits),
		fmt.Sprintf("time %d", info.Time.Milliseconds()),
	}
	if len(info.PV) > 0 {
		parts = append(parts, "pv "+strings.Join(lo.Map(info.PV, func(m board.Move, _ int) string { return m.String() }), " "))
	}
	u.send("info %s", strings.Join(parts, " "))
}

// handleSetOption processes "setoption name <name> [value <value>]".
// Option names are case-insensitive and may contain spaces.
func (u *UCI) handleSetOption(args []string) {
	valueAt := lo.IndexOf(args, "value")
	nameArgs, valueArgs := args, []string(nil)
	if valueAt >= 0 {
		nameArgs, valueArgs = args[:valueAt], args[valueAt+1:]
	}
	if len(nameArgs) == 0 || nameArgs[0] != "name" {
		log.Warn().Strs("args", args).Msg("malformed setoption")
		return
	}
	name := strings.ToLower(strings.Join(nameArgs[1:], " "))
	value := strings.Join(valueArgs, " ")

	u.handleStop()
	switch name {
	case "hash":
		mb, err := strconv.Atoi(value)
		if err != nil || mb < 1 || mb > maxHashMB {
			log.Warn().Str("value", value).Msg("bad Hash value")
			return
		}
		u.engine.SetHashSize(mb)
		log.Info().Int("mb", mb).Msg("hash resized")
	case "clear hash":
		u.engine.ClearHash()
	case "move overhead":
		ms, err := strconv.Atoi(value)
		if err != nil || ms < 0 {
			log.Warn().Str("value", value).Msg("bad Move Overhead value")
			return
		}
		u.engine.SetMoveOverhead(time.Duration(ms) * time.Millisecond)
	case "usetablebase":
		u.tbEnabled = strings.EqualFold(value, "true")
		u.configureTablebase()
	case "tablebaseurl":
		if value != "" {
			u.tbEndpoint = value
		}
		u.configureTablebase()
	case "evalfile":
		u.loadEvalFile(value)
	default:
		log.Warn().Str("name", name).Msg("unknown option")
	}
}

// loadEvalFile switches to the network at path, or back to the handcrafted
// evaluation when path is empty. A file that fails to load leaves the
// current evaluator in place.
func (u *UCI) loadEvalFile(path string) {
	if path == "" || path == "<empty>" {
		u.engine.SetEvaluator(eval.New())
		log.Info().Msg("handcrafted evaluation")
		return
	}
	ev, err := nnue.Load(path)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("load network")
		u.send("info string cannot load %s: %v", path, err)
		return
	}
	u.engine.SetEvaluator(ev)
	log.Info().Str("file", path).Msg("network loaded")
	u.send("info string using network %s", path)
}

func (u *UCI) configureTablebase() {
	if !u.tbEnabled {
		u.engine.SetProber(nil)
		return
	}
	u.engine.SetProber(tablebase.NewCachedLichessProber(tablebase.WithEndpoint(u.tbEndpoint)))
	log.Info().Str("endpoint", u.tbEndpoint).Msg("tablebase enabled")
}

func parseDepth(args []string, def int) int {
	if len(args) == 0 {
		return def
	}
	d, err := strconv.Atoi(args[0])
	if err != nil || d < 0 {
		log.Warn().Str("depth", args[0]).Msg("bad depth")
		return def
	}
	return d
}

// handlePerft runs a perft test.
func (u *UCI) handlePerft(args []string) {
	depth := parseDepth(args, 5)

	start := time.Now()
	nodes := board.Perft(u.position.Copy(), depth)
	elapsed := time.Since(start)

	u.send("Nodes: %d", nodes)
	u.send("Time: %v", elapsed)
	if elapsed > 0 {
		u.send("NPS: %.0f", float64(nodes)/elapsed.Seconds())
	}
}

// handleDivide prints the perft count below each root move.
func (u *UCI) handleDivide(ctx context.Context, args []string) {
	entries, total, err := engine.Divide(ctx, u.position, parseDepth(args, 4))
	if err != nil {
		log.Warn().Err(err).Msg("divide interrupted")
		return
	}
	for _, e := range entries {
		u.send("%s: %d", e.Move, e.Nodes)
	}
	u.send("")
	u.send("Nodes searched: %d", total)
}

// handleEval prints the evaluation terms of the current position.
func (u *UCI) handleEval() {
	b := eval.Explain(u.position)
	u.send("Term       |    MG    EG")
	u.send("Material   | %5d %5d", b.MaterialMg, b.MaterialEg)
	u.send("Pawns      | %5d %5d", b.PawnsMg, b.PawnsEg)
	u.send("Pieces     | %5d %5d", b.PiecesMg, b.PiecesEg)
	u.send("Phase      | %d/24", b.Phase)
	u.send("Total      | %d (side to move)", b.Total)
}
