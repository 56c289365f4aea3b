package uci

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/engine"
	"github.com/hailam/chesscore/internal/eval"
	"github.com/hailam/chesscore/internal/nnue"
)

// syncBuffer lets the test read output while a search goroutine writes it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, script string) string {
	t.Helper()
	var out syncBuffer
	u := New(engine.NewEngine(4), strings.NewReader(script), &out)
	if err := u.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func bestMoveLine(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "bestmove ") {
			return line
		}
	}
	t.Fatalf("no bestmove in output:\n%s", out)
	return ""
}

func TestHandshake(t *testing.T) {
	out := run(t, "uci\nisready\nquit\n")
	for _, want := range []string{"id name chesscore", "option name Hash type spin", "uciok", "readyok"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPosition(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		fen     string
		history int
	}{
		{"startpos", "position startpos", board.StartFEN, 1},
		{"startpos moves", "position startpos moves e2e4 e7e5",
			"rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2", 3},
		{"fen", "position fen 4k3/8/8/8/8/8/8/4K2R w K - 0 1", "4k3/8/8/8/8/8/8/4K2R w K - 0 1", 1},
		{"fen moves", "position fen 4k3/8/8/8/8/8/8/4K2R w K - 0 1 moves e1g1",
			"4k3/8/8/8/8/8/8/5RK1 b - - 1 1", 2},
		{"illegal move stops", "position startpos moves e2e4 e2e4 e7e5",
			"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1", 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out syncBuffer
			u := New(engine.NewEngine(1), strings.NewReader(""), &out)
			u.Execute(context.Background(), tc.cmd)
			if got := u.position.FEN(); got != tc.fen {
				t.Errorf("FEN = %q, want %q", got, tc.fen)
			}
			if u.history.Len() != tc.history {
				t.Errorf("history holds %d positions, want %d", u.history.Len(), tc.history)
			}
			if u.history.Top() != u.position.Hash {
				t.Error("history does not end with the current position")
			}
		})
	}
}

func TestBadFENKeepsPosition(t *testing.T) {
	var out syncBuffer
	u := New(engine.NewEngine(1), strings.NewReader(""), &out)
	u.Execute(context.Background(), "position startpos moves d2d4")
	before := u.position.FEN()

	u.Execute(context.Background(), "position fen 8/8/8 w - - 0 1")
	if u.position.FEN() != before {
		t.Errorf("bad FEN replaced the position with %s", u.position.FEN())
	}
	if !strings.Contains(out.String(), "info string invalid fen") {
		t.Errorf("no diagnostic for bad FEN:\n%s", out.String())
	}
}

func TestGoDepth(t *testing.T) {
	out := run(t, "position startpos moves e2e4\ngo depth 4\n")
	if !strings.Contains(out, "info depth 1 ") {
		t.Errorf("no info lines:\n%s", out)
	}
	line := bestMoveLine(t, out)
	pos := board.NewPosition()
	pos.MakePermanent(mustMove(t, "e2e4", pos))
	if _, err := board.ParseMove(strings.Fields(line)[1], pos); err != nil {
		t.Errorf("%s: %v", line, err)
	}
}

func mustMove(t *testing.T, s string, pos *board.Position) board.Move {
	t.Helper()
	m, err := board.ParseMove(s, pos)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestGoFindsMate(t *testing.T) {
	out := run(t, "position fen 6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1\ngo depth 3\n")
	if !strings.Contains(out, "score mate 1") {
		t.Errorf("no mate score:\n%s", out)
	}
	if line := bestMoveLine(t, out); !strings.HasPrefix(line, "bestmove d1d8") {
		t.Errorf("got %q, want bestmove d1d8", line)
	}
}

func TestGoWithoutLegalMoves(t *testing.T) {
	out := run(t, "position fen 3R2k1/5ppp/8/8/8/8/5PPP/6K1 b - - 0 1\ngo depth 3\n")
	if line := bestMoveLine(t, out); line != "bestmove 0000" {
		t.Errorf("got %q, want bestmove 0000", line)
	}
}

func TestGoInfiniteWaitsForStop(t *testing.T) {
	var out syncBuffer
	u := New(engine.NewEngine(4), strings.NewReader(""), &out)
	ctx := context.Background()
	u.Execute(ctx, "position fen 4k3/8/8/8/8/8/8/4K2R w K - 0 1")
	u.Execute(ctx, "go infinite")

	time.Sleep(100 * time.Millisecond)
	if strings.Contains(out.String(), "bestmove") {
		t.Fatal("bestmove sent before stop")
	}

	u.Execute(ctx, "stop")
	bestMoveLine(t, out.String())
}

func TestQuitStopsSearch(t *testing.T) {
	var out syncBuffer
	u := New(engine.NewEngine(4), strings.NewReader("position startpos\ngo infinite\nquit\n"), &out)
	done := make(chan error)
	go func() {
		done <- u.Run(context.Background())
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
		bestMoveLine(t, out.String())
	case <-time.After(5 * time.Second):
		t.Fatal("quit did not stop the search")
	}
}

func TestParseGoOptions(t *testing.T) {
	tests := []struct {
		args string
		want GoOptions
	}{
		{"depth 6", GoOptions{Depth: 6}},
		{"infinite", GoOptions{Infinite: true}},
		{"movetime 1500", GoOptions{MoveTime: 1500 * time.Millisecond}},
		{"nodes 100000", GoOptions{Nodes: 100000}},
		{"wtime 60000 btime 55000 winc 1000 binc 1000 movestogo 20", GoOptions{
			WTime: time.Minute, BTime: 55 * time.Second,
			WInc: time.Second, BInc: time.Second, MovesToGo: 20,
		}},
		{"depth x infinite", GoOptions{Infinite: true}},
		{"wtime -50", GoOptions{}},
	}
	for _, tc := range tests {
		t.Run(tc.args, func(t *testing.T) {
			if got := ParseGoOptions(strings.Fields(tc.args)); got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestLimits(t *testing.T) {
	l := ParseGoOptions(strings.Fields("wtime 1000 btime 2000 winc 10 binc 20")).Limits()
	if l.Time[board.White] != time.Second || l.Time[board.Black] != 2*time.Second {
		t.Errorf("clock %v", l.Time)
	}
	if l.Inc[board.White] != 10*time.Millisecond || l.Inc[board.Black] != 20*time.Millisecond {
		t.Errorf("increment %v", l.Inc)
	}
}

func TestFormatScore(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{35, "cp 35"},
		{-120, "cp -120"},
		{engine.MateScore - 1, "mate 1"},
		{engine.MateScore - 5, "mate 3"},
		{-engine.MateScore + 4, "mate -2"},
	}
	for _, tc := range tests {
		if got := FormatScore(tc.score); got != tc.want {
			t.Errorf("FormatScore(%d) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestSetOption(t *testing.T) {
	var out syncBuffer
	u := New(engine.NewEngine(1), strings.NewReader(""), &out)
	ctx := context.Background()

	u.Execute(ctx, "setoption name Hash value 2")
	u.Execute(ctx, "setoption name Clear Hash")
	u.Execute(ctx, "setoption name Move Overhead value 50")
	u.Execute(ctx, "setoption name TablebaseURL value http://127.0.0.1:1/standard")
	if u.tbEndpoint != "http://127.0.0.1:1/standard" {
		t.Errorf("endpoint %q", u.tbEndpoint)
	}
	u.Execute(ctx, "setoption name UseTablebase value true")
	if !u.tbEnabled {
		t.Error("UseTablebase true not applied")
	}
	u.Execute(ctx, "setoption name usetablebase value false")
	if u.tbEnabled {
		t.Error("option names should be case-insensitive")
	}
	u.Execute(ctx, "setoption name Hash value lots")
}

func TestSetOptionEvalFile(t *testing.T) {
	net := new(nnue.Network)
	net.Randomize(3)
	path := filepath.Join(t.TempDir(), "net.bin")
	if err := net.Save(path); err != nil {
		t.Fatal(err)
	}

	var out syncBuffer
	eng := engine.NewEngine(1)
	u := New(eng, strings.NewReader(""), &out)
	ctx := context.Background()

	u.Execute(ctx, "uci")
	if !strings.Contains(out.String(), "option name EvalFile type string") {
		t.Errorf("EvalFile not advertised:\n%s", out.String())
	}

	u.Execute(ctx, "setoption name EvalFile value "+path)
	if _, ok := eng.Evaluator().(*nnue.Evaluator); !ok {
		t.Fatalf("evaluator %T after loading a network", eng.Evaluator())
	}
	u.Execute(ctx, "go depth 2")
	u.Execute(ctx, "stop")
	bestMoveLine(t, out.String())

	u.Execute(ctx, "setoption name EvalFile value "+filepath.Join(t.TempDir(), "missing.bin"))
	if _, ok := eng.Evaluator().(*nnue.Evaluator); !ok {
		t.Error("failed load replaced the evaluator")
	}
	if !strings.Contains(out.String(), "info string cannot load") {
		t.Error("failed load not reported")
	}

	u.Execute(ctx, "setoption name EvalFile value <empty>")
	if _, ok := eng.Evaluator().(*eval.Evaluator); !ok {
		t.Errorf("evaluator %T after clearing EvalFile", eng.Evaluator())
	}
}

func TestDebugCommands(t *testing.T) {
	out := run(t, "perft 3\ndivide 2\nmoves\neval\nd\n")
	for _, want := range []string{"Nodes: 8902", "Nodes searched: 400", "e2e4: 20", "Material", "Fen: " + board.StartFEN} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	listed := false
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "g1f3") && !strings.Contains(line, ":") {
			listed = true
			if n := len(strings.Fields(line)); n != 20 {
				t.Errorf("moves listed %d moves, want 20", n)
			}
		}
	}
	if !listed {
		t.Error("moves printed nothing")
	}
}
