package nnue

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"lukechampine.com/frand"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/engine"
)

var testFENs = []string{
	board.StartFEN,
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
}

var (
	netOnce sync.Once
	testNet *Network
)

func randomNet() *Network {
	netOnce.Do(func() {
		testNet = new(Network)
		testNet.Randomize(7)
	})
	return testNet
}

func mustParse(t *testing.T, fen string) *board.Position {
	t.Helper()
	pos, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return pos
}

// checkAgainstRefresh compares the incremental accumulator with one built
// from scratch.
func checkAgainstRefresh(t *testing.T, e *Evaluator, pos *board.Position) {
	t.Helper()
	fresh := New(e.net)
	fresh.Init(pos)
	acc := e.stack[e.top]
	for p := board.White; p <= board.Black; p++ {
		if acc.Valid[p] && acc.Values[p] != fresh.stack[0].Values[p] {
			t.Fatalf("%s: %v accumulator drifted from refresh", pos.FEN(), p)
		}
	}
	if got, want := e.Evaluate(pos), fresh.Evaluate(pos); got != want {
		t.Fatalf("%s: Evaluate = %d, want %d", pos.FEN(), got, want)
	}
}

func TestIncrementalMatchesRefresh(t *testing.T) {
	net := randomNet()
	for _, fen := range testFENs {
		pos := mustParse(t, fen)
		e := New(net)
		e.Init(pos)

		var walk func(depth int)
		walk = func(depth int) {
			checkAgainstRefresh(t, e, pos)
			if depth == 0 {
				return
			}
			moves, _ := pos.LegalMoves()
			for _, m := range moves.Slice() {
				u := pos.MakeMove(m)
				e.OnMake(m)
				walk(depth - 1)
				e.OnUnmake()
				pos.UnmakeMove(m, u)
			}
		}
		walk(2)

		if e.top != 0 {
			t.Errorf("%s: stack top = %d after walk, want 0", fen, e.top)
		}
	}
}

func TestRandomGamesStayInSync(t *testing.T) {
	net := randomNet()
	rng := frand.NewCustom(make([]byte, 32), 1024, 12)
	for game := range 8 {
		pos := mustParse(t, testFENs[game%len(testFENs)])
		e := New(net)
		e.Init(pos)
		for ply := 0; ply < 120; ply++ {
			moves, _ := pos.LegalMoves()
			if moves.Len() == 0 {
				break
			}
			m := moves.Get(rng.Intn(moves.Len()))
			pos.MakeMove(m)
			e.OnMake(m)
			checkAgainstRefresh(t, e, pos)
		}
	}
}

func TestNullMoveKeepsAccumulator(t *testing.T) {
	pos := mustParse(t, testFENs[1])
	e := New(randomNet())
	e.Init(pos)
	before := e.stack[e.top]

	u := pos.MakeNullMove()
	e.OnMake(board.NoMove)
	if e.stack[e.top] != before {
		t.Error("null move changed the accumulator")
	}
	checkAgainstRefresh(t, e, pos)
	e.OnUnmake()
	pos.UnmakeNullMove(u)
}

func TestEvaluateBounded(t *testing.T) {
	e := New(randomNet())
	for _, fen := range testFENs {
		pos := mustParse(t, fen)
		e.Init(pos)
		if v := e.Evaluate(pos); v < -MaxScore || v > MaxScore {
			t.Errorf("%s: Evaluate = %d outside ±%d", fen, v, MaxScore)
		}
	}
}

func TestFeatureMirrors(t *testing.T) {
	w := Feature(board.White, board.E1, board.Knight, board.White, board.F3)
	b := Feature(board.Black, board.E8, board.Knight, board.Black, board.F6)
	if w != b {
		t.Errorf("mirrored features differ: %d vs %d", w, b)
	}
	if Feature(board.White, board.E1, board.King, board.White, board.E1) != -1 {
		t.Error("king has a feature")
	}
	if f := Feature(board.White, board.H8, board.Queen, board.Black, board.H8); f != HalfKPSize-1 {
		t.Errorf("last feature = %d, want %d", f, HalfKPSize-1)
	}
}

func TestWeightsRoundTrip(t *testing.T) {
	net := randomNet()
	var buf bytes.Buffer
	if err := net.Write(&buf); err != nil {
		t.Fatal(err)
	}
	got := new(Network)
	if err := got.Read(&buf); err != nil {
		t.Fatal(err)
	}
	if *got != *net {
		t.Error("network changed across Write and Read")
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.bin")
	if err := randomNet().Save(path); err != nil {
		t.Fatal(err)
	}
	e, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	pos := mustParse(t, testFENs[0])
	e.Init(pos)
	ref := New(randomNet())
	ref.Init(pos)
	if e.Evaluate(pos) != ref.Evaluate(pos) {
		t.Error("loaded network scores differently")
	}
}

func TestReadRejectsBadHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := randomNet().Write(&buf); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	data[0] ^= 0xff
	err := new(Network).Read(bytes.NewReader(data))
	if !errors.Is(err, ErrBadNetwork) {
		t.Errorf("Read with bad magic = %v, want ErrBadNetwork", err)
	}

	if err := new(Network).Read(bytes.NewReader(data[:10])); err == nil {
		t.Error("Read of truncated header succeeded")
	}
	if _, err := LoadNetwork(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Error("LoadNetwork of missing file succeeded")
	}
}

func TestSearchWithNetwork(t *testing.T) {
	pos := mustParse(t, testFENs[1])
	eng := engine.NewEngine(4)
	eng.SetEvaluator(New(randomNet()))
	r := eng.BestMove(context.Background(), pos, nil, engine.Limits{Depth: 4})
	moves, _ := pos.LegalMoves()
	if !moves.Contains(r.Move) {
		t.Errorf("best move %v not legal", r.Move)
	}
}
