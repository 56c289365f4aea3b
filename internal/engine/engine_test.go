package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/eval"
	"github.com/hailam/chesscore/internal/tablebase"
)

func mustParse(t *testing.T, fen string) *board.Position {
	t.Helper()
	pos, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return pos
}

func TestBestMoveIsLegal(t *testing.T) {
	for _, fen := range BenchPositions {
		pos := mustParse(t, fen)
		before := *pos
		eng := NewEngine(16)

		r := eng.BestMove(context.Background(), pos, nil, Limits{Depth: 4})

		moves, _ := pos.LegalMoves()
		if !moves.Contains(r.Move) {
			t.Errorf("%s: best move %v not legal", fen, r.Move)
		}
		if r.Depth < 1 {
			t.Errorf("%s: no iteration completed", fen)
		}
		if *pos != before {
			t.Errorf("%s: BestMove modified the caller's position", fen)
		}
	}
}

func TestBestMovePVIsPlayable(t *testing.T) {
	pos := mustParse(t, BenchPositions[1])
	eng := NewEngine(16)
	r := eng.BestMove(context.Background(), pos, nil, Limits{Depth: 5})

	work := pos.Copy()
	for i, m := range r.PV {
		moves, _ := work.LegalMoves()
		if !moves.Contains(m) {
			t.Fatalf("PV move %d (%v) illegal in %s", i, m, work.FEN())
		}
		work.MakeMove(m)
	}
	if len(r.PV) == 0 || r.PV[0] != r.Move {
		t.Errorf("PV %v does not start with best move %v", r.PV, r.Move)
	}
}

func TestMateInOne(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		want string
	}{
		{"back rank", "6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1", "d1d8"},
		{"scholar", "r1bqkb1r/pppp1ppp/2n2n2/4p2Q/2B1P3/8/PPPP1PPP/RNB1K1NR w KQkq - 4 4", "h5f7"},
		{"black to move", "3r2k1/8/8/8/8/8/5PPP/6K1 b - - 0 1", "d8d1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eng := NewEngine(16)
			r := eng.BestMove(context.Background(), mustParse(t, tc.fen), nil, Limits{Depth: 4})
			if r.Move.String() != tc.want {
				t.Errorf("best move %v, want %s", r.Move, tc.want)
			}
			if n, ok := MateIn(r.Score); !ok || n != 1 {
				t.Errorf("score %d = mate in (%d, %v), want mate in 1", r.Score, n, ok)
			}
		})
	}
}

func TestMateInTwo(t *testing.T) {
	// Rook ladder: 1.Ra7 Kg8 2.Rb8#.
	pos := mustParse(t, "7k/8/8/8/8/8/R7/1R4K1 w - - 0 1")
	eng := NewEngine(16)
	r := eng.BestMove(context.Background(), pos, nil, Limits{Depth: 6})
	if n, ok := MateIn(r.Score); !ok || n != 2 {
		t.Errorf("score %d = mate in (%d, %v), want mate in 2", r.Score, n, ok)
	}
}

func TestNoLegalMoves(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		score int
	}{
		{"mated", "3R2k1/5ppp/8/8/8/8/5PPP/6K1 b - - 0 1", -MateScore},
		{"stalemate", "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewEngine(1).BestMove(context.Background(), mustParse(t, tc.fen), nil, Limits{Depth: 3})
			if r.Move != board.NoMove {
				t.Errorf("move %v, want none", r.Move)
			}
			if r.Score != tc.score {
				t.Errorf("score %d, want %d", r.Score, tc.score)
			}
		})
	}
}

func TestInsufficientMaterialIsDraw(t *testing.T) {
	pos := mustParse(t, "8/8/4k3/8/8/3BK3/8/8 w - - 0 1")
	r := NewEngine(4).BestMove(context.Background(), pos, nil, Limits{Depth: 6})
	if abs(r.Score) > 1 {
		t.Errorf("score %d, want a draw", r.Score)
	}
}

func TestRepetitionDraw(t *testing.T) {
	pos := mustParse(t, board.StartFEN)
	var rep board.RepetitionTracker
	rep.Push(pos.Hash)
	// Knights out and back twice: the start position has occurred three times.
	for _, s := range []string{"g1f3", "g8f6", "f3g1", "f6g8", "g1f3", "g8f6", "f3g1", "f6g8"} {
		m, err := board.ParseMove(s, pos)
		if err != nil {
			t.Fatal(err)
		}
		pos.MakePermanent(m)
		rep.Push(pos.Hash)
	}

	s := &SearchContext{pos: pos, rep: rep}
	if !s.isDraw() {
		t.Error("threefold repetition not detected")
	}

	fresh := mustParse(t, board.StartFEN)
	s = &SearchContext{pos: fresh}
	s.rep.Push(fresh.Hash)
	if s.isDraw() {
		t.Error("start position reported drawn")
	}
}

func TestTimeBoxRespected(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	const budget = 300 * time.Millisecond
	pos := mustParse(t, BenchPositions[1])
	eng := NewEngine(16)
	eng.SetMoveOverhead(0)

	start := time.Now()
	r := eng.BestMove(context.Background(), pos, nil, Limits{MoveTime: budget, Depth: 60})
	elapsed := time.Since(start)

	if elapsed > budget+200*time.Millisecond {
		t.Errorf("search took %v with a %v budget", elapsed, budget)
	}
	moves, _ := pos.LegalMoves()
	if !moves.Contains(r.Move) {
		t.Errorf("best move %v not legal", r.Move)
	}
}

func TestTinyBudgetStillMoves(t *testing.T) {
	pos := mustParse(t, board.StartFEN)
	r := NewEngine(1).BestMove(context.Background(), pos, nil, Limits{MoveTime: time.Nanosecond})
	moves, _ := pos.LegalMoves()
	if !moves.Contains(r.Move) {
		t.Errorf("best move %v not legal", r.Move)
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	pos := mustParse(t, BenchPositions[3])
	done := make(chan Result)
	go func() {
		done <- NewEngine(16).BestMove(ctx, pos, nil, Limits{Infinite: true})
	}()

	select {
	case r := <-done:
		if r.Move == board.NoMove {
			t.Error("cancelled search returned no move")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("search ignored context cancellation")
	}
}

func TestStop(t *testing.T) {
	eng := NewEngine(16)
	pos := mustParse(t, BenchPositions[5])
	done := make(chan Result)
	go func() {
		done <- eng.BestMove(context.Background(), pos, nil, Limits{Infinite: true})
	}()
	time.Sleep(50 * time.Millisecond)
	eng.Stop()

	select {
	case r := <-done:
		if r.Move == board.NoMove {
			t.Error("stopped search returned no move")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("search ignored Stop")
	}
}

func TestNodeLimit(t *testing.T) {
	pos := mustParse(t, BenchPositions[1])
	r := NewEngine(16).BestMove(context.Background(), pos, nil, Limits{Nodes: 20000})
	if r.Nodes > 20000+pollInterval {
		t.Errorf("searched %d nodes with a limit of 20000", r.Nodes)
	}
	if r.Move == board.NoMove {
		t.Error("no move")
	}
}

// checkingEvaluator verifies the make/unmake hooks stay balanced and the
// incremental evaluation matches a from-scratch one at every node.
type checkingEvaluator struct {
	inner      *eval.Evaluator
	depth      int
	mismatches int
	underflow  bool
}

func (c *checkingEvaluator) Init(pos *board.Position) {
	c.depth = 0
	c.inner.Init(pos)
}

func (c *checkingEvaluator) Evaluate(pos *board.Position) int {
	v := c.inner.Evaluate(pos)
	if v != eval.Evaluate(pos) {
		c.mismatches++
	}
	return v
}

func (c *checkingEvaluator) OnMake(m board.Move) {
	c.depth++
	c.inner.OnMake(m)
}

func (c *checkingEvaluator) OnUnmake() {
	c.depth--
	if c.depth < 0 {
		c.underflow = true
	}
	c.inner.OnUnmake()
}

func TestEvaluatorHooksBalanced(t *testing.T) {
	for _, fen := range BenchPositions[:5] {
		ce := &checkingEvaluator{inner: eval.New()}
		eng := NewEngine(16)
		eng.SetEvaluator(ce)
		eng.BestMove(context.Background(), mustParse(t, fen), nil, Limits{Depth: 5})

		if ce.depth != 0 || ce.underflow {
			t.Errorf("%s: hook depth %d after search (underflow %v)", fen, ce.depth, ce.underflow)
		}
		if ce.mismatches > 0 {
			t.Errorf("%s: %d incremental evaluations differ from scratch", fen, ce.mismatches)
		}
	}
}

type fakeProber struct {
	maxPieces int
	dtm       int
	probes    int
}

func (p *fakeProber) Probe(ctx context.Context, pos *board.Position) (int, bool) {
	p.probes++
	return p.dtm, true
}

func (p *fakeProber) MaxPieces() int {
	return p.maxPieces
}

func TestTablebaseConsulted(t *testing.T) {
	// Either capture of the checking queen leaves K+Q vs K, lost for black.
	pos := mustParse(t, "4k3/8/8/8/8/8/3q4/3QK3 w - - 0 1")
	p := &fakeProber{maxPieces: 3, dtm: -20}
	eng := NewEngine(4)
	eng.SetProber(p)

	r := eng.BestMove(context.Background(), pos, nil, Limits{Depth: 3})
	if r.TBHits == 0 || p.probes == 0 {
		t.Fatal("tablebase never probed")
	}
	if r.Move.Captured() != board.Queen {
		t.Errorf("best move %v does not win the queen", r.Move)
	}
	if r.Score != MateScore-21 {
		t.Errorf("score %d, want %d", r.Score, MateScore-21)
	}
}

func TestSlowTablebaseKeepsTimeBox(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-time.After(300 * time.Millisecond):
			fmt.Fprint(w, `{"category":"draw","dtz":0,"dtm":0}`)
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	const budget = 100 * time.Millisecond
	pos := mustParse(t, "8/4p3/4k3/8/8/4K3/4P3/8 w - - 0 1")
	eng := NewEngine(4)
	eng.SetProber(tablebase.NewCachedLichessProber(tablebase.WithEndpoint(srv.URL)))

	start := time.Now()
	r := eng.BestMove(context.Background(), pos, nil, Limits{MoveTime: budget})
	elapsed := time.Since(start)

	if calls.Load() == 0 {
		t.Fatal("tablebase never queried")
	}
	if elapsed > budget+250*time.Millisecond {
		t.Errorf("search took %v with a %v budget and a slow tablebase", elapsed, budget)
	}
	moves, _ := pos.LegalMoves()
	if !moves.Contains(r.Move) {
		t.Errorf("best move %v not legal", r.Move)
	}
}

func TestStopReleasesTablebaseProbe(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	eng := NewEngine(4)
	eng.SetProber(tablebase.NewLichessProber(tablebase.WithEndpoint(srv.URL), tablebase.WithTimeout(time.Minute)))
	pos := mustParse(t, "8/4p3/4k3/8/8/4K3/4P3/8 w - - 0 1")

	done := make(chan Result)
	go func() {
		done <- eng.BestMove(context.Background(), pos, nil, Limits{Infinite: true})
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("search never probed the tablebase")
	}
	eng.Stop()

	select {
	case r := <-done:
		if r.Move == board.NoMove {
			t.Error("stopped search returned no move")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not release a blocked probe")
	}
}

func TestNewGameClearsTables(t *testing.T) {
	eng := NewEngine(1)
	eng.BestMove(context.Background(), mustParse(t, board.StartFEN), nil, Limits{Depth: 6})
	if eng.HashFull() == 0 {
		t.Fatal("search left the hash empty")
	}
	eng.NewGame()
	if got := eng.HashFull(); got != 0 {
		t.Errorf("HashFull after NewGame = %d, want 0", got)
	}
}

func TestMateIn(t *testing.T) {
	tests := []struct {
		score int
		moves int
		ok    bool
	}{
		{MateScore - 1, 1, true},
		{MateScore - 3, 2, true},
		{-MateScore + 2, -1, true},
		{-MateScore + 4, -2, true},
		{150, 0, false},
	}
	for _, tc := range tests {
		if n, ok := MateIn(tc.score); n != tc.moves || ok != tc.ok {
			t.Errorf("MateIn(%d) = (%d, %v), want (%d, %v)", tc.score, n, ok, tc.moves, tc.ok)
		}
	}
}
