package eval

import (
	"strings"
	"testing"

	"github.com/hailam/chesscore/internal/board"
)

var testFENs = []string{
	board.StartFEN,
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
}

func mustParse(t *testing.T, fen string) *board.Position {
	t.Helper()
	pos, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return pos
}

// mirrorFEN swaps colors and flips the board vertically.
func mirrorFEN(fen string) string {
	fields := strings.Fields(fen)
	ranks := strings.Split(fields[0], "/")
	for i, j := 0, len(ranks)-1; i < j; i, j = i+1, j-1 {
		ranks[i], ranks[j] = ranks[j], ranks[i]
	}
	fields[0] = swapCase(strings.Join(ranks, "/"))
	if fields[1] == "w" {
		fields[1] = "b"
	} else {
		fields[1] = "w"
	}
	if fields[2] != "-" {
		fields[2] = swapCase(fields[2])
	}
	if fields[3] != "-" {
		rank := byte('1' + '8' - fields[3][1])
		fields[3] = string([]byte{fields[3][0], rank})
	}
	return strings.Join(fields, " ")
}

func swapCase(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z':
			return r - 'A' + 'a'
		}
		return r
	}, s)
}

func TestIncrementalMatchesScratch(t *testing.T) {
	for _, fen := range testFENs {
		pos := mustParse(t, fen)
		e := New()
		e.Init(pos)

		var walk func(depth int)
		walk = func(depth int) {
			if got, want := e.stack[e.top], computeAccumulator(pos); got != want {
				t.Fatalf("%s: accumulator %+v, want %+v", pos.FEN(), got, want)
			}
			if got, want := e.Evaluate(pos), Evaluate(pos); got != want {
				t.Fatalf("%s: Evaluate = %d, want %d", pos.FEN(), got, want)
			}
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
		walk(3)

		if e.top != 0 {
			t.Errorf("%s: stack top = %d after walk, want 0", fen, e.top)
		}
	}
}

func TestNullMoveKeepsAccumulator(t *testing.T) {
	pos := mustParse(t, testFENs[1])
	e := New()
	e.Init(pos)
	before := e.stack[e.top]

	u := pos.MakeNullMove()
	e.OnMake(board.NoMove)
	if e.stack[e.top] != before {
		t.Errorf("null move changed accumulator: %+v, want %+v", e.stack[e.top], before)
	}
	if got, want := e.Evaluate(pos), Evaluate(pos); got != want {
		t.Errorf("after null move Evaluate = %d, want %d", got, want)
	}
	e.OnUnmake()
	pos.UnmakeNullMove(u)
}

func TestEvaluateSymmetric(t *testing.T) {
	for _, fen := range testFENs {
		pos := mustParse(t, fen)
		mirrored := mustParse(t, mirrorFEN(fen))
		if a, b := Evaluate(pos), Evaluate(mirrored); a != b {
			t.Errorf("%s: Evaluate = %d, mirrored = %d", fen, a, b)
		}
	}
}

func TestStartPositionBalanced(t *testing.T) {
	b := Explain(mustParse(t, board.StartFEN))
	if b.Total != tempoBonus {
		t.Errorf("start position = %d, want tempo bonus %d", b.Total, tempoBonus)
	}
	if b.Phase != maxPhase {
		t.Errorf("start phase = %d, want %d", b.Phase, maxPhase)
	}
}

func TestMaterialAdvantage(t *testing.T) {
	tests := []struct {
		name string
		fen  string
	}{
		{"extra queen", "4k3/8/8/8/8/8/8/3QK3 w - - 0 1"},
		{"extra rook", "4k3/pppppppp/8/8/8/8/PPPPPPPP/R3K3 w - - 0 1"},
		{"extra knight", "rnbqkb1r/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pos := mustParse(t, tc.fen)
			if got := Evaluate(pos); got <= 100 {
				t.Errorf("white to move = %d, want a clear advantage", got)
			}
			black := mustParse(t, strings.Replace(tc.fen, " w ", " b ", 1))
			if got := Evaluate(black); got >= -100 {
				t.Errorf("black to move = %d, want a clear disadvantage", got)
			}
		})
	}
}

func TestPawnStructureTerms(t *testing.T) {
	// Identical kings; white has doubled isolated c-pawns, black a passed a-pawn.
	pos := mustParse(t, "4k3/p7/8/8/8/2P5/2P5/4K3 w - - 0 1")
	mg, eg := pawnStructure(pos)
	wantMg := doubledMg + 2*isolatedMg - passedMg[1]
	wantEg := doubledEg + 2*isolatedEg - passedEg[1]
	// The black a-pawn is isolated too.
	wantMg -= isolatedMg
	wantEg -= isolatedEg
	// The front c-pawn has no black pawn ahead on the b, c or d files.
	wantMg += passedMg[2]
	wantEg += passedEg[2]
	if mg != wantMg || eg != wantEg {
		t.Errorf("pawnStructure = (%d, %d), want (%d, %d)", mg, eg, wantMg, wantEg)
	}
}

func TestPawnTable(t *testing.T) {
	pt := NewPawnTable(64)
	if _, _, ok := pt.Probe(0xdeadbeef); ok {
		t.Fatal("probe of empty table hit")
	}
	pt.Store(0xdeadbeef, -12, 34)
	mg, eg, ok := pt.Probe(0xdeadbeef)
	if !ok || mg != -12 || eg != 34 {
		t.Errorf("Probe = (%d, %d, %v), want (-12, 34, true)", mg, eg, ok)
	}
	// Same slot, different key.
	if _, _, ok := pt.Probe(0xdeadbeef + pt.mask + 1); ok {
		t.Error("probe with a colliding key hit")
	}
	pt.Clear()
	if _, _, ok := pt.Probe(0xdeadbeef); ok {
		t.Error("probe after Clear hit")
	}
}
