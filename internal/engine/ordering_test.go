package engine

import (
	"testing"

	"github.com/hailam/chesscore/internal/board"
)

func scoreOf(ml *board.MoveList, m board.Move) int32 {
	for i := 0; i < ml.Len(); i++ {
		if ml.Get(i) == m {
			return ml.Score(i)
		}
	}
	return -1 << 30
}

func TestOrderingTTMoveFirst(t *testing.T) {
	pos := mustParse(t, board.StartFEN)
	tm, _ := board.ParseMove("g1f3", pos)
	ml, _ := pos.LegalMoves()

	mo := NewMoveOrderer()
	mo.Score(pos, ml, 0, tm)
	ml.Sort()
	if ml.Get(0) != tm {
		t.Errorf("first move %v, want TT move %v", ml.Get(0), tm)
	}
	if ml.Score(0) != TTMoveScore {
		t.Errorf("TT move score %d", ml.Score(0))
	}
}

func TestOrderingCapturesBeforeKillersBeforeQuiets(t *testing.T) {
	pos := mustParse(t, "4k3/8/2p5/3p4/4P3/8/8/3RK3 w - - 0 1")
	ml, _ := pos.LegalMoves()
	capture, _ := board.ParseMove("e4d5", pos)
	losing, _ := board.ParseMove("d1d5", pos)
	killer, _ := board.ParseMove("e1f2", pos)
	quiet, _ := board.ParseMove("d1d4", pos)

	mo := NewMoveOrderer()
	mo.UpdateKillers(killer, 3)
	mo.Score(pos, ml, 3, board.NoMove)

	if !(scoreOf(ml, capture) > scoreOf(ml, killer) && scoreOf(ml, killer) > scoreOf(ml, quiet)) {
		t.Errorf("capture %d, killer %d, quiet %d", scoreOf(ml, capture), scoreOf(ml, killer), scoreOf(ml, quiet))
	}
	if l := scoreOf(ml, losing); l >= scoreOf(ml, killer) || l <= scoreOf(ml, quiet) {
		t.Errorf("losing capture scored %d, want between killer %d and quiet %d", l, scoreOf(ml, killer), scoreOf(ml, quiet))
	}
	if scoreOf(ml, capture) <= CaptureBase {
		t.Errorf("pawn takes pawn scored %d, want above %d", scoreOf(ml, capture), CaptureBase)
	}
	if !mo.IsKiller(killer, 3) || mo.IsKiller(killer, 4) {
		t.Error("killers are per ply")
	}

	mo.Age()
	if mo.IsKiller(killer, 3) {
		t.Error("Age kept killers")
	}
}

func TestKillerSlots(t *testing.T) {
	pos := mustParse(t, board.StartFEN)
	a, _ := board.ParseMove("a2a3", pos)
	b, _ := board.ParseMove("b2b3", pos)
	c, _ := board.ParseMove("c2c3", pos)

	mo := NewMoveOrderer()
	mo.UpdateKillers(a, 0)
	mo.UpdateKillers(a, 0)
	mo.UpdateKillers(b, 0)
	if mo.killers[0] != [2]board.Move{b, a} {
		t.Errorf("killers %v, want [b a]", mo.killers[0])
	}
	mo.UpdateKillers(c, 0)
	if mo.killers[0] != [2]board.Move{c, b} {
		t.Errorf("killers %v, want [c b]", mo.killers[0])
	}
}

func TestHistoryGravity(t *testing.T) {
	pos := mustParse(t, board.StartFEN)
	good, _ := board.ParseMove("e2e4", pos)
	bad, _ := board.ParseMove("a2a3", pos)

	mo := NewMoveOrderer()
	for i := 0; i < 1000; i++ {
		mo.UpdateHistory(board.White, good, []board.Move{bad}, 20)
	}
	if h := mo.History(board.White, good); h <= 0 || h > historyMax {
		t.Errorf("rewarded history %d outside (0, %d]", h, historyMax)
	}
	if h := mo.History(board.White, bad); h >= 0 || h < -historyMax {
		t.Errorf("punished history %d outside [-%d, 0)", h, historyMax)
	}
	if mo.History(board.Black, good) != 0 {
		t.Error("history leaked to the other side")
	}

	before := mo.History(board.White, good)
	mo.Age()
	if got := mo.History(board.White, good); got != before/2 {
		t.Errorf("Age left %d, want %d", got, before/2)
	}
	mo.Clear()
	if mo.History(board.White, good) != 0 {
		t.Error("Clear kept history")
	}
}

func TestQuietToPawnAttackedSquare(t *testing.T) {
	pos := mustParse(t, "4k3/8/8/4p3/8/5N2/8/4K3 w - - 0 1")
	ml, _ := pos.LegalMoves()
	attacked, _ := board.ParseMove("f3d4", pos)
	safe, _ := board.ParseMove("f3h4", pos)

	NewMoveOrderer().Score(pos, ml, 0, board.NoMove)
	if scoreOf(ml, attacked) >= scoreOf(ml, safe) {
		t.Errorf("move into a pawn attack scored %d, safe move %d", scoreOf(ml, attacked), scoreOf(ml, safe))
	}
}

func TestScoreCaptures(t *testing.T) {
	pos := mustParse(t, "4k3/8/2p5/3p4/4P3/8/8/3RK3 w - - 0 1")
	ml, _ := pos.QuiescenceMoves()
	NewMoveOrderer().ScoreCaptures(pos, ml)
	ml.Sort()
	if ml.Get(0).String() != "e4d5" {
		t.Errorf("first capture %v, want e4d5", ml.Get(0))
	}
	losing, _ := board.ParseMove("d1d5", pos)
	if got := scoreOf(ml, losing); got != LosingCaptureBase-400 {
		t.Errorf("d1d5 scored %d, want %d", got, LosingCaptureBase-400)
	}
}
