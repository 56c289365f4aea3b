// Package eval is the default static evaluation: tapered material and
// piece-square terms kept incrementally through make/unmake, pawn structure
// cached by pawn key, and a few piece terms computed on demand.
package eval

import "github.com/hailam/chesscore/internal/board"

const tempoBonus = 10

// stackSize bounds the number of OnMake calls between Init and the matching
// OnUnmake calls. Search depth plus quiescence stays far below it.
const stackSize = 512

const defaultPawnTableKB = 1024

// Mobility weights per piece type and the attack count that scores zero.
var (
	mobilityMg   = [6]int{0, 4, 5, 3, 1, 0}
	mobilityEg   = [6]int{0, 4, 5, 4, 2, 0}
	mobilityBase = [6]int{0, 4, 6, 7, 13, 0}
)

const (
	bishopPairMg, bishopPairEg = 30, 50
	rookOpenMg, rookOpenEg     = 25, 10
	rookHalfMg, rookHalfEg     = 12, 5
	shieldMissingMg            = -15
)

// accumulator holds the white-relative material and placement sums and the
// game phase for one position.
type accumulator struct {
	mg, eg int
	phase  int
}

func (a *accumulator) add(c board.Color, pt board.PieceType, sq board.Square) {
	a.mg += psqMg[c][pt][sq]
	a.eg += psqEg[c][pt][sq]
}

func (a *accumulator) sub(c board.Color, pt board.PieceType, sq board.Square) {
	a.mg -= psqMg[c][pt][sq]
	a.eg -= psqEg[c][pt][sq]
}

// apply updates the sums for m using only what the move encodes.
func (a *accumulator) apply(m board.Move) {
	piece := m.Piece()
	us, pt := piece.Color(), piece.Type()

	a.sub(us, pt, m.From())
	if m.IsPromotion() {
		pt = m.Promotion()
		a.phase += phaseInc[pt]
	}
	a.add(us, pt, m.To())

	if m.IsCapture() {
		captured := m.Captured()
		a.sub(us.Other(), captured, m.CapturedSquare())
		a.phase -= phaseInc[captured]
	}
	if m.IsCastling() {
		from, to := m.RookSquares()
		a.sub(us, board.Rook, from)
		a.add(us, board.Rook, to)
	}
}

func computeAccumulator(pos *board.Position) accumulator {
	var a accumulator
	for c := board.White; c <= board.Black; c++ {
		for pt := board.Pawn; pt <= board.King; pt++ {
			for bb := pos.Pieces[c][pt]; bb != 0; {
				a.add(c, pt, bb.PopLSB())
				a.phase += phaseInc[pt]
			}
		}
	}
	return a
}

// Evaluator keeps a stack of accumulators, one per position on the current
// line. The zero value works but evaluates pawn structure uncached.
type Evaluator struct {
	stack [stackSize]accumulator
	top   int
	pawns *PawnTable
}

func New() *Evaluator {
	return &Evaluator{pawns: NewPawnTable(defaultPawnTableKB)}
}

// Init resets the stack to pos. The search calls it once per root.
func (e *Evaluator) Init(pos *board.Position) {
	e.top = 0
	e.stack[0] = computeAccumulator(pos)
}

// OnMake pushes the accumulator for the position after m. A null move
// (board.NoMove) pushes an unchanged copy.
func (e *Evaluator) OnMake(m board.Move) {
	a := e.stack[e.top]
	if m != board.NoMove {
		a.apply(m)
	}
	e.top++
	e.stack[e.top] = a
}

func (e *Evaluator) OnUnmake() {
	if e.top > 0 {
		e.top--
	}
}

// Clear drops cached pawn structure, for a new game.
func (e *Evaluator) Clear() {
	if e.pawns != nil {
		e.pawns.Clear()
	}
}

// Evaluate scores pos in centipawns from the side to move's point of view.
// pos must be the position the last Init/OnMake sequence led to.
func (e *Evaluator) Evaluate(pos *board.Position) int {
	return e.breakdown(pos).Total
}

// Breakdown lists the white-relative terms behind an evaluation.
type Breakdown struct {
	MaterialMg, MaterialEg int
	PawnsMg, PawnsEg       int
	PiecesMg, PiecesEg     int
	Phase                  int
	// Total is relative to the side to move and includes the tempo bonus.
	Total int
}

func (e *Evaluator) breakdown(pos *board.Position) Breakdown {
	a := e.stack[e.top]
	b := Breakdown{
		MaterialMg: a.mg,
		MaterialEg: a.eg,
		Phase:      min(a.phase, maxPhase),
	}
	b.PawnsMg, b.PawnsEg = e.pawnScore(pos)
	b.PiecesMg, b.PiecesEg = pieceTerms(pos)

	mg := b.MaterialMg + b.PawnsMg + b.PiecesMg
	eg := b.MaterialEg + b.PawnsEg + b.PiecesEg
	score := (mg*b.Phase + eg*(maxPhase-b.Phase)) / maxPhase
	if pos.SideToMove == board.Black {
		score = -score
	}
	b.Total = score + tempoBonus
	return b
}

func (e *Evaluator) pawnScore(pos *board.Position) (mg, eg int) {
	if e.pawns == nil {
		return pawnStructure(pos)
	}
	if mg, eg, ok := e.pawns.Probe(pos.PawnKey); ok {
		return mg, eg
	}
	mg, eg = pawnStructure(pos)
	e.pawns.Store(pos.PawnKey, mg, eg)
	return mg, eg
}

// Evaluate scores pos from scratch, from the side to move's point of view.
func Evaluate(pos *board.Position) int {
	return Explain(pos).Total
}

// Explain evaluates pos from scratch and returns every term.
func Explain(pos *board.Position) Breakdown {
	var e Evaluator
	e.Init(pos)
	return e.breakdown(pos)
}

func pawnAttacks(pawns board.Bitboard, c board.Color) board.Bitboard {
	if c == board.White {
		return pawns.NorthEast() | pawns.NorthWest()
	}
	return pawns.SouthEast() | pawns.SouthWest()
}

// pieceTerms covers mobility, the bishop pair, rooks on open files, the
// king's pawn shield and king proximity to passed pawns.
func pieceTerms(pos *board.Position) (mg, eg int) {
	occ := pos.AllOccupied
	for c := board.White; c <= board.Black; c++ {
		sign := 1
		if c == board.Black {
			sign = -1
		}
		them := c.Other()
		ownPawns := pos.Pieces[c][board.Pawn]
		allPawns := ownPawns | pos.Pieces[them][board.Pawn]
		area := ^pos.Occupied[c] &^ pawnAttacks(pos.Pieces[them][board.Pawn], them)

		var m, e int
		for pt := board.Knight; pt <= board.Queen; pt++ {
			for bb := pos.Pieces[c][pt]; bb != 0; {
				sq := bb.PopLSB()
				n := (board.Attacks(pt, sq, occ) & area).PopCount() - mobilityBase[pt]
				m += mobilityMg[pt] * n
				e += mobilityEg[pt] * n

				if pt == board.Rook {
					file := board.FileMask[sq.File()]
					switch {
					case allPawns&file == 0:
						m += rookOpenMg
						e += rookOpenEg
					case ownPawns&file == 0:
						m += rookHalfMg
						e += rookHalfEg
					}
				}
			}
		}

		if pos.Pieces[c][board.Bishop].Several() {
			m += bishopPairMg
			e += bishopPairEg
		}

		king := pos.KingSquare[c]
		if king.RelativeRank(c) <= 1 {
			zone := board.SquareBB(king).Forward(c)
			zone |= zone.Forward(c)
			zone |= zone.East() | zone.West()
			lo, hi := max(0, king.File()-1), min(7, king.File()+1)
			for f := lo; f <= hi; f++ {
				if zone&ownPawns&board.FileMask[f] == 0 {
					m += shieldMissingMg
				}
			}
		}

		enemyKing := pos.KingSquare[them]
		for bb := passedPawns(pos, c); bb != 0; {
			sq := bb.PopLSB()
			e += 4*board.Distance(enemyKing, sq) - 2*board.Distance(king, sq)
		}

		mg += sign * m
		eg += sign * e
	}
	return mg, eg
}
