package board

// Stage is the state of a MoveGen.
type Stage uint8

const (
	StageUninitialized Stage = iota
	StageTactical            // captures, promotions, en passant, castling
	StageQuiet               // everything else
	StageCheck               // all evasions at once
	StageExhausted
)

func (s Stage) String() string {
	return [...]string{"uninitialized", "tactical", "quiet", "check", "exhausted"}[s]
}

// MoveGen produces the legal moves of a position in batches so a caller can
// stop after the tactical batch without generating quiet moves. A MoveGen
// is reused across nodes by calling Init.
type MoveGen struct {
	pos     *Position
	stage   Stage
	quiesce bool

	us, them  Color
	king      Square
	forbidden Bitboard // squares the enemy controls, with our king removed
	pinned    Bitboard
	interfere Bitboard // capture-or-block squares; Universe when not in check

	list   MoveList
	cursor int
}

// Init prepares generation for pos. In quiesce mode only captures and queen
// promotions are produced, unless the side to move is in check, in which
// case every evasion is.
func (g *MoveGen) Init(pos *Position, quiesce bool) {
	g.pos = pos
	g.quiesce = quiesce
	g.us = pos.SideToMove
	g.them = g.us.Other()
	g.king = pos.KingSquare[g.us]
	g.forbidden = pos.AttackedBy(g.them, SquareBB(g.king))
	g.pinned = g.computePinned()
	g.list.Clear()
	g.cursor = 0

	checkers := pos.AttackersByColor(g.king, g.them, pos.AllOccupied)
	switch {
	case checkers == 0:
		g.interfere = Universe
		g.stage = StageTactical
	case checkers.Several():
		g.interfere = Empty
		g.stage = StageCheck
	default:
		g.interfere = checkers | Between(g.king, checkers.LSB())
		g.stage = StageCheck
	}
}

// computePinned walks the eight rays from the king: a friendly piece that is
// the nearest blocker, with an enemy slider of the matching kind right
// behind it, is pinned.
func (g *MoveGen) computePinned() Bitboard {
	pos := g.pos
	occ := pos.AllOccupied
	enemy := &pos.Pieces[g.them]
	diagonal := enemy[Bishop] | enemy[Queen]
	straight := enemy[Rook] | enemy[Queen]

	var pinned Bitboard
	for d := North; d <= NorthWest; d++ {
		sliders := straight
		if d.Diagonal() {
			sliders = diagonal
		}
		if Ray(d, g.king)&sliders == 0 {
			continue
		}
		blocker := rayAttacks(g.king, d, occ) & occ
		if blocker&pos.Occupied[g.us] == 0 {
			continue
		}
		if rayAttacks(g.king, d, occ&^blocker)&sliders != 0 {
			pinned |= blocker
		}
	}
	return pinned
}

// Stage reports the batch the next call to NextBatch will produce.
func (g *MoveGen) Stage() Stage {
	return g.stage
}

// InCheck reports whether the side to move was in check at Init.
func (g *MoveGen) InCheck() bool {
	return g.interfere != Universe
}

// Pinned returns the pieces pinned to the side to move's king.
func (g *MoveGen) Pinned() Bitboard {
	return g.pinned
}

// NextBatch generates the next non-empty batch and reports whether there was one.
func (g *MoveGen) NextBatch() bool {
	for {
		g.list.Clear()
		g.cursor = 0
		switch g.stage {
		case StageTactical:
			g.genTactical(!g.quiesce)
			if g.quiesce {
				g.stage = StageExhausted
			} else {
				g.stage = StageQuiet
			}
		case StageQuiet:
			g.genQuiet()
			g.stage = StageExhausted
		case StageCheck:
			g.genEvasions()
			g.stage = StageExhausted
		default:
			return false
		}
		if g.list.Len() > 0 {
			return true
		}
	}
}

// Batch returns the current batch. Callers may score and reorder it.
func (g *MoveGen) Batch() *MoveList {
	return &g.list
}

// Next returns moves one at a time across batches.
func (g *MoveGen) Next() (Move, bool) {
	for g.cursor >= g.list.Len() {
		if !g.NextBatch() {
			return NoMove, false
		}
	}
	m := g.list.Get(g.cursor)
	g.cursor++
	return m, true
}

// Collect appends every remaining move to ml.
func (g *MoveGen) Collect(ml *MoveList) {
	for {
		m, ok := g.Next()
		if !ok {
			return
		}
		ml.Add(m)
	}
}

func (g *MoveGen) genTactical(underPromotions bool) {
	enemies := g.pos.Occupied[g.them]
	g.genKing(enemies)
	g.genPieces(enemies)
	g.genPawnCaptures(underPromotions)
	g.genPawnPushes(true)
	g.genEnPassant()
	if !g.quiesce {
		g.genCastling()
	}
}

func (g *MoveGen) genQuiet() {
	empty := ^g.pos.AllOccupied
	g.genKing(empty)
	g.genPieces(empty)
	g.genPawnPushes(false)
}

// genEvasions runs after Init found a check. Only king moves survive a
// double check because interfere is then empty.
func (g *MoveGen) genEvasions() {
	g.genKing(^g.pos.Occupied[g.us])
	if g.interfere == Empty {
		return
	}
	g.genPieces(^g.pos.Occupied[g.us])
	g.genPawnCaptures(true)
	g.genPawnPushes(true)
	g.genPawnPushes(false)
	g.genEnPassant()
}

func (g *MoveGen) genKing(target Bitboard) {
	piece := NewPiece(King, g.us)
	for bb := KingAttacks(g.king) & target &^ g.forbidden; bb != 0; {
		to := bb.PopLSB()
		g.list.Add(NewMove(g.king, to, piece, g.pos.TypeAt(g.them, to)))
	}
}

// genPieces emits knight, bishop, rook and queen moves landing on target.
// A pinned piece keeps to the line through its king.
func (g *MoveGen) genPieces(target Bitboard) {
	pos := g.pos
	target &= g.interfere
	for pt := Knight; pt <= Queen; pt++ {
		piece := NewPiece(pt, g.us)
		for bb := pos.Pieces[g.us][pt]; bb != 0; {
			from := bb.PopLSB()
			moves := Attacks(pt, from, pos.AllOccupied) & target
			if g.pinned.IsSet(from) {
				moves &= Line(g.king, from)
			}
			for moves != 0 {
				to := moves.PopLSB()
				g.list.Add(NewMove(from, to, piece, pos.TypeAt(g.them, to)))
			}
		}
	}
}

func (g *MoveGen) pawnMask(from Square) Bitboard {
	if g.pinned.IsSet(from) {
		return g.interfere & Line(g.king, from)
	}
	return g.interfere
}

func promotionRank(c Color) Bitboard {
	if c == White {
		return Rank8
	}
	return Rank1
}

func (g *MoveGen) genPawnCaptures(underPromotions bool) {
	pos := g.pos
	piece := NewPiece(Pawn, g.us)
	last := promotionRank(g.us)
	for bb := pos.Pieces[g.us][Pawn]; bb != 0; {
		from := bb.PopLSB()
		for caps := PawnAttacks(from, g.us) & pos.Occupied[g.them] & g.pawnMask(from); caps != 0; {
			to := caps.PopLSB()
			captured := pos.TypeAt(g.them, to)
			if !last.IsSet(to) {
				g.list.Add(NewMove(from, to, piece, captured))
				continue
			}
			g.list.Add(NewPromotion(from, to, g.us, captured, Queen))
			if underPromotions {
				for promo := Knight; promo <= Rook; promo++ {
					g.list.Add(NewPromotion(from, to, g.us, captured, promo))
				}
			}
		}
	}
}

// genPawnPushes emits queen push-promotions when promotions is set, and
// every other push (including under-promotions) otherwise.
func (g *MoveGen) genPawnPushes(promotions bool) {
	pos := g.pos
	piece := NewPiece(Pawn, g.us)
	empty := ^pos.AllOccupied
	last := promotionRank(g.us)
	for bb := pos.Pieces[g.us][Pawn]; bb != 0; {
		from := bb.PopLSB()
		single := SquareBB(from).Forward(g.us) & empty
		if single == 0 {
			continue
		}
		mask := g.pawnMask(from)
		to := single.LSB()

		if single&last != 0 {
			if !mask.IsSet(to) {
				continue
			}
			if promotions {
				g.list.Add(NewPromotion(from, to, g.us, NoPieceType, Queen))
			} else {
				for promo := Knight; promo <= Rook; promo++ {
					g.list.Add(NewPromotion(from, to, g.us, NoPieceType, promo))
				}
			}
			continue
		}
		if promotions {
			continue
		}
		if mask.IsSet(to) {
			g.list.Add(NewMove(from, to, piece, NoPieceType))
		}
		if from.RelativeRank(g.us) == 1 {
			if double := single.Forward(g.us) & empty & mask; double != 0 {
				g.list.Add(NewMove(from, double.LSB(), piece, NoPieceType))
			}
		}
	}
}

// genEnPassant validates each candidate by playing it, since removing two
// pawns from one rank can uncover a slider that no pin test sees.
func (g *MoveGen) genEnPassant() {
	pos := g.pos
	ep := pos.EnPassant
	if ep == NoSquare {
		return
	}
	for bb := PawnAttacks(ep, g.them) & pos.Pieces[g.us][Pawn]; bb != 0; {
		m := NewEnPassant(bb.PopLSB(), ep, g.us)
		u := pos.MakeMove(m)
		legal := !pos.IsSquareAttacked(pos.KingSquare[g.us], g.them)
		pos.UnmakeMove(m, u)
		if legal {
			g.list.Add(m)
		}
	}
}

func (g *MoveGen) genCastling() {
	pos := g.pos
	if g.InCheck() {
		return
	}
	base := Square(0)
	if g.us == Black {
		base = 56
	}
	for _, kingSide := range [2]bool{true, false} {
		if !pos.CastlingRights.CanCastle(g.us, kingSide) {
			continue
		}
		rook, to := base+H1, base+G1
		if !kingSide {
			rook, to = base+A1, base+C1
		}
		if Between(g.king, rook)&pos.AllOccupied != 0 {
			continue
		}
		if (Between(g.king, to)|SquareBB(to))&g.forbidden != 0 {
			continue
		}
		g.list.Add(NewCastling(g.king, to, g.us))
	}
}

// LegalMoves returns every legal move and whether the side to move is in check.
func (p *Position) LegalMoves() (*MoveList, bool) {
	var g MoveGen
	g.Init(p, false)
	ml := NewMoveList()
	g.Collect(ml)
	return ml, g.InCheck()
}

// QuiescenceMoves returns legal captures and queen promotions, or every
// evasion when in check.
func (p *Position) QuiescenceMoves() (*MoveList, bool) {
	var g MoveGen
	g.Init(p, true)
	ml := NewMoveList()
	g.Collect(ml)
	return ml, g.InCheck()
}

// HasLegalMoves returns true if the side to move has any legal move.
func (p *Position) HasLegalMoves() bool {
	var g MoveGen
	g.Init(p, false)
	return g.NextBatch()
}

func (p *Position) IsCheckmate() bool {
	return p.InCheck() && !p.HasLegalMoves()
}

func (p *Position) IsStalemate() bool {
	return !p.InCheck() && !p.HasLegalMoves()
}
