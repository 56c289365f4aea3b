package board

// Direction indexes the eight ray directions from a square.
type Direction uint8

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var dirSteps = [8][2]int{{0, 1}, {1, 1}, {1, 0}, {1, -1}, {0, -1}, {-1, -1}, {-1, 0}, {-1, 1}}

// positive reports whether squares along d have increasing indexes.
func (d Direction) positive() bool {
	return d <= East || d == NorthWest
}

// Diagonal reports whether d is a bishop direction.
func (d Direction) Diagonal() bool {
	return d&1 == 1
}

var (
	knightAttacks [64]Bitboard
	kingAttacks   [64]Bitboard
	pawnAttacks   [2][64]Bitboard // [Color][Square]

	rays      [8][64]Bitboard // squares strictly beyond sq in a direction
	betweenBB [64][64]Bitboard
	lineBB    [64][64]Bitboard
)

func init() {
	initLeaperAttacks()
	initRays()
	initMagics()
}

func initLeaperAttacks() {
	for sq := A1; sq <= H8; sq++ {
		bb := SquareBB(sq)

		knightAttacks[sq] = (bb<<17)&NotFileA | (bb<<15)&NotFileH |
			(bb>>17)&NotFileH | (bb>>15)&NotFileA |
			(bb<<10)&NotFileAB | (bb<<6)&NotFileGH |
			(bb>>10)&NotFileGH | (bb>>6)&NotFileAB

		kingAttacks[sq] = bb.North() | bb.South() | bb.East() | bb.West() |
			bb.NorthEast() | bb.NorthWest() | bb.SouthEast() | bb.SouthWest()

		pawnAttacks[White][sq] = bb.NorthEast() | bb.NorthWest()
		pawnAttacks[Black][sq] = bb.SouthEast() | bb.SouthWest()
	}
}

func initRays() {
	for sq := A1; sq <= H8; sq++ {
		for d := North; d <= NorthWest; d++ {
			f, r := sq.File()+dirSteps[d][0], sq.Rank()+dirSteps[d][1]
			for f >= 0 && f < 8 && r >= 0 && r < 8 {
				rays[d][sq] |= SquareBB(NewSquare(f, r))
				f += dirSteps[d][0]
				r += dirSteps[d][1]
			}
		}
	}

	for a := A1; a <= H8; a++ {
		for d := North; d <= NorthWest; d++ {
			ray := rays[d][a]
			for bb := ray; bb != 0; {
				b := bb.PopLSB()
				betweenBB[a][b] = ray &^ rays[d][b] &^ SquareBB(b)
				lineBB[a][b] = ray | rays[(d+4)&7][a] | SquareBB(a)
			}
		}
	}
}

// rayAttacks casts one ray from sq and stops at the first blocker, inclusive.
func rayAttacks(sq Square, d Direction, occupied Bitboard) Bitboard {
	ray := rays[d][sq]
	blockers := ray & occupied
	if blockers == 0 {
		return ray
	}
	var first Square
	if d.positive() {
		first = blockers.LSB()
	} else {
		first = blockers.MSB()
	}
	return ray &^ rays[d][first]
}

// slidingAttacksSlow computes slider attacks by casting rays. Used to fill
// the magic tables and to cross-check them.
func slidingAttacksSlow(sq Square, occupied Bitboard, diagonal bool) Bitboard {
	var attacks Bitboard
	for d := North; d <= NorthWest; d++ {
		if d.Diagonal() == diagonal {
			attacks |= rayAttacks(sq, d, occupied)
		}
	}
	return attacks
}

// KnightAttacks returns the knight attack bitboard for a square.
func KnightAttacks(sq Square) Bitboard {
	return knightAttacks[sq]
}

// KingAttacks returns the king attack bitboard for a square.
func KingAttacks(sq Square) Bitboard {
	return kingAttacks[sq]
}

// PawnAttacks returns the squares a pawn of color c on sq attacks.
func PawnAttacks(sq Square, c Color) Bitboard {
	return pawnAttacks[c][sq]
}

func BishopAttacks(sq Square, occupied Bitboard) Bitboard {
	m := &bishopMagics[sq]
	return m.attacks[m.index(occupied)]
}

func RookAttacks(sq Square, occupied Bitboard) Bitboard {
	m := &rookMagics[sq]
	return m.attacks[m.index(occupied)]
}

func QueenAttacks(sq Square, occupied Bitboard) Bitboard {
	return BishopAttacks(sq, occupied) | RookAttacks(sq, occupied)
}

// Attacks returns the attack set of a non-pawn piece type.
func Attacks(pt PieceType, sq Square, occupied Bitboard) Bitboard {
	switch pt {
	case Knight:
		return knightAttacks[sq]
	case Bishop:
		return BishopAttacks(sq, occupied)
	case Rook:
		return RookAttacks(sq, occupied)
	case Queen:
		return QueenAttacks(sq, occupied)
	case King:
		return kingAttacks[sq]
	}
	return 0
}

// Ray returns the squares beyond sq in direction d up to the board edge.
func Ray(d Direction, sq Square) Bitboard {
	return rays[d][sq]
}

// Between returns the squares strictly between two aligned squares, or
// Empty when they share no rank, file or diagonal.
func Between(a, b Square) Bitboard {
	return betweenBB[a][b]
}

// Line returns the full board line through two aligned squares.
func Line(a, b Square) Bitboard {
	return lineBB[a][b]
}

// Aligned returns true if three squares are on the same line.
func Aligned(a, b, c Square) bool {
	return lineBB[a][b]&SquareBB(c) != 0
}

// AttackersTo returns every piece of either color attacking sq.
func (p *Position) AttackersTo(sq Square, occupied Bitboard) Bitboard {
	return p.AttackersByColor(sq, White, occupied) | p.AttackersByColor(sq, Black, occupied)
}

// AttackersByColor returns the pieces of color c attacking sq given occupied.
func (p *Position) AttackersByColor(sq Square, c Color, occupied Bitboard) Bitboard {
	own := &p.Pieces[c]
	return pawnAttacks[c.Other()][sq]&own[Pawn] |
		knightAttacks[sq]&own[Knight] |
		kingAttacks[sq]&own[King] |
		BishopAttacks(sq, occupied)&(own[Bishop]|own[Queen]) |
		RookAttacks(sq, occupied)&(own[Rook]|own[Queen])
}

// IsSquareAttacked returns true if the square is attacked by the given color.
func (p *Position) IsSquareAttacked(sq Square, by Color) bool {
	return p.AttackersByColor(sq, by, p.AllOccupied) != 0
}

// AttackedBy returns every square attacked by color c. Sliders see through
// the squares in transparent, which lets the move generator remove the
// defending king so it cannot retreat along a checking ray.
func (p *Position) AttackedBy(c Color, transparent Bitboard) Bitboard {
	own := &p.Pieces[c]
	occ := p.AllOccupied &^ transparent

	var attacks Bitboard
	if c == White {
		attacks = own[Pawn].NorthEast() | own[Pawn].NorthWest()
	} else {
		attacks = own[Pawn].SouthEast() | own[Pawn].SouthWest()
	}
	for bb := own[Knight]; bb != 0; {
		attacks |= knightAttacks[bb.PopLSB()]
	}
	for bb := own[Bishop] | own[Queen]; bb != 0; {
		attacks |= BishopAttacks(bb.PopLSB(), occ)
	}
	for bb := own[Rook] | own[Queen]; bb != 0; {
		attacks |= RookAttacks(bb.PopLSB(), occ)
	}
	return attacks | kingAttacks[p.KingSquare[c]]
}

// UpdateCheckers recomputes the pieces giving check to the side to move.
func (p *Position) UpdateCheckers() {
	us := p.SideToMove
	if p.Pieces[us][King] == 0 {
		p.Checkers = 0
		return
	}
	p.Checkers = p.AttackersByColor(p.KingSquare[us], us.Other(), p.AllOccupied)
}
