package board

import (
	"fmt"
	"strings"
)

// CastlingRights is a 4-bit mask of the remaining castling options.
type CastlingRights uint8

const (
	WhiteKingSideCastle  CastlingRights = 1 << iota // K
	WhiteQueenSideCastle                            // Q
	BlackKingSideCastle                             // k
	BlackQueenSideCastle                            // q

	NoCastling  CastlingRights = 0
	AllCastling                = WhiteKingSideCastle | WhiteQueenSideCastle | BlackKingSideCastle | BlackQueenSideCastle
)

// String returns the FEN castling rights string.
func (cr CastlingRights) String() string {
	if cr == NoCastling {
		return "-"
	}
	var sb strings.Builder
	for i, c := range "KQkq" {
		if cr&(1<<i) != 0 {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// CanCastle returns true if the given side can castle in the given direction.
func (cr CastlingRights) CanCastle(c Color, kingSide bool) bool {
	bit := WhiteKingSideCastle << (2 * c)
	if !kingSide {
		bit <<= 1
	}
	return cr&bit != 0
}

// castlingMask[sq] clears the rights lost when a move touches sq.
var castlingMask = func() [64]CastlingRights {
	var m [64]CastlingRights
	for i := range m {
		m[i] = AllCastling
	}
	m[A1] &^= WhiteQueenSideCastle
	m[H1] &^= WhiteKingSideCastle
	m[E1] &^= WhiteKingSideCastle | WhiteQueenSideCastle
	m[A8] &^= BlackQueenSideCastle
	m[H8] &^= BlackKingSideCastle
	m[E8] &^= BlackKingSideCastle | BlackQueenSideCastle
	return m
}()

// castlingRookSquares maps the king's castling destination to the rook's move.
func castlingRookSquares(kingTo Square) (from, to Square) {
	if kingTo.File() == 6 {
		return kingTo + 1, kingTo - 1
	}
	return kingTo - 2, kingTo + 1
}

// Position is the bitboard board state. Occupied[c] is always the union of
// Pieces[c], AllOccupied the union of both colors, and each side has
// exactly one king.
type Position struct {
	Pieces      [2][6]Bitboard // [Color][PieceType]
	Occupied    [2]Bitboard
	AllOccupied Bitboard

	SideToMove     Color
	CastlingRights CastlingRights
	EnPassant      Square // NoSquare if none
	HalfMoveClock  int
	FullMoveNumber int

	Hash    uint64
	PawnKey uint64

	KingSquare [2]Square
	Checkers   Bitboard // pieces giving check to the side to move
}

// Undo holds what make needs to reverse one move.
type Undo struct {
	CastlingRights CastlingRights
	AllOccupied    Bitboard
	EnPassant      Square
	HalfMoveClock  int

	Hash     uint64
	PawnKey  uint64
	Checkers Bitboard
}

// NewPosition creates the starting position.
func NewPosition() *Position {
	pos, _ := ParseFEN(StartFEN)
	return pos
}

// Copy returns an independent copy of the position.
func (p *Position) Copy() *Position {
	c := *p
	return &c
}

// PieceAt returns the piece at the given square, or NoPiece if empty.
func (p *Position) PieceAt(sq Square) Piece {
	bb := SquareBB(sq)
	if p.AllOccupied&bb == 0 {
		return NoPiece
	}
	c := White
	if p.Occupied[Black]&bb != 0 {
		c = Black
	}
	for pt := Pawn; pt <= King; pt++ {
		if p.Pieces[c][pt]&bb != 0 {
			return NewPiece(pt, c)
		}
	}
	return NoPiece
}

// TypeAt returns the type of the piece of color c on sq, or NoPieceType.
func (p *Position) TypeAt(c Color, sq Square) PieceType {
	bb := SquareBB(sq)
	if p.Occupied[c]&bb == 0 {
		return NoPieceType
	}
	for pt := Pawn; pt <= King; pt++ {
		if p.Pieces[c][pt]&bb != 0 {
			return pt
		}
	}
	return NoPieceType
}

func (p *Position) setPiece(piece Piece, sq Square) {
	c, pt := piece.Color(), piece.Type()
	bb := SquareBB(sq)
	p.Pieces[c][pt] |= bb
	p.Occupied[c] |= bb
	p.AllOccupied |= bb
	if pt == King {
		p.KingSquare[c] = sq
	}
}

// InCheck returns true if the side to move is in check.
func (p *Position) InCheck() bool {
	return p.Checkers != 0
}

// MakeMove applies m and returns the record UnmakeMove needs. m must come
// from the move generator for this position.
func (p *Position) MakeMove(m Move) Undo {
	u := Undo{
		CastlingRights: p.CastlingRights,
		AllOccupied:    p.AllOccupied,
		EnPassant:      p.EnPassant,
		HalfMoveClock:  p.HalfMoveClock,
		Hash:           p.Hash,
		PawnKey:        p.PawnKey,
		Checkers:       p.Checkers,
	}
	p.applyMove(m)
	p.Hash = UpdateHash(u.Hash, m, u)
	p.PawnKey = updatePawnKey(u.PawnKey, m)
	p.UpdateCheckers()
	return u
}

// MakePermanent applies m without producing an undo record, for callers
// that never rewind.
func (p *Position) MakePermanent(m Move) {
	prev := Undo{CastlingRights: p.CastlingRights, EnPassant: p.EnPassant}
	hash, pawnKey := p.Hash, p.PawnKey
	p.applyMove(m)
	p.Hash = UpdateHash(hash, m, prev)
	p.PawnKey = updatePawnKey(pawnKey, m)
	p.UpdateCheckers()
}

func (p *Position) applyMove(m Move) {
	from, to := m.From(), m.To()
	piece := m.Piece()
	us, pt := piece.Color(), piece.Type()
	them := us.Other()

	if m.IsCapture() {
		bb := SquareBB(m.CapturedSquare())
		p.Pieces[them][m.Captured()] ^= bb
		p.Occupied[them] ^= bb
	}

	p.Pieces[us][pt] ^= SquareBB(from)
	if m.IsPromotion() {
		p.Pieces[us][m.Promotion()] ^= SquareBB(to)
	} else {
		p.Pieces[us][pt] ^= SquareBB(to)
	}
	p.Occupied[us] ^= SquareBB(from) | SquareBB(to)

	if pt == King {
		p.KingSquare[us] = to
		if m.IsCastling() {
			rookFrom, rookTo := castlingRookSquares(to)
			rookBB := SquareBB(rookFrom) | SquareBB(rookTo)
			p.Pieces[us][Rook] ^= rookBB
			p.Occupied[us] ^= rookBB
		}
	}
	p.AllOccupied = p.Occupied[White] | p.Occupied[Black]

	p.CastlingRights &= castlingMask[from] & castlingMask[to]

	p.EnPassant = NoSquare
	if m.IsDoublePush() {
		p.EnPassant = (from + to) / 2
	}

	if pt == Pawn || m.IsCapture() {
		p.HalfMoveClock = 0
	} else {
		p.HalfMoveClock++
	}
	if us == Black {
		p.FullMoveNumber++
	}
	p.SideToMove = them
}

// UnmakeMove restores the position to its state before MakeMove(m) returned u.
func (p *Position) UnmakeMove(m Move, u Undo) {
	from, to := m.From(), m.To()
	piece := m.Piece()
	us, pt := piece.Color(), piece.Type()
	them := us.Other()

	p.Pieces[us][pt] ^= SquareBB(from)
	if m.IsPromotion() {
		p.Pieces[us][m.Promotion()] ^= SquareBB(to)
	} else {
		p.Pieces[us][pt] ^= SquareBB(to)
	}
	p.Occupied[us] ^= SquareBB(from) | SquareBB(to)

	if pt == King {
		p.KingSquare[us] = from
		if m.IsCastling() {
			rookFrom, rookTo := castlingRookSquares(to)
			rookBB := SquareBB(rookFrom) | SquareBB(rookTo)
			p.Pieces[us][Rook] ^= rookBB
			p.Occupied[us] ^= rookBB
		}
	}

	if m.IsCapture() {
		bb := SquareBB(m.CapturedSquare())
		p.Pieces[them][m.Captured()] ^= bb
		p.Occupied[them] ^= bb
	}

	p.AllOccupied = u.AllOccupied
	p.CastlingRights = u.CastlingRights
	p.EnPassant = u.EnPassant
	p.HalfMoveClock = u.HalfMoveClock
	p.Hash = u.Hash
	p.PawnKey = u.PawnKey
	p.Checkers = u.Checkers
	if us == Black {
		p.FullMoveNumber--
	}
	p.SideToMove = us
}

// NullUndo restores a position after a null move.
type NullUndo struct {
	EnPassant     Square
	HalfMoveClock int
	Hash          uint64
	Checkers      Bitboard
}

// MakeNullMove passes the turn. The half-move clock is zeroed so repetition
// scans never reach across the null move.
func (p *Position) MakeNullMove() NullUndo {
	u := NullUndo{
		EnPassant:     p.EnPassant,
		HalfMoveClock: p.HalfMoveClock,
		Hash:          p.Hash,
		Checkers:      p.Checkers,
	}
	if p.EnPassant != NoSquare {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
		p.EnPassant = NoSquare
	}
	p.Hash ^= zobristWhite
	p.HalfMoveClock = 0
	p.SideToMove = p.SideToMove.Other()
	p.UpdateCheckers()
	return u
}

// UnmakeNullMove undoes a null move.
func (p *Position) UnmakeNullMove(u NullUndo) {
	p.EnPassant = u.EnPassant
	p.HalfMoveClock = u.HalfMoveClock
	p.Hash = u.Hash
	p.Checkers = u.Checkers
	p.SideToMove = p.SideToMove.Other()
}

// HasNonPawnMaterial returns true if the side to move has a piece other than
// pawns and king. Without one, null move pruning risks zugzwang.
func (p *Position) HasNonPawnMaterial() bool {
	us := p.SideToMove
	return p.Pieces[us][Knight]|p.Pieces[us][Bishop]|p.Pieces[us][Rook]|p.Pieces[us][Queen] != 0
}

// PieceCount returns the number of pieces on the board, kings included.
func (p *Position) PieceCount() int {
	return p.AllOccupied.PopCount()
}

// IsFiftyMoveDraw reports whether the fifty-move rule applies.
func (p *Position) IsFiftyMoveDraw() bool {
	return p.HalfMoveClock >= 100
}

// IsInsufficientMaterial returns true if neither side can checkmate.
func (p *Position) IsInsufficientMaterial() bool {
	if p.Pieces[White][Pawn]|p.Pieces[Black][Pawn]|
		p.Pieces[White][Rook]|p.Pieces[Black][Rook]|
		p.Pieces[White][Queen]|p.Pieces[Black][Queen] != 0 {
		return false
	}

	white := p.Pieces[White][Knight].PopCount() + p.Pieces[White][Bishop].PopCount()
	black := p.Pieces[Black][Knight].PopCount() + p.Pieces[Black][Bishop].PopCount()
	return white+black <= 1
}

// Validate checks the board invariants a parsed position must satisfy.
func (p *Position) Validate() error {
	for c := White; c <= Black; c++ {
		if p.Pieces[c][King].PopCount() != 1 {
			return fmt.Errorf("%s must have exactly one king", c)
		}
		var union Bitboard
		for pt := Pawn; pt <= King; pt++ {
			if union&p.Pieces[c][pt] != 0 {
				return fmt.Errorf("%s pieces overlap", c)
			}
			union |= p.Pieces[c][pt]
		}
		if union != p.Occupied[c] {
			return fmt.Errorf("%s occupancy out of sync", c)
		}
	}
	if p.Occupied[White]&p.Occupied[Black] != 0 {
		return fmt.Errorf("colors overlap")
	}
	if (p.Pieces[White][Pawn]|p.Pieces[Black][Pawn])&(Rank1|Rank8) != 0 {
		return fmt.Errorf("pawns on rank 1 or 8")
	}
	them := p.SideToMove.Other()
	if p.IsSquareAttacked(p.KingSquare[them], p.SideToMove) {
		return fmt.Errorf("side not to move is in check")
	}
	return nil
}

// String renders the board for debugging.
func (p *Position) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d  ", rank+1)
		for file := 0; file < 8; file++ {
			if piece := p.PieceAt(NewSquare(file, rank)); piece == NoPiece {
				sb.WriteString(". ")
			} else {
				sb.WriteString(piece.String() + " ")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n   a b c d e f g h\n\n")
	fmt.Fprintf(&sb, "Fen: %s\n", p.FEN())
	fmt.Fprintf(&sb, "Key: %016X\n", p.Hash)
	if p.Checkers != 0 {
		fmt.Fprintf(&sb, "Checkers: %v\n", p.Checkers.Squares())
	}
	return sb.String()
}
