package board

import (
	"errors"
	"fmt"
)

// ErrIllegalMove is returned when a move string does not name a legal move.
var ErrIllegalMove = errors.New("illegal move")

// Move encodes a chess move in 32 bits:
// bits 0-5:   from square
// bits 6-11:  to square
// bits 12-15: moving Piece (with color)
// bits 16-18: captured PieceType (NoPieceType if none)
// bits 19-21: promotion PieceType (NoPieceType if none)
// bits 22-23: flags (0=normal, 1=promotion, 2=en passant, 3=castling)
type Move uint32

const (
	FlagNormal    uint32 = 0 << 22
	FlagPromotion uint32 = 1 << 22
	FlagEnPassant uint32 = 2 << 22
	FlagCastling  uint32 = 3 << 22

	flagMask = 3 << 22
)

// NoMove represents an invalid or null move.
const NoMove Move = 0

func encodeMove(from, to Square, piece Piece, captured, promo PieceType, flag uint32) Move {
	return Move(uint32(from) | uint32(to)<<6 | uint32(piece)<<12 |
		uint32(captured)<<16 | uint32(promo)<<19 | flag)
}

// NewMove creates a normal move; captured is NoPieceType for quiet moves.
func NewMove(from, to Square, piece Piece, captured PieceType) Move {
	return encodeMove(from, to, piece, captured, NoPieceType, FlagNormal)
}

// NewPromotion creates a pawn promotion, optionally capturing.
func NewPromotion(from, to Square, c Color, captured, promo PieceType) Move {
	return encodeMove(from, to, NewPiece(Pawn, c), captured, promo, FlagPromotion)
}

// NewEnPassant creates an en passant capture; to is the en passant target square.
func NewEnPassant(from, to Square, c Color) Move {
	return encodeMove(from, to, NewPiece(Pawn, c), Pawn, NoPieceType, FlagEnPassant)
}

// NewCastling creates a castling move encoded as the king's two-square step.
func NewCastling(from, to Square, c Color) Move {
	return encodeMove(from, to, NewPiece(King, c), NoPieceType, NoPieceType, FlagCastling)
}

func (m Move) From() Square {
	return Square(m & 0x3F)
}

func (m Move) To() Square {
	return Square((m >> 6) & 0x3F)
}

// Piece returns the moving piece.
func (m Move) Piece() Piece {
	return Piece((m >> 12) & 0xF)
}

// Captured returns the captured piece type, NoPieceType for non-captures.
func (m Move) Captured() PieceType {
	return PieceType((m >> 16) & 7)
}

// Promotion returns the promotion piece type, NoPieceType if none.
func (m Move) Promotion() PieceType {
	return PieceType((m >> 19) & 7)
}

func (m Move) flag() uint32 {
	return uint32(m) & flagMask
}

func (m Move) IsCapture() bool {
	return m.Captured() != NoPieceType
}

func (m Move) IsPromotion() bool {
	return m.flag() == FlagPromotion
}

func (m Move) IsEnPassant() bool {
	return m.flag() == FlagEnPassant
}

func (m Move) IsCastling() bool {
	return m.flag() == FlagCastling
}

// IsKingSide reports whether a castling move goes toward the h-file.
func (m Move) IsKingSide() bool {
	return m.To() > m.From()
}

// IsTactical reports captures and promotions, the moves quiescence searches.
func (m Move) IsTactical() bool {
	return m.IsCapture() || m.IsPromotion()
}

// IsQuiet is the complement of IsTactical.
func (m Move) IsQuiet() bool {
	return !m.IsTactical()
}

// CapturedSquare returns where the captured piece stands. It differs from
// To only for en passant.
func (m Move) CapturedSquare() Square {
	if m.IsEnPassant() {
		return NewSquare(m.To().File(), m.From().Rank())
	}
	return m.To()
}

// RookSquares returns the rook's origin and destination for a castling move.
func (m Move) RookSquares() (from, to Square) {
	return castlingRookSquares(m.To())
}

// IsDoublePush reports a two-square pawn advance.
func (m Move) IsDoublePush() bool {
	d := int(m.To()) - int(m.From())
	return m.Piece().Type() == Pawn && (d == 16 || d == -16)
}

// SameAs compares the from, to and promotion fields only. A move decoded from
// a transposition entry is matched against generated moves this way.
func (m Move) SameAs(o Move) bool {
	const key = 0xFFF | 7<<19
	return m&key == o&key
}

// String returns the UCI format of the move (e.g., "e2e4", "e7e8q").
func (m Move) String() string {
	if m == NoMove {
		return "0000"
	}
	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += string(m.Promotion().Char())
	}
	return s
}

// ParseMove resolves a UCI coordinate move against the legal moves of pos,
// so the result carries the moving piece, capture and flags.
func ParseMove(s string, pos *Position) (Move, error) {
	if len(s) < 4 || len(s) > 5 {
		return NoMove, fmt.Errorf("%w: %q", ErrIllegalMove, s)
	}
	ml, _ := pos.LegalMoves()
	for i := 0; i < ml.Len(); i++ {
		if m := ml.Get(i); m.String() == s {
			return m, nil
		}
	}
	return NoMove, fmt.Errorf("%w: %q in %s", ErrIllegalMove, s, pos.FEN())
}

// MaxMoves bounds the legal moves of any reachable position (218).
const MaxMoves = 256

// MoveList is a fixed-size list of moves with ordering scores, so that
// generation allocates nothing.
type MoveList struct {
	moves  [MaxMoves]Move
	scores [MaxMoves]int32
	count  int
}

// NewMoveList creates an empty move list.
func NewMoveList() *MoveList {
	return &MoveList{}
}

func (ml *MoveList) Add(m Move) {
	ml.moves[ml.count] = m
	ml.scores[ml.count] = 0
	ml.count++
}

func (ml *MoveList) Len() int {
	return ml.count
}

func (ml *MoveList) Get(i int) Move {
	return ml.moves[i]
}

func (ml *MoveList) Score(i int) int32 {
	return ml.scores[i]
}

func (ml *MoveList) SetScore(i int, s int32) {
	ml.scores[i] = s
}

func (ml *MoveList) Swap(i, j int) {
	ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i]
	ml.scores[i], ml.scores[j] = ml.scores[j], ml.scores[i]
}

func (ml *MoveList) Clear() {
	ml.count = 0
}

// Contains reports whether a move with the same from, to and promotion is listed.
func (ml *MoveList) Contains(m Move) bool {
	for i := 0; i < ml.count; i++ {
		if ml.moves[i].SameAs(m) {
			return true
		}
	}
	return false
}

// Slice returns the moves as a slice sharing the list's storage.
func (ml *MoveList) Slice() []Move {
	return ml.moves[:ml.count]
}

// Sort orders moves by descending score with a stable insertion sort.
func (ml *MoveList) Sort() {
	for i := 1; i < ml.count; i++ {
		m, s := ml.moves[i], ml.scores[i]
		j := i - 1
		for j >= 0 && ml.scores[j] < s {
			ml.moves[j+1], ml.scores[j+1] = ml.moves[j], ml.scores[j]
			j--
		}
		ml.moves[j+1], ml.scores[j+1] = m, s
	}
}
