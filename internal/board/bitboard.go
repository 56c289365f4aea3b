package board

import (
	"math/bits"
	"strings"
)

// Bitboard is a set of squares, bit i standing for Square(i).
type Bitboard uint64

const (
	Empty    Bitboard = 0
	Universe Bitboard = ^Empty

	FileA Bitboard = 0x0101010101010101
	FileH Bitboard = FileA << 7
	Rank1 Bitboard = 0xFF
	Rank8 Bitboard = Rank1 << 56

	NotFileA  Bitboard = ^FileA
	NotFileH  Bitboard = ^FileH
	NotFileAB Bitboard = ^(FileA | FileA<<1)
	NotFileGH Bitboard = ^(FileH | FileH>>1)

	// Edges never hold a relevant blocker for a slider.
	Edges Bitboard = FileA | FileH | Rank1 | Rank8
)

// FileMask and RankMask are indexed by Square.File and Square.Rank.
var FileMask, RankMask = lineMasks()

func lineMasks() (files, ranks [8]Bitboard) {
	for i := range 8 {
		files[i] = FileA << i
		ranks[i] = Rank1 << (8 * i)
	}
	return files, ranks
}

// shiftBy and shiftMask give, per Direction, the bit shift of a one-step move
// and the mask that drops squares wrapping around the a/h files.
var (
	shiftBy   = [8]int{8, 9, 1, -7, -8, -9, -1, 7}
	shiftMask = [8]Bitboard{Universe, NotFileA, NotFileA, NotFileA, Universe, NotFileH, NotFileH, NotFileH}
)

// Shift moves every square one step in direction d, dropping squares that
// leave the board.
func (b Bitboard) Shift(d Direction) Bitboard {
	if n := shiftBy[d]; n > 0 {
		return (b << n) & shiftMask[d]
	}
	return (b >> -shiftBy[d]) & shiftMask[d]
}

func (b Bitboard) North() Bitboard     { return b << 8 }
func (b Bitboard) South() Bitboard     { return b >> 8 }
func (b Bitboard) East() Bitboard      { return b.Shift(East) }
func (b Bitboard) West() Bitboard      { return b.Shift(West) }
func (b Bitboard) NorthEast() Bitboard { return b.Shift(NorthEast) }
func (b Bitboard) NorthWest() Bitboard { return b.Shift(NorthWest) }
func (b Bitboard) SouthEast() Bitboard { return b.Shift(SouthEast) }
func (b Bitboard) SouthWest() Bitboard { return b.Shift(SouthWest) }

// Forward steps one rank toward c's promotion rank.
func (b Bitboard) Forward(c Color) Bitboard {
	if c == White {
		return b << 8
	}
	return b >> 8
}

// NorthFill and SouthFill smear every square to the board edge.
func (b Bitboard) NorthFill() Bitboard {
	b |= b << 8
	b |= b << 16
	return b | b<<32
}

func (b Bitboard) SouthFill() Bitboard {
	b |= b >> 8
	b |= b >> 16
	return b | b>>32
}

func SquareBB(sq Square) Bitboard {
	return 1 << sq
}

func (b Bitboard) Clear(sq Square) Bitboard {
	return b &^ SquareBB(sq)
}

func (b Bitboard) IsSet(sq Square) bool {
	return b&SquareBB(sq) != 0
}

func (b Bitboard) PopCount() int {
	return bits.OnesCount64(uint64(b))
}

// Several reports whether more than one square is set.
func (b Bitboard) Several() bool {
	return b&(b-1) != 0
}

// LSB and MSB return NoSquare for an empty set.
func (b Bitboard) LSB() Square {
	if b == 0 {
		return NoSquare
	}
	return Square(bits.TrailingZeros64(uint64(b)))
}

func (b Bitboard) MSB() Square {
	if b == 0 {
		return NoSquare
	}
	return Square(63 - bits.LeadingZeros64(uint64(b)))
}

// PopLSB clears the lowest square and returns it.
func (b *Bitboard) PopLSB() Square {
	sq := b.LSB()
	*b &= *b - 1
	return sq
}

func (b Bitboard) Squares() []Square {
	out := make([]Square, 0, b.PopCount())
	for b != 0 {
		out = append(out, b.PopLSB())
	}
	return out
}

// String draws the set as an 8x8 grid, rank 8 on top.
func (b Bitboard) String() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		row := []byte("  . . . . . . . .\n")
		row[0] = byte('1' + rank)
		for file := range 8 {
			if b.IsSet(NewSquare(file, rank)) {
				row[2+2*file] = 'x'
			}
		}
		sb.Write(row)
	}
	sb.WriteString("  a b c d e f g h\n")
	return sb.String()
}
