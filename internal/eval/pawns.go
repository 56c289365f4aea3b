package eval

import "github.com/hailam/chesscore/internal/board"

const (
	doubledMg, doubledEg   = -10, -20
	isolatedMg, isolatedEg = -12, -18
)

var (
	passedMg = [8]int{0, 5, 10, 15, 25, 45, 70, 0}
	passedEg = [8]int{0, 10, 20, 35, 60, 100, 150, 0}
)

var (
	// passedMask[c][sq] covers the squares ahead of a pawn on sq on its own
	// and both neighbouring files. No enemy pawn there means it is passed.
	passedMask [2][64]board.Bitboard
	// adjacentFiles[f] is the union of the files beside f.
	adjacentFiles [8]board.Bitboard
)

func init() {
	for f := 0; f < 8; f++ {
		if f > 0 {
			adjacentFiles[f] |= board.FileMask[f-1]
		}
		if f < 7 {
			adjacentFiles[f] |= board.FileMask[f+1]
		}
	}
	for sq := board.A1; sq <= board.H8; sq++ {
		span := board.FileMask[sq.File()] | adjacentFiles[sq.File()]
		bb := board.SquareBB(sq)
		passedMask[board.White][sq] = bb.North().NorthFill() & span
		passedMask[board.Black][sq] = bb.South().SouthFill() & span
	}
}

type pawnEntry struct {
	key    uint64
	mg, eg int16
}

// PawnTable caches pawn structure scores by pawn key. Pawn structure changes
// rarely during search, so most probes hit.
type PawnTable struct {
	entries []pawnEntry
	mask    uint64
}

// NewPawnTable allocates a table of roughly sizeKB kilobytes, rounded down
// to a power of two entries.
func NewPawnTable(sizeKB int) *PawnTable {
	n := sizeKB * 1024 / 16
	size := 1
	for size*2 <= n {
		size *= 2
	}
	return &PawnTable{
		entries: make([]pawnEntry, size),
		mask:    uint64(size - 1),
	}
}

func (t *PawnTable) Probe(key uint64) (mg, eg int, ok bool) {
	e := &t.entries[key&t.mask]
	if e.key != key {
		return 0, 0, false
	}
	return int(e.mg), int(e.eg), true
}

func (t *PawnTable) Store(key uint64, mg, eg int) {
	t.entries[key&t.mask] = pawnEntry{key: key, mg: int16(mg), eg: int16(eg)}
}

func (t *PawnTable) Clear() {
	clear(t.entries)
}

// pawnStructure scores doubled, isolated and passed pawns from white's side.
// It reads only pawn bitboards, so the result is valid for any position
// sharing the pawn key.
func pawnStructure(pos *board.Position) (mg, eg int) {
	for c := board.White; c <= board.Black; c++ {
		sign := 1
		if c == board.Black {
			sign = -1
		}
		own := pos.Pieces[c][board.Pawn]
		enemy := pos.Pieces[c.Other()][board.Pawn]

		var m, e int
		for f := 0; f < 8; f++ {
			n := (own & board.FileMask[f]).PopCount()
			if n == 0 {
				continue
			}
			if n > 1 {
				m += doubledMg * (n - 1)
				e += doubledEg * (n - 1)
			}
			if own&adjacentFiles[f] == 0 {
				m += isolatedMg * n
				e += isolatedEg * n
			}
		}

		for bb := own; bb != 0; {
			sq := bb.PopLSB()
			if passedMask[c][sq]&enemy != 0 {
				continue
			}
			// Only the front pawn of a doubled pair counts as passed.
			if passedMask[c][sq]&board.FileMask[sq.File()]&own != 0 {
				continue
			}
			r := sq.RelativeRank(c)
			m += passedMg[r]
			e += passedEg[r]
		}

		mg += sign * m
		eg += sign * e
	}
	return mg, eg
}

// passedPawns returns the passed pawns of color c.
func passedPawns(pos *board.Position, c board.Color) board.Bitboard {
	var passed board.Bitboard
	enemy := pos.Pieces[c.Other()][board.Pawn]
	for bb := pos.Pieces[c][board.Pawn]; bb != 0; {
		sq := bb.PopLSB()
		if passedMask[c][sq]&enemy == 0 {
			passed |= board.SquareBB(sq)
		}
	}
	return passed
}
