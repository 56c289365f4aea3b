package board

import (
	"encoding/binary"

	"lukechampine.com/frand"
)

// Zobrist keys. The side key is applied when white is to move and each
// castling right has its own key.
var (
	zobristPiece     [2][6][64]uint64
	zobristEnPassant [8]uint64
	zobristCastling  [4]uint64
	zobristWhite     uint64

	// castlingKeys[cr] caches the XOR of the per-right keys set in cr.
	castlingKeys [16]uint64
)

var zobristSeed = [32]byte{'c', 'h', 'e', 's', 's', 'c', 'o', 'r', 'e', '/', 'z', 'o', 'b', 'r', 'i', 's', 't'}

func init() {
	rng := frand.NewCustom(zobristSeed[:], 1024, 12)
	var buf [8]byte
	next := func() uint64 {
		rng.Read(buf[:])
		return binary.LittleEndian.Uint64(buf[:])
	}

	for c := White; c <= Black; c++ {
		for pt := Pawn; pt <= King; pt++ {
			for sq := A1; sq <= H8; sq++ {
				zobristPiece[c][pt][sq] = next()
			}
		}
	}
	for f := range zobristEnPassant {
		zobristEnPassant[f] = next()
	}
	for i := range zobristCastling {
		zobristCastling[i] = next()
	}
	zobristWhite = next()

	for cr := range castlingKeys {
		for i := range zobristCastling {
			if cr&(1<<i) != 0 {
				castlingKeys[cr] ^= zobristCastling[i]
			}
		}
	}
}

// ZobristPiece returns the key for a piece of color c and type pt on sq.
func ZobristPiece(c Color, pt PieceType, sq Square) uint64 {
	return zobristPiece[c][pt][sq]
}

// ComputeHash computes the Zobrist hash of the position from scratch.
func (p *Position) ComputeHash() uint64 {
	var hash uint64
	for c := White; c <= Black; c++ {
		for pt := Pawn; pt <= King; pt++ {
			for bb := p.Pieces[c][pt]; bb != 0; {
				hash ^= zobristPiece[c][pt][bb.PopLSB()]
			}
		}
	}
	if p.SideToMove == White {
		hash ^= zobristWhite
	}
	hash ^= castlingKeys[p.CastlingRights]
	if p.EnPassant != NoSquare {
		hash ^= zobristEnPassant[p.EnPassant.File()]
	}
	return hash
}

// ComputePawnKey hashes only the pawns, for pawn structure caching.
func (p *Position) ComputePawnKey() uint64 {
	var key uint64
	for c := White; c <= Black; c++ {
		for bb := p.Pieces[c][Pawn]; bb != 0; {
			key ^= zobristPiece[c][Pawn][bb.PopLSB()]
		}
	}
	return key
}

// UpdateHash derives the hash after m from the hash before it, using only
// the move and the undo record make returned. The result always equals
// ComputeHash on the position after the move.
func UpdateHash(prev uint64, m Move, u Undo) uint64 {
	from, to := m.From(), m.To()
	piece := m.Piece()
	us, pt := piece.Color(), piece.Type()
	them := us.Other()

	h := prev ^ zobristWhite
	h ^= zobristPiece[us][pt][from]
	if m.IsPromotion() {
		h ^= zobristPiece[us][m.Promotion()][to]
	} else {
		h ^= zobristPiece[us][pt][to]
	}
	if m.IsCapture() {
		h ^= zobristPiece[them][m.Captured()][m.CapturedSquare()]
	}
	if m.IsCastling() {
		rookFrom, rookTo := castlingRookSquares(to)
		h ^= zobristPiece[us][Rook][rookFrom] ^ zobristPiece[us][Rook][rookTo]
	}

	rights := u.CastlingRights & castlingMask[from] & castlingMask[to]
	h ^= castlingKeys[u.CastlingRights] ^ castlingKeys[rights]

	if u.EnPassant != NoSquare {
		h ^= zobristEnPassant[u.EnPassant.File()]
	}
	if m.IsDoublePush() {
		h ^= zobristEnPassant[from.File()]
	}
	return h
}

// updatePawnKey is the pawn-only counterpart of UpdateHash.
func updatePawnKey(prev uint64, m Move) uint64 {
	us := m.Piece().Color()
	k := prev
	if m.Piece().Type() == Pawn {
		k ^= zobristPiece[us][Pawn][m.From()]
		if !m.IsPromotion() {
			k ^= zobristPiece[us][Pawn][m.To()]
		}
	}
	if m.Captured() == Pawn {
		k ^= zobristPiece[us.Other()][Pawn][m.CapturedSquare()]
	}
	return k
}
