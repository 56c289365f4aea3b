package engine

import "github.com/hailam/chesscore/internal/board"

var seeValue = board.PieceValue

// SEE (Static Exchange Evaluation) estimates the material balance of the
// capture sequence m starts on its destination square, from the mover's
// point of view. Both sides recapture with their least valuable attacker
// and may stop whenever continuing would lose material.
func SEE(pos *board.Position, m board.Move) int {
	to := m.To()
	gain := 0
	if m.IsCapture() {
		gain = seeValue[m.Captured()]
	}

	attacker := m.Piece().Type()
	if m.IsPromotion() {
		attacker = m.Promotion()
		gain += seeValue[attacker] - seeValue[board.Pawn]
	}

	occupied := pos.AllOccupied &^ board.SquareBB(m.From())
	if m.IsEnPassant() {
		occupied &^= board.SquareBB(m.CapturedSquare())
	}
	return seeSwap(pos, to, occupied, m.Piece().Color().Other(), attacker, gain)
}

// seeSwap plays the recaptures on target, alternating sides, and negamaxes
// the gain list back to the first capture.
func seeSwap(pos *board.Position, target board.Square, occupied board.Bitboard, side board.Color, onTarget board.PieceType, initialGain int) int {
	var gain [32]int
	d := 0
	gain[d] = initialGain

	for d < len(gain)-1 {
		sq, pt := leastValuableAttacker(pos, target, side, occupied)
		if sq == board.NoSquare {
			break
		}
		d++
		gain[d] = seeValue[onTarget] - gain[d-1]

		// Neither side can improve by continuing.
		if max(-gain[d-1], gain[d]) < 0 {
			break
		}
		occupied &^= board.SquareBB(sq)
		onTarget = pt
		side = side.Other()
	}

	for ; d > 0; d-- {
		gain[d-1] = -max(-gain[d-1], gain[d])
	}
	return gain[0]
}

// leastValuableAttacker finds the cheapest piece of side attacking target
// through occupied. Removing pieces from occupied uncovers x-ray attackers.
func leastValuableAttacker(pos *board.Position, target board.Square, side board.Color, occupied board.Bitboard) (board.Square, board.PieceType) {
	pieces := &pos.Pieces[side]

	if bb := pieces[board.Pawn] & board.PawnAttacks(target, side.Other()) & occupied; bb != 0 {
		return bb.LSB(), board.Pawn
	}
	if bb := pieces[board.Knight] & board.KnightAttacks(target) & occupied; bb != 0 {
		return bb.LSB(), board.Knight
	}
	diagonal := board.BishopAttacks(target, occupied)
	if bb := pieces[board.Bishop] & diagonal & occupied; bb != 0 {
		return bb.LSB(), board.Bishop
	}
	straight := board.RookAttacks(target, occupied)
	if bb := pieces[board.Rook] & straight & occupied; bb != 0 {
		return bb.LSB(), board.Rook
	}
	if bb := pieces[board.Queen] & (diagonal | straight) & occupied; bb != 0 {
		return bb.LSB(), board.Queen
	}
	if bb := pieces[board.King] & board.KingAttacks(target) & occupied; bb != 0 {
		return bb.LSB(), board.King
	}
	return board.NoSquare, board.NoPieceType
}
