package nnue

import "github.com/hailam/chesscore/internal/board"

// Accumulator holds the first layer pre-activations for both perspectives.
// A perspective whose king moved is marked stale and rebuilt from the
// position the next time it is evaluated.
type Accumulator struct {
	Values [2][L1Size]int16
	King   [2]board.Square
	Valid  [2]bool
}

func (a *Accumulator) add(net *Network, p board.Color, feature int) {
	w := &net.L1Weights[feature]
	v := &a.Values[p]
	for i := range v {
		v[i] += w[i]
	}
}

func (a *Accumulator) sub(net *Network, p board.Color, feature int) {
	w := &net.L1Weights[feature]
	v := &a.Values[p]
	for i := range v {
		v[i] -= w[i]
	}
}

// refresh rebuilds perspective p from scratch.
func (a *Accumulator) refresh(net *Network, pos *board.Position, p board.Color, scratch []int) []int {
	a.Values[p] = net.L1Bias
	scratch = activeFeatures(scratch[:0], pos, p)
	for _, f := range scratch {
		a.add(net, p, f)
	}
	a.King[p] = pos.KingSquare[p]
	a.Valid[p] = true
	return scratch
}

// apply updates the accumulator for m, already played. A king move
// invalidates its own side's perspective only: the other perspective
// does not see kings as features.
func (a *Accumulator) apply(net *Network, m board.Move) {
	us := m.Piece().Color()
	pt := m.Piece().Type()
	for p := board.White; p <= board.Black; p++ {
		if !a.Valid[p] {
			continue
		}
		if pt == board.King && p == us {
			a.Valid[p] = false
			continue
		}
		king := a.King[p]
		if pt != board.King {
			a.sub(net, p, Feature(p, king, pt, us, m.From()))
			placed := pt
			if m.IsPromotion() {
				placed = m.Promotion()
			}
			a.add(net, p, Feature(p, king, placed, us, m.To()))
		}
		if captured := m.Captured(); captured != board.NoPieceType {
			a.sub(net, p, Feature(p, king, captured, us.Other(), m.CapturedSquare()))
		}
		if m.IsCastling() {
			from, to := m.RookSquares()
			a.sub(net, p, Feature(p, king, board.Rook, us, from))
			a.add(net, p, Feature(p, king, board.Rook, us, to))
		}
	}
}
