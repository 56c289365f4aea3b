package nnue

import (
	"lukechampine.com/frand"

	"github.com/hailam/chesscore/internal/board"
)

// Network holds quantized weights: a HalfKP feature transformer shared by
// both perspectives, one hidden layer and a single output.
type Network struct {
	L1Weights [HalfKPSize][L1Size]int16
	L1Bias    [L1Size]int16

	L2Weights [2 * L1Size][L2Size]int8
	L2Bias    [L2Size]int32

	OutputWeights [L2Size]int8
	OutputBias    int32
}

func clippedReLU(x int32) int32 {
	return min(max(x, 0), 127)
}

// Forward scores acc in centipawns for the side to move stm.
func (n *Network) Forward(acc *Accumulator, stm board.Color) int {
	var hidden [2 * L1Size]int32
	for i := range L1Size {
		hidden[i] = clippedReLU(int32(acc.Values[stm][i]))
		hidden[L1Size+i] = clippedReLU(int32(acc.Values[stm.Other()][i]))
	}

	out := n.OutputBias
	for j := range L2Size {
		sum := n.L2Bias[j]
		for i, h := range hidden {
			if h != 0 {
				sum += h * int32(n.L2Weights[i][j])
			}
		}
		out += clippedReLU(sum>>L1QuantShift) * int32(n.OutputWeights[j])
	}
	return int(out * OutputScale >> (L2QuantShift + 8))
}

// Randomize fills the network with small weights drawn from a stream keyed
// by seed. The result plays nonsense but exercises every code path, which
// is what tests need when no trained network is around.
func (n *Network) Randomize(seed uint64) {
	var key [32]byte
	for i := range 8 {
		key[i] = byte(seed >> (8 * i))
	}
	rng := frand.NewCustom(key[:], 1024, 12)
	small := func(shift uint) int16 {
		return int16(int8(rng.Uint64n(256))) >> shift
	}

	row := make([]byte, L1Size)
	for f := range n.L1Weights {
		rng.Read(row)
		for i, b := range row {
			n.L1Weights[f][i] = int16(int8(b)) >> 5
		}
	}
	for i := range n.L1Bias {
		n.L1Bias[i] = small(3)
	}
	for i := range n.L2Weights {
		for j := range n.L2Weights[i] {
			n.L2Weights[i][j] = int8(small(2))
		}
	}
	for j := range n.L2Bias {
		n.L2Bias[j] = int32(small(0))
	}
	for j := range n.OutputWeights {
		n.OutputWeights[j] = int8(small(2))
	}
	n.OutputBias = int32(small(0)) * 100
}
