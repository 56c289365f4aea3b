// Package nnue is an efficiently updatable neural network evaluation. The
// first layer is a HalfKP feature transformer kept incrementally in an
// accumulator stack that follows the search's make and unmake calls.
package nnue

import "github.com/hailam/chesscore/internal/board"

const (
	// NumPieceKinds counts pawn to queen for both colors. Kings are not
	// features; they select the weight bucket.
	NumPieceKinds = 10
	HalfKPSize    = 64 * NumPieceKinds * 64

	L1Size = 256 // per perspective
	L2Size = 32

	L1QuantShift = 6
	L2QuantShift = 6
	OutputScale  = 600

	// MaxScore keeps network output clear of the mate range.
	MaxScore = 10_000

	maxStack = 512
)

// Evaluator scores positions with a Network.
type Evaluator struct {
	net     *Network
	stack   []Accumulator
	top     int
	scratch []int
}

// New returns an evaluator backed by net. net is shared read-only, so one
// network can serve many evaluators.
func New(net *Network) *Evaluator {
	return &Evaluator{
		net:     net,
		stack:   make([]Accumulator, maxStack),
		scratch: make([]int, 0, 32),
	}
}

// Load reads a network from path and returns an evaluator for it.
func Load(path string) (*Evaluator, error) {
	net, err := LoadNetwork(path)
	if err != nil {
		return nil, err
	}
	return New(net), nil
}

// Network returns the weights the evaluator runs.
func (e *Evaluator) Network() *Network { return e.net }

func (e *Evaluator) Init(pos *board.Position) {
	e.top = 0
	acc := &e.stack[0]
	for p := board.White; p <= board.Black; p++ {
		e.scratch = acc.refresh(e.net, pos, p, e.scratch)
	}
}

// OnMake pushes the accumulator for the position after m. board.NoMove is
// a null move and changes no feature.
func (e *Evaluator) OnMake(m board.Move) {
	if e.top+1 >= len(e.stack) {
		e.stack = append(e.stack, make([]Accumulator, len(e.stack))...)
	}
	e.stack[e.top+1] = e.stack[e.top]
	e.top++
	if m != board.NoMove {
		e.stack[e.top].apply(e.net, m)
	}
}

func (e *Evaluator) OnUnmake() {
	if e.top > 0 {
		e.top--
	}
}

// Clear drops incremental state; the next Init rebuilds it.
func (e *Evaluator) Clear() {
	e.top = 0
	e.stack[0].Valid = [2]bool{}
}

// Evaluate returns the network score of pos in centipawns for the side to
// move. Perspectives invalidated by a king move are rebuilt here.
func (e *Evaluator) Evaluate(pos *board.Position) int {
	acc := &e.stack[e.top]
	for p := board.White; p <= board.Black; p++ {
		if !acc.Valid[p] {
			e.scratch = acc.refresh(e.net, pos, p, e.scratch)
		}
	}
	return min(max(e.net.Forward(acc, pos.SideToMove), -MaxScore), MaxScore)
}
