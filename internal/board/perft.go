package board

// Perft counts the leaf nodes of the legal move tree to depth.
func Perft(pos *Position, depth int) uint64 {
	if depth <= 0 {
		return 1
	}

	var g MoveGen
	g.Init(pos, false)
	if depth == 1 {
		var n uint64
		for g.NextBatch() {
			n += uint64(g.Batch().Len())
		}
		return n
	}

	var nodes uint64
	for {
		m, ok := g.Next()
		if !ok {
			return nodes
		}
		u := pos.MakeMove(m)
		nodes += Perft(pos, depth-1)
		pos.UnmakeMove(m, u)
	}
}
