package engine

import (
	"unsafe"

	"github.com/rs/zerolog/log"

	"github.com/hailam/chesscore/internal/board"
)

// TTFlag indicates the type of bound stored in the transposition table.
type TTFlag uint8

const (
	TTExact      TTFlag = iota + 1 // Exact score
	TTLowerBound                   // Failed high (beta cutoff)
	TTUpperBound                   // Failed low
)

func (f TTFlag) String() string {
	switch f {
	case TTExact:
		return "exact"
	case TTLowerBound:
		return "lower"
	case TTUpperBound:
		return "upper"
	}
	return "none"
}

// TTEntry represents an entry in the transposition table. A zero Flag marks
// an empty slot.
type TTEntry struct {
	Key        uint64
	Move       board.Move
	Score      int16
	StaticEval int16
	Depth      int8
	Flag       TTFlag
}

// TranspositionTable is a fixed array of entries indexed by the low bits of
// the Zobrist key. Store always overwrites; a probe whose key differs from
// the slot's is a miss.
type TranspositionTable struct {
	entries []TTEntry
	mask    uint64

	hits   uint64
	probes uint64
}

// NewTranspositionTable creates a transposition table with the given size in MB.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	if sizeMB < 1 {
		sizeMB = 1
	}
	entrySize := uint64(unsafe.Sizeof(TTEntry{}))
	n := roundDownToPowerOf2(uint64(sizeMB) * 1024 * 1024 / entrySize)

	log.Debug().Int("mb", sizeMB).Uint64("entries", n).Msg("transposition table allocated")
	return &TranspositionTable{
		entries: make([]TTEntry, n),
		mask:    n - 1,
	}
}

// roundDownToPowerOf2 rounds n down to the nearest power of 2.
func roundDownToPowerOf2(n uint64) uint64 {
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

// Probe looks up a position in the transposition table.
func (tt *TranspositionTable) Probe(hash uint64) (TTEntry, bool) {
	tt.probes++
	e := tt.entries[hash&tt.mask]
	if e.Flag == 0 || e.Key != hash {
		return TTEntry{}, false
	}
	tt.hits++
	return e, true
}

// Store writes the slot for hash unconditionally. score must already be
// adjusted with AdjustScoreToTT.
func (tt *TranspositionTable) Store(hash uint64, depth, score, staticEval int, flag TTFlag, move board.Move) {
	tt.entries[hash&tt.mask] = TTEntry{
		Key:        hash,
		Move:       move,
		Score:      int16(score),
		StaticEval: int16(clamp(staticEval, -Infinity, Infinity)),
		Depth:      int8(clamp(depth, -1, MaxPly-1)),
		Flag:       flag,
	}
}

// Clear empties the table and resets the statistics.
func (tt *TranspositionTable) Clear() {
	clear(tt.entries)
	tt.hits = 0
	tt.probes = 0
}

// HashFull returns the permille of used slots among the first thousand.
func (tt *TranspositionTable) HashFull() int {
	sample := min(1000, len(tt.entries))
	used := 0
	for _, e := range tt.entries[:sample] {
		if e.Flag != 0 {
			used++
		}
	}
	return used * 1000 / sample
}

// HitRate returns the probe hit rate as a percentage.
func (tt *TranspositionTable) HitRate() float64 {
	if tt.probes == 0 {
		return 0
	}
	return float64(tt.hits) / float64(tt.probes) * 100
}

// Size returns the number of entries in the table.
func (tt *TranspositionTable) Size() uint64 {
	return tt.mask + 1
}

// AdjustScoreFromTT turns a stored mate score, relative to the node that
// stored it, back into a score relative to the root.
func AdjustScoreFromTT(score int, ply int) int {
	if score > MateBound {
		return score - ply
	}
	if score < -MateBound {
		return score + ply
	}
	return score
}

// AdjustScoreToTT makes a mate score relative to the current node for storage.
func AdjustScoreToTT(score int, ply int) int {
	if score > MateBound {
		return score + ply
	}
	if score < -MateBound {
		return score - ply
	}
	return score
}
