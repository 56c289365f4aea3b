package board

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/frand"
)

// Magic holds the fancy magic bitboard data for a single square.
type Magic struct {
	Mask    Bitboard // relevant occupancy, board edges excluded
	Magic   uint64
	Shift   uint8
	attacks []Bitboard
}

func (m *Magic) index(occupied Bitboard) uint64 {
	return (uint64(occupied&m.Mask) * m.Magic) >> m.Shift
}

// maxMagicTrials bounds the candidate search for a single square. Rook
// squares with 12 relevant bits can take a few hundred thousand candidates,
// so the squares are searched in parallel at startup.
const maxMagicTrials = 1 << 26

var (
	bishopMagics [64]Magic
	rookMagics   [64]Magic

	bishopTable [5248]Bitboard
	rookTable   [102400]Bitboard
)

// magicSeed fixes the candidate streams so every process builds identical
// tables. Each square draws from its own stream, keyed by the last two bytes.
var magicSeed = [32]byte{'c', 'h', 'e', 's', 's', 'c', 'o', 'r', 'e', '/', 'm', 'a', 'g', 'i', 'c'}

type magicRNG struct {
	rng *frand.RNG
	buf [8]byte
}

func newMagicRNG(sq Square, diagonal bool) *magicRNG {
	seed := magicSeed
	seed[30] = byte(sq)
	if diagonal {
		seed[31] = 1
	}
	return &magicRNG{rng: frand.NewCustom(seed[:], 1024, 12)}
}

func (r *magicRNG) uint64() uint64 {
	r.rng.Read(r.buf[:])
	return binary.LittleEndian.Uint64(r.buf[:])
}

// sparse returns a candidate with few set bits, which is where magics live.
func (r *magicRNG) sparse() uint64 {
	return r.uint64() & r.uint64() & r.uint64()
}

type magicJob struct {
	m        *Magic
	sq       Square
	mask     Bitboard
	diagonal bool
	table    []Bitboard
}

func initMagics() {
	jobs := make([]magicJob, 0, 128)
	offset := 0
	for sq := A1; sq <= H8; sq++ {
		mask := slidingAttacksSlow(sq, 0, true) &^ Edges
		n := 1 << mask.PopCount()
		jobs = append(jobs, magicJob{&bishopMagics[sq], sq, mask, true, bishopTable[offset : offset+n]})
		offset += n
	}
	offset = 0
	for sq := A1; sq <= H8; sq++ {
		mask := rookMask(sq)
		n := 1 << mask.PopCount()
		jobs = append(jobs, magicJob{&rookMagics[sq], sq, mask, false, rookTable[offset : offset+n]})
		offset += n
	}

	// Every job owns a disjoint slice of the tables.
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, j := range jobs {
		g.Go(func() error {
			return findMagic(newMagicRNG(j.sq, j.diagonal), j.m, j.sq, j.mask, j.diagonal, j.table)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("magic tables")
	}
}

// rookMask keeps rank and file ends only when the rook itself sits on them.
func rookMask(sq Square) Bitboard {
	file := FileMask[sq.File()] &^ (Rank1 | Rank8)
	rank := RankMask[sq.Rank()] &^ (FileA | FileH)
	return (file | rank) &^ SquareBB(sq)
}

// findMagic samples random multipliers until one maps every occupancy subset
// of mask to an index whose slot holds the right attack set. Constructive
// collisions (two subsets with the same attacks) are allowed.
func findMagic(rng *magicRNG, m *Magic, sq Square, mask Bitboard, diagonal bool, table []Bitboard) error {
	bits := mask.PopCount()
	n := 1 << bits

	occupancies := make([]Bitboard, 0, n)
	reference := make([]Bitboard, 0, n)
	// Carry-rippler over every subset of mask.
	for occ := Bitboard(0); ; {
		occupancies = append(occupancies, occ)
		reference = append(reference, slidingAttacksSlow(sq, occ, diagonal))
		occ = (occ - mask) & mask
		if occ == 0 {
			break
		}
	}

	m.Mask = mask
	m.Shift = uint8(64 - bits)
	m.attacks = table

	epoch := make([]int, n)
	for trial := 1; trial <= maxMagicTrials; trial++ {
		magic := rng.sparse()
		if Bitboard((uint64(mask)*magic)>>56).PopCount() < 6 {
			continue
		}
		m.Magic = magic

		ok := true
		for i, occ := range occupancies {
			idx := m.index(occ)
			if epoch[idx] < trial {
				epoch[idx] = trial
				table[idx] = reference[i]
			} else if table[idx] != reference[i] {
				ok = false
				break
			}
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("no magic multiplier for %s (bishop %v) in %d trials", sq, diagonal, maxMagicTrials)
}
