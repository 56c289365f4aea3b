package board

// RepetitionCapacity exceeds the fifty-move horizon (100 plies), so the ring
// never overwrites a position a legal repetition could still match.
const RepetitionCapacity = 128

// RepetitionTracker records the hashes of the positions along the game and
// the current search line. The most recent push is the current position.
type RepetitionTracker struct {
	ring [RepetitionCapacity]uint64
	n    int
}

func (r *RepetitionTracker) Push(hash uint64) {
	r.ring[r.n%RepetitionCapacity] = hash
	r.n++
}

func (r *RepetitionTracker) Pop() {
	if r.n > 0 {
		r.n--
	}
}

func (r *RepetitionTracker) Reset() {
	r.n = 0
}

// Len returns the number of hashes pushed and not popped.
func (r *RepetitionTracker) Len() int {
	return r.n
}

// Top returns the most recently pushed hash.
func (r *RepetitionTracker) Top() uint64 {
	if r.n == 0 {
		return 0
	}
	return r.at(0)
}

// at returns the hash pushed back plies before the top.
func (r *RepetitionTracker) at(back int) uint64 {
	return r.ring[(r.n-1-back)%RepetitionCapacity]
}

// horizon is how far back a scan may look: never past the last irreversible
// move, the start of the record or the ring capacity.
func (r *RepetitionTracker) horizon(halfMoveClock int) int {
	return min(halfMoveClock, r.n-1, RepetitionCapacity-1)
}

// IsTwoFold reports whether hash equals the position four plies back, the
// shortest possible repetition. It catches shuffling inside the search line.
func (r *RepetitionTracker) IsTwoFold(hash uint64, halfMoveClock int) bool {
	return r.horizon(halfMoveClock) >= 4 && r.at(4) == hash
}

// IsThreeFold reports whether hash already occurred twice before, scanning
// positions with the same side to move.
func (r *RepetitionTracker) IsThreeFold(hash uint64, halfMoveClock int) bool {
	seen := 0
	for back := 2; back <= r.horizon(halfMoveClock); back += 2 {
		if r.at(back) == hash {
			seen++
			if seen >= 2 {
				return true
			}
		}
	}
	return false
}
