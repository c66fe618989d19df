// Package scheduler implements the SortedDropping corpus discipline shared
// by the transaction corpus and the snapshot corpus (§4.H), plus the
// log-bucket power-scheduling formula derived from original_source.
package scheduler

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// InitialVotes is the vote count assigned to a newly-added entry (§4.H
// "on-add"); also the vote increment applied by CMP feedback (§8 property 2).
const InitialVotes = 2

// DropThreshold triggers pruning once the corpus exceeds this size.
const DropThreshold = 4096

// PruneAmt is how many lowest-score entries are evicted per prune pass.
const PruneAmt = 256

// MaxPowerFactor bounds how many extra mutation rounds PowerSchedule grants
// to the highest-scoring entries (§4.H "scaled to a reasonable upper bound").
const MaxPowerFactor = 32

// entry is one corpus slot's bookkeeping.
type entry struct {
	ID        uuid.UUID
	Index     int // insertion order; used as the tie-break (oldest evicted first)
	Votes     int
	Visits    int
	Permanent bool // reserved seed slots (deployment artifacts), never pruned
}

// SortedDropping is the two-field (votes, visits) corpus discipline of §4.H.
// It is generic over nothing: callers index their own corpus slice by the
// integer indices this type hands back from Select/OnAdd.
type SortedDropping struct {
	entries     map[int]*entry
	sortedByVote []int // indices into entries, descending votes, stable

	totalVotes  int
	totalVisits int
	nextIndex   int

	rng *rand.Rand
}

// New returns an empty SortedDropping scheduler. rng is injected so tests
// (and replay) can be made deterministic.
func New(rng *rand.Rand) *SortedDropping {
	return &SortedDropping{entries: make(map[int]*entry), rng: rng}
}

// OnAdd registers a new corpus slot and returns its id. permanent marks a
// reserved seed slot (first few indices) that PruneLowestScoring must never
// evict.
func (s *SortedDropping) OnAdd(permanent bool) int {
	idx := s.nextIndex
	s.nextIndex++

	e := &entry{ID: uuid.New(), Index: idx, Votes: InitialVotes, Visits: 1, Permanent: permanent}
	s.entries[idx] = e
	s.sortedByVote = append(s.sortedByVote, idx)
	s.totalVotes += InitialVotes
	s.totalVisits++
	s.resort()
	return idx
}

// OnRemove erases a slot and subtracts its votes/visits from the running
// totals (§4.H "on-remove").
func (s *SortedDropping) OnRemove(idx int) {
	e, ok := s.entries[idx]
	if !ok {
		return
	}
	s.totalVotes -= e.Votes
	s.totalVisits -= e.Visits
	delete(s.entries, idx)
	for i, v := range s.sortedByVote {
		if v == idx {
			s.sortedByVote = append(s.sortedByVote[:i], s.sortedByVote[i+1:]...)
			break
		}
	}
}

// Vote increases votes[idx] by delta and re-sorts (§4.H "voting").
func (s *SortedDropping) Vote(idx int, delta int) {
	e, ok := s.entries[idx]
	if !ok {
		return
	}
	e.Votes += delta
	s.totalVotes += delta
	s.resort()
}

func (s *SortedDropping) resort() {
	sort.SliceStable(s.sortedByVote, func(i, j int) bool {
		return s.entries[s.sortedByVote[i]].Votes > s.entries[s.sortedByVote[j]].Votes
	})
}

// Select draws a weighted-random index proportional to votes (§4.H
// "selection"), incrementing its visit counters.
func (s *SortedDropping) Select() (int, bool) {
	if s.totalVotes <= 0 || len(s.sortedByVote) == 0 {
		return 0, false
	}
	r := s.rng.Intn(s.totalVotes)
	acc := 0
	for _, idx := range s.sortedByVote {
		acc += s.entries[idx].Votes
		if acc > r {
			s.entries[idx].Visits++
			s.totalVisits++
			return idx, true
		}
	}
	last := s.sortedByVote[len(s.sortedByVote)-1]
	s.entries[last].Visits++
	s.totalVisits++
	return last, true
}

// Score returns votes(i)/visits(i) as a float, the ranking statistic §4.H
// prunes and power-schedules by.
func (s *SortedDropping) Score(idx int) float64 {
	e, ok := s.entries[idx]
	if !ok || e.Visits == 0 {
		return 0
	}
	return float64(e.Votes) / float64(e.Visits)
}

// PruneLowestScoring removes the PRUNE_AMT lowest-score entries, excluding
// `keep` (the just-added index) and permanent seeds (§4.H "on-add"). Ties
// break by ascending insertion index — oldest evicted first — an explicit
// decision for the spec's open tie-break question (documented in DESIGN.md).
func (s *SortedDropping) PruneLowestScoring(keep int) []int {
	if len(s.entries) <= DropThreshold {
		return nil
	}
	type cand struct {
		idx   int
		score float64
	}
	var cands []cand
	for idx, e := range s.entries {
		if idx == keep || e.Permanent {
			continue
		}
		cands = append(cands, cand{idx, s.Score(idx)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score < cands[j].score
		}
		return s.entries[cands[i].idx].Index < s.entries[cands[j].idx].Index
	})

	n := PruneAmt
	if n > len(cands) {
		n = len(cands)
	}
	removed := make([]int, 0, n)
	for i := 0; i < n; i++ {
		removed = append(removed, cands[i].idx)
		s.OnRemove(cands[i].idx)
	}
	return removed
}

// Len reports the live corpus size.
func (s *SortedDropping) Len() int { return len(s.entries) }

// TotalVotes and TotalVisits expose the running sums testable property 4
// checks against Σ votes[i] / Σ visits[i].
func (s *SortedDropping) TotalVotes() int  { return s.totalVotes }
func (s *SortedDropping) TotalVisits() int { return s.totalVisits }

// Visits returns the visit count for idx (0 if absent).
func (s *SortedDropping) Visits(idx int) int {
	if e, ok := s.entries[idx]; ok {
		return e.Visits
	}
	return 0
}

// Votes returns the vote count for idx (0 if absent).
func (s *SortedDropping) Votes(idx int) int {
	if e, ok := s.entries[idx]; ok {
		return e.Votes
	}
	return 0
}
