package leaderboard

import (
	"sort"
	"sync/atomic"
)

// Snapshot is the in-process copy of the last standings written to the
// cache. Readers never block writers.
type Snapshot struct {
	standings atomic.Pointer[[]Standing]
}

func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Store replaces the snapshot. The slice is copied, ordered by score
// descending then user id descending, and ranked from 1.
func (s *Snapshot) Store(standings []Standing) {
	cp := make([]Standing, len(standings))
	copy(cp, standings)

	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].Score != cp[j].Score {
			return cp[i].Score > cp[j].Score
		}
		return cp[i].UserID > cp[j].UserID
	})
	for i := range cp {
		cp[i].Rank = int64(i + 1)
	}

	s.standings.Store(&cp)
}

// Loaded reports whether Store has been called.
func (s *Snapshot) Loaded() bool {
	return s.standings.Load() != nil
}

func (s *Snapshot) Top(n int) []Standing {
	p := s.standings.Load()
	if p == nil || n <= 0 {
		return []Standing{}
	}

	all := *p
	if n > len(all) {
		n = len(all)
	}
	out := make([]Standing, n)
	copy(out, all[:n])
	return out
}

func (s *Snapshot) Rank(userID string) (Standing, bool) {
	p := s.standings.Load()
	if p == nil {
		return Standing{}, false
	}

	for _, st := range *p {
		if st.UserID == userID {
			return st, true
		}
	}
	return Standing{}, false
}

func (s *Snapshot) Len() int {
	p := s.standings.Load()
	if p == nil {
		return 0
	}
	return len(*p)
}
