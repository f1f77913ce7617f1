package scheduler

import (
	"sort"

	"github.com/arnavshah/turni-api-go/pkg/models"
)

// Rank orders candidates for a cell and returns at most capacity of them.
//
// The least loaded male is picked first so a cell gets at least one man when
// one is available. Everyone else follows by assignments in window, then by
// last assigned date with never-assigned first. Ties keep input order, so
// Rank(c, n) is always a prefix of Rank(c, m) for n <= m.
func Rank(candidates []models.Candidate, capacity int) []models.Candidate {
	if capacity <= 0 || len(candidates) == 0 {
		return nil
	}
	if capacity > len(candidates) {
		capacity = len(candidates)
	}

	out := make([]models.Candidate, 0, capacity)

	var male []int
	for i, c := range candidates {
		if c.IsMale() {
			male = append(male, i)
		}
	}

	picked := -1
	if len(male) > 0 {
		sort.SliceStable(male, func(a, b int) bool {
			return lessFair(candidates[male[a]], candidates[male[b]])
		})
		picked = male[0]
		out = append(out, candidates[picked])
	}

	rest := make([]models.Candidate, 0, len(candidates))
	for i, c := range candidates {
		if i != picked {
			rest = append(rest, c)
		}
	}
	sort.SliceStable(rest, func(a, b int) bool {
		return lessFair(rest[a], rest[b])
	})

	for _, c := range rest {
		if len(out) == capacity {
			break
		}
		out = append(out, c)
	}
	return out
}

func lessFair(a, b models.Candidate) bool {
	if a.AssignmentsInWindow != b.AssignmentsInWindow {
		return a.AssignmentsInWindow < b.AssignmentsInWindow
	}
	switch {
	case a.LastAssignedDate == nil:
		return b.LastAssignedDate != nil
	case b.LastAssignedDate == nil:
		return false
	default:
		return *a.LastAssignedDate < *b.LastAssignedDate
	}
}
