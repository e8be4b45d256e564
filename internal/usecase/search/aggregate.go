package search

import (
	"sort"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// aggregate merges per-unit match lists into the final result set: it
// re-checks the confidence floor (the scorer is expected to apply it, but
// slipping hits must never survive), sorts by confidence descending with
// (pageNumber asc, discovery order asc) tie-breaks, and truncates to
// maxMatches.
//
// perUnit must be in unit enumeration order; discovery order is the
// position of a match in that flattened sequence.
func aggregate(perUnit [][]domain.Match, floor float64, maxMatches int) []domain.Match {
	type ordered struct {
		match domain.Match
		seq   int
	}

	var all []ordered
	seq := 0
	for _, unitMatches := range perUnit {
		for _, m := range unitMatches {
			if m.Confidence < floor {
				continue
			}
			all = append(all, ordered{match: m, seq: seq})
			seq++
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].match.Confidence != all[j].match.Confidence {
			return all[i].match.Confidence > all[j].match.Confidence
		}
		if all[i].match.PageNumber != all[j].match.PageNumber {
			return all[i].match.PageNumber < all[j].match.PageNumber
		}
		return all[i].seq < all[j].seq
	})

	if maxMatches > 0 && len(all) > maxMatches {
		all = all[:maxMatches]
	}

	out := make([]domain.Match, len(all))
	for i, o := range all {
		out[i] = o.match
	}
	return out
}
