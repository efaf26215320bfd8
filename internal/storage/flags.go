package storage

import (
	"sort"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/edufund/veriflow/internal/domain"
)

var foldCaser = cases.Fold()

// groupFlags aggregates raw flag strings into frequency counts, merging
// near-duplicate spellings under one canonical form. Models phrase the
// same concern with small variations ("Missing documents" vs "missing
// document"), so exact grouping would fragment the counts.
//
// Grouping happens here rather than in SQL so the Postgres and
// in-memory stores report identical aggregates.
func groupFlags(raw []string) []domain.FlagCount {
	type group struct {
		canonical string
		folded    string
		count     int64
	}
	var groups []*group

	for _, flag := range raw {
		if flag == "" {
			continue
		}
		folded := foldCaser.String(flag)

		var matched *group
		for _, g := range groups {
			if g.folded == folded {
				matched = g
				break
			}
			if levenshtein.ComputeDistance(g.folded, folded) <= flagDistanceBudget(folded) {
				matched = g
				break
			}
		}
		if matched == nil {
			groups = append(groups, &group{canonical: flag, folded: folded, count: 1})
			continue
		}
		matched.count++
	}

	out := make([]domain.FlagCount, len(groups))
	for i, g := range groups {
		out[i] = domain.FlagCount{Flag: g.canonical, Count: g.count}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Flag < out[j].Flag
	})
	return out
}

// flagDistanceBudget scales the edit-distance tolerance with flag
// length. Short flags get almost no slack so distinct concerns are not
// merged.
func flagDistanceBudget(s string) int {
	budget := len(s) / 10
	if budget < 1 {
		budget = 1
	}
	if budget > 4 {
		budget = 4
	}
	return budget
}
