package pipeline

import (
	"sort"
	"strings"
)

// Built-in vocabularies used when no reference table is available (or the
// table yields nothing). Kept in sync with the common top-allergen lists.
var fallbackAllergens = []string{
	"milk", "egg", "eggs", "peanut", "peanuts", "soy", "wheat", "gluten",
	"fish", "shellfish", "tree nut", "almond", "cashew",
}

// Ingredients that each cost a fixed penalty when no impact-weighted score
// could be computed.
var penaltyWords = []string{
	"sugar", "salt", "sodium", "hydrogenated", "trans",
	"palmitate", "fat", "fatty", "oil", "flavour", "flavor",
}

const fallbackPenalty = 5

// ScoreTokens matches tokens against the reference table (which may be nil)
// and returns the deduplicated, sorted allergen list plus a health score
// clamped to a non-negative integer.
//
// With a table present, a token matches every entry whose name contains it
// (case-insensitive substring), and all matched entry names become allergen
// candidates. Impact weights, when the table has them, are summed across all
// matches of all tokens: health = max(0, 100 - total). Without a table, or
// when it yields zero matches, the built-in allergen vocabulary is tested for
// containment in each token; without an impact score the built-in penalty
// words each subtract a fixed amount per match.
func ScoreTokens(tokens []string, ref *ReferenceTable) ([]string, int) {
	var found []string
	scored := false
	totalImpact := 0.0

	if ref != nil {
		for _, tok := range tokens {
			tl := strings.ToLower(tok)
			if tl == "" {
				continue
			}
			names, impact, anyImpact := ref.Match(tl)
			found = append(found, names...)
			if anyImpact {
				totalImpact += impact
				scored = true
			}
		}
	}

	if len(found) == 0 {
		for _, tok := range tokens {
			tl := strings.ToLower(tok)
			for _, a := range fallbackAllergens {
				if strings.Contains(tl, a) {
					found = append(found, a)
				}
			}
		}
	}

	health := 100
	if scored {
		health = int(100 - totalImpact)
	} else {
		penalty := 0
		for _, tok := range tokens {
			tl := strings.ToLower(tok)
			for _, w := range penaltyWords {
				if strings.Contains(tl, w) {
					penalty += fallbackPenalty
				}
			}
		}
		health = 100 - penalty
	}
	if health < 0 {
		health = 0
	}

	return dedupeSorted(found), health
}

// dedupeSorted returns a sorted copy with duplicates removed; never nil so the
// serialized form is always a JSON array.
func dedupeSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
