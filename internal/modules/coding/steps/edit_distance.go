package steps

import (
	"sort"

	"github.com/yungbote/groundwork-backend/internal/domain/coding"
)

// Levenshtein is the rune-level edit distance between a and b.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Similarity is 1 - distance/max_len over runes. Two empty strings are identical.
func Similarity(a, b string) (distance int, similarity float64) {
	distance = Levenshtein(a, b)
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 0, 1
	}
	return distance, 1 - float64(distance)/float64(maxLen)
}

type DuplicatePair struct {
	CodeA      string  `json:"code_a"`
	CodeB      string  `json:"code_b"`
	Distance   int     `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// NearDuplicates compares every pair of distinct vocabulary spellings by their normalized form.
// Only byte-identical spellings are collapsed, so spellings that differ in case or whitespace
// come back as a pair with distance 0 and similarity 1. size counts distinct spellings.
// Pairs are ordered by similarity descending, then lexically.
func NearDuplicates(vocabulary []string, threshold float64) (pairs []DuplicatePair, size int) {
	type entry struct {
		display string
		norm    string
	}
	seen := map[string]bool{}
	entries := make([]entry, 0, len(vocabulary))
	for _, v := range vocabulary {
		n := coding.NormalizeCodeText(v)
		if n == "" || seen[v] {
			continue
		}
		seen[v] = true
		entries = append(entries, entry{display: v, norm: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].norm != entries[j].norm {
			return entries[i].norm < entries[j].norm
		}
		return entries[i].display < entries[j].display
	})

	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			d, s := Similarity(entries[i].norm, entries[j].norm)
			if s < threshold {
				continue
			}
			pairs = append(pairs, DuplicatePair{
				CodeA:      entries[i].display,
				CodeB:      entries[j].display,
				Distance:   d,
				Similarity: s,
			})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Similarity != pairs[j].Similarity {
			return pairs[i].Similarity > pairs[j].Similarity
		}
		if pairs[i].CodeA != pairs[j].CodeA {
			return pairs[i].CodeA < pairs[j].CodeA
		}
		return pairs[i].CodeB < pairs[j].CodeB
	})
	return pairs, len(entries)
}
