package steps

import "github.com/yungbote/groundwork-backend/internal/domain/coding"

// BatchGroup is the set of batch positions sharing one normalized key, in input order.
type BatchGroup struct {
	Key     string
	Indexes []int
}

// GroupBatch groups inputs by coding.NormalizeCodeText. Empty keys never group with each other.
// Groups come back ordered by their first index.
func GroupBatch(texts []string) []BatchGroup {
	byKey := map[string]int{}
	var groups []BatchGroup
	for i, t := range texts {
		key := coding.NormalizeCodeText(t)
		if key == "" {
			groups = append(groups, BatchGroup{Key: "", Indexes: []int{i}})
			continue
		}
		if gi, ok := byKey[key]; ok {
			groups[gi].Indexes = append(groups[gi].Indexes, i)
			continue
		}
		byKey[key] = len(groups)
		groups = append(groups, BatchGroup{Key: key, Indexes: []int{i}})
	}
	return groups
}

// DuplicatePairs counts unordered pairs inside groups: n members give n*(n-1)/2.
func DuplicatePairs(groups []BatchGroup) int {
	total := 0
	for _, g := range groups {
		n := len(g.Indexes)
		total += n * (n - 1) / 2
	}
	return total
}
