package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parsePairs turns "src=dst" arguments into merge pairs.
func parsePairs(raw []string) ([]domainagg.MergePair, error) {
	out := make([]domainagg.MergePair, 0, len(raw))
	for _, r := range raw {
		src, dst, ok := strings.Cut(r, "=")
		src, dst = strings.TrimSpace(src), strings.TrimSpace(dst)
		if !ok || src == "" || dst == "" {
			return nil, fmt.Errorf("invalid pair %q; expected source=target", r)
		}
		out = append(out, domainagg.MergePair{Source: src, Target: dst})
	}
	return out, nil
}
