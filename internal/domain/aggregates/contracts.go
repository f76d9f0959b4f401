package aggregates

import "strings"

// Contract names an aggregate and the tables it is the only writer of. Repos expose reads
// freely; writes to an owned table go through the aggregate so one transaction covers the
// row change and its audit entry.
type Contract struct {
	Name   string
	Tables []string
	Notes  string
}

// Owns reports whether table is written exclusively by this aggregate.
func (c Contract) Owns(table string) bool {
	table = strings.TrimSpace(table)
	for _, t := range c.Tables {
		if t == table {
			return true
		}
	}
	return false
}

type Aggregate interface {
	Contract() Contract
}
