// Package inmemdb keeps every repository in process memory. Used by tests and the STORAGE=memory dev mode.
package inmemdb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/roadmap"
	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/tracking"
	"github.com/niat-ops/opsboard/core/user"
)

type (
	DB struct {
		user      *table[user.User]
		techStack *table[techstack.TechStack]
		roadmap   *table[roadmap.Roadmap]

		companyStatus       *table[tracking.CompanyStatus]
		interactionFeedback *table[tracking.InteractionFeedback]
		postInternship      *table[tracking.PostInternship]
		hubStatus           *table[tracking.OverallHubStatus]
		studentRating       *table[tracking.StudentRating]
	}

	// table keeps rows by id and remembers insertion order for stable listings.
	table[T any] struct {
		sync.RWMutex
		rows  map[string]*T
		order []string
	}
)

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]*T)}
}

func Open() *DB {
	return &DB{
		user:                newTable[user.User](),
		techStack:           newTable[techstack.TechStack](),
		roadmap:             newTable[roadmap.Roadmap](),
		companyStatus:       newTable[tracking.CompanyStatus](),
		interactionFeedback: newTable[tracking.InteractionFeedback](),
		postInternship:      newTable[tracking.PostInternship](),
		hubStatus:           newTable[tracking.OverallHubStatus](),
		studentRating:       newTable[tracking.StudentRating](),
	}
}

// callers hold the lock
func (t *table[T]) put(id string, row T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = &row
}

func (t *table[T]) remove(id string) {
	if _, ok := t.rows[id]; !ok {
		return
	}
	delete(t.rows, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
}

// list returns clones of the rows accepted by keep, in insertion order.
func (t *table[T]) list(clone func(T) T, keep func(T) bool) []T {
	rows := make([]T, 0, len(t.order))
	for _, id := range t.order {
		row := *t.rows[id]
		if keep == nil || keep(row) {
			rows = append(rows, clone(row))
		}
	}
	return rows
}

// sortValue returns a comparable value of a row for an ordering field, and whether the field is known.
type sortValue[T any] func(row T, field string) (interface{}, bool)

// orderRows sorts rows by the orderings it knows about; unknown fields are ignored.
func orderRows[T any](rows []T, value sortValue[T], ordering ...core.DBOrdering) {
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ordering {
			a, ok := value(rows[i], ord.Field)
			if !ok {
				continue
			}
			b, _ := value(rows[j], ord.Field)
			c := compare(a, b)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compare(a, b interface{}) int {
	switch av := a.(type) {
	case string:
		return strings.Compare(strings.ToLower(av), strings.ToLower(b.(string)))
	case time.Time:
		bv := b.(time.Time)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		}
	case int:
		return av - b.(int)
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	}
	return 0
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
