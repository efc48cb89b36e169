package roadmap

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core/roadmap/render"
	"github.com/niat-ops/opsboard/core/techstack"
)

// TechStackSource loads tech stacks for aggregation. Unknown keys are skipped.
type TechStackSource interface {
	ListByIDs(ctx context.Context, ids ...string) ([]techstack.TechStack, error)
	ListByNames(ctx context.Context, names ...string) ([]techstack.TechStack, error)
}

// Aggregation is the resolved content of a roadmap.
type Aggregation struct {
	// Roles holds the resolved tech stacks of each role, in reference order.
	Roles []render.Role
	// Content is the input content with every resolved ref refreshed to the stack's current id and name.
	Content Content
	// Missing lists the labels of refs matching no tech stack.
	Missing []string
}

// Resolved is the number of distinct tech stacks found.
func (agg Aggregation) Resolved() int {
	seen := make(map[string]bool)
	for _, role := range agg.Roles {
		for _, ts := range role.TechStacks {
			seen[ts.ID] = true
		}
	}
	return len(seen)
}

// Page builds the render input.
func (agg Aggregation) Page(companyName string) render.Page {
	return render.Page{CompanyName: companyName, Roles: agg.Roles}
}

type Aggregator struct {
	source TechStackSource
}

func NewAggregator(source TechStackSource) *Aggregator {
	return &Aggregator{source: source}
}

// Aggregate fetches the current version of every tech stack the content references.
// Refs are resolved by id first, then by name (case-insensitive); a name is finally tried as an id
// since legacy rows may hold ids in the name field. Unresolvable refs are left out of the page.
func (agg *Aggregator) Aggregate(ctx context.Context, content Content) (Aggregation, error) {
	refs := UniqueRefs(content)

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.ID != "" {
			ids = append(ids, ref.ID)
		}
	}
	byID := make(map[string]techstack.TechStack)
	if len(ids) > 0 {
		stacks, err := agg.source.ListByIDs(ctx, ids...)
		if err != nil {
			return Aggregation{}, errors.Wrap(err, "loading tech stacks by id")
		}
		for _, ts := range stacks {
			byID[ts.ID] = ts
		}
	}

	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		if _, ok := byID[ref.ID]; !ok && ref.Name != "" {
			names = append(names, ref.Name)
		}
	}
	byName := make(map[string]techstack.TechStack)
	if len(names) > 0 {
		stacks, err := agg.source.ListByNames(ctx, names...)
		if err != nil {
			return Aggregation{}, errors.Wrap(err, "loading tech stacks by name")
		}
		for _, ts := range stacks {
			byName[strings.ToLower(ts.Name)] = ts
		}
	}

	leftovers := make([]string, 0)
	for _, name := range names {
		if _, ok := byName[strings.ToLower(name)]; !ok {
			leftovers = append(leftovers, name)
		}
	}
	if len(leftovers) > 0 {
		stacks, err := agg.source.ListByIDs(ctx, leftovers...)
		if err != nil {
			return Aggregation{}, errors.Wrap(err, "loading tech stacks by legacy id")
		}
		for _, ts := range stacks {
			byID[ts.ID] = ts
		}
	}

	lookup := func(ref TechStackRef) (techstack.TechStack, bool) {
		if ts, ok := byID[ref.ID]; ok && ref.ID != "" {
			return ts, true
		}
		if ts, ok := byName[strings.ToLower(ref.Name)]; ok && ref.Name != "" {
			return ts, true
		}
		if ts, ok := byID[ref.Name]; ok && ref.Name != "" {
			return ts, true
		}
		return techstack.TechStack{}, false
	}

	var (
		result      Aggregation
		missingSeen = make(map[string]bool)
		refreshed   = make([]RoleContent, 0, len(content.Roles()))
	)
	for _, role := range content.Roles() {
		rr := render.Role{Title: role.Title, TechStacks: make([]techstack.TechStack, 0, len(role.TechStacks))}
		rc := RoleContent{Title: role.Title, TechStacks: make([]TechStackRef, 0, len(role.TechStacks))}
		stackSeen := make(map[string]bool)
		for _, ref := range role.TechStacks {
			ts, ok := lookup(ref)
			if !ok {
				rc.TechStacks = append(rc.TechStacks, ref)
				if label := ref.Label(); !missingSeen[strings.ToLower(label)] {
					missingSeen[strings.ToLower(label)] = true
					result.Missing = append(result.Missing, label)
				}
				continue
			}
			rc.TechStacks = append(rc.TechStacks, TechStackRef{ID: ts.ID, Name: ts.Name})
			if !stackSeen[ts.ID] {
				stackSeen[ts.ID] = true
				rr.TechStacks = append(rr.TechStacks, ts)
			}
		}
		result.Roles = append(result.Roles, rr)
		refreshed = append(refreshed, rc)
	}

	switch content.(type) {
	case Consolidated:
		result.Content = Consolidated{RoleList: refreshed}
	default:
		single := Single{Role: content.RoleTitle()}
		if len(refreshed) > 0 {
			single.TechStacks = refreshed[0].TechStacks
		}
		result.Content = single
	}
	return result, nil
}
