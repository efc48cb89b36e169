package inmemdb

import (
	"context"
	"strings"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/techstack"
)

type techStackRepository struct {
	db *table[techstack.TechStack]
}

var _ techstack.Repository = (*techStackRepository)(nil)

func NewTechStackRepository(db *DB) techstack.Repository {
	return &techStackRepository{db: db.techStack}
}

func cloneNamed(items []techstack.Named) []techstack.Named {
	if items == nil {
		return nil
	}
	return append(make([]techstack.Named, 0, len(items)), items...)
}

func cloneTechStack(ts techstack.TechStack) techstack.TechStack {
	if ts.RoadmapItems != nil {
		items := make([]techstack.RoadmapItem, 0, len(ts.RoadmapItems))
		for _, it := range ts.RoadmapItems {
			it.SubTopics = cloneNamed(it.SubTopics)
			it.Projects = cloneNamed(it.Projects)
			it.ScheduledDate = cloneTime(it.ScheduledDate)
			items = append(items, it)
		}
		ts.RoadmapItems = items
	}
	return ts
}

func techStackSortValue(ts techstack.TechStack, field string) (interface{}, bool) {
	switch field {
	case "name":
		return ts.Name, true
	case "createdAt":
		return ts.CreatedAt, true
	case "updatedAt":
		return ts.UpdatedAt, true
	case "percentComplete":
		return ts.PercentComplete(), true
	}
	return nil, false
}

// callers hold the lock
func (repo *techStackRepository) nameTaken(name, exceptID string) bool {
	for id, ts := range repo.db.rows {
		if id != exceptID && strings.EqualFold(ts.Name, name) {
			return true
		}
	}
	return false
}

func (repo *techStackRepository) Create(_ context.Context, ts techstack.TechStack) (techstack.TechStack, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.nameTaken(ts.Name, "") {
		return techstack.TechStack{}, techstack.ErrNameExists
	}
	repo.db.put(ts.ID, cloneTechStack(ts))
	return cloneTechStack(ts), nil
}

func (repo *techStackRepository) Get(_ context.Context, id string) (techstack.TechStack, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ts, ok := repo.db.rows[id]; ok {
		return cloneTechStack(*ts), nil
	}
	return techstack.TechStack{}, techstack.ErrNotFound
}

func (repo *techStackRepository) GetByName(_ context.Context, name string) (techstack.TechStack, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, ts := range repo.db.rows {
		if strings.EqualFold(ts.Name, name) {
			return cloneTechStack(*ts), nil
		}
	}
	return techstack.TechStack{}, techstack.ErrNotFound
}

func (repo *techStackRepository) ListByIDs(_ context.Context, ids ...string) ([]techstack.TechStack, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return repo.db.list(cloneTechStack, func(ts techstack.TechStack) bool { return wanted[ts.ID] }), nil
}

func (repo *techStackRepository) ListByNames(_ context.Context, names ...string) ([]techstack.TechStack, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[strings.ToLower(name)] = true
	}
	return repo.db.list(cloneTechStack, func(ts techstack.TechStack) bool { return wanted[strings.ToLower(ts.Name)] }), nil
}

func (repo *techStackRepository) Query(_ context.Context, filter techstack.QueryFilter, ordering ...core.DBOrdering) ([]techstack.TechStack, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	stacks := repo.db.list(cloneTechStack, filter.Matches)
	orderRows(stacks, techStackSortValue, ordering...)
	return stacks, nil
}

func (repo *techStackRepository) Update(_ context.Context, ts techstack.TechStack) (techstack.TechStack, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rows[ts.ID]; !ok {
		return techstack.TechStack{}, techstack.ErrNotFound
	}
	if repo.nameTaken(ts.Name, ts.ID) {
		return techstack.TechStack{}, techstack.ErrNameExists
	}
	repo.db.put(ts.ID, cloneTechStack(ts))
	return cloneTechStack(ts), nil
}

func (repo *techStackRepository) Delete(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return techstack.ErrNotFound
	}
	repo.db.remove(id)
	return nil
}
