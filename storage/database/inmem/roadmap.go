package inmemdb

import (
	"context"
	"reflect"
	"time"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/roadmap"
)

type roadmapRepository struct {
	db *table[roadmap.Roadmap]
}

var _ roadmap.Repository = (*roadmapRepository)(nil)

func NewRoadmapRepository(db *DB) roadmap.Repository {
	return &roadmapRepository{db: db.roadmap}
}

func cloneRefs(refs []roadmap.TechStackRef) []roadmap.TechStackRef {
	if refs == nil {
		return nil
	}
	return append(make([]roadmap.TechStackRef, 0, len(refs)), refs...)
}

func cloneRoadmap(r roadmap.Roadmap) roadmap.Roadmap {
	switch c := r.Content.(type) {
	case roadmap.Single:
		r.Content = roadmap.Single{Role: c.Role, TechStacks: cloneRefs(c.TechStacks)}
	case roadmap.Consolidated:
		roles := make([]roadmap.RoleContent, 0, len(c.RoleList))
		for _, role := range c.RoleList {
			roles = append(roles, roadmap.RoleContent{Title: role.Title, TechStacks: cloneRefs(role.TechStacks)})
		}
		r.Content = roadmap.Consolidated{RoleList: roles}
	}
	r.LastSyncedAt = cloneTime(r.LastSyncedAt)
	return r
}

func roadmapSortValue(r roadmap.Roadmap, field string) (interface{}, bool) {
	switch field {
	case "companyName":
		return r.CompanyName, true
	case "role":
		return r.Role(), true
	case "createdDate":
		return r.CreatedDate, true
	case "updatedDate":
		return r.UpdatedDate, true
	}
	return nil, false
}

func (repo *roadmapRepository) Create(_ context.Context, r roadmap.Roadmap) (roadmap.Roadmap, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.put(r.ID, cloneRoadmap(r))
	return cloneRoadmap(r), nil
}

func (repo *roadmapRepository) Get(_ context.Context, id string) (roadmap.Roadmap, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.rows[id]; ok {
		return cloneRoadmap(*r), nil
	}
	return roadmap.Roadmap{}, roadmap.ErrNotFound
}

func (repo *roadmapRepository) GetByFilename(_ context.Context, filename string) (roadmap.Roadmap, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range repo.db.rows {
		if r.Filename == filename {
			return cloneRoadmap(*r), nil
		}
	}
	return roadmap.Roadmap{}, roadmap.ErrNotFound
}

func (repo *roadmapRepository) Query(_ context.Context, filter roadmap.QueryFilter, ordering ...core.DBOrdering) ([]roadmap.Roadmap, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	roadmaps := repo.db.list(cloneRoadmap, filter.Matches)
	orderRows(roadmaps, roadmapSortValue, ordering...)
	return roadmaps, nil
}

func (repo *roadmapRepository) FindReferencing(_ context.Context, techStackID string, names ...string) ([]roadmap.Roadmap, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.db.list(cloneRoadmap, func(r roadmap.Roadmap) bool { return r.References(techStackID, names...) }), nil
}

func (repo *roadmapRepository) Update(_ context.Context, r roadmap.Roadmap) (roadmap.Roadmap, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rows[r.ID]; !ok {
		return roadmap.Roadmap{}, roadmap.ErrNotFound
	}
	repo.db.put(r.ID, cloneRoadmap(r))
	return cloneRoadmap(r), nil
}

func (repo *roadmapRepository) RefreshContent(_ context.Context, id string, rendered, refreshed roadmap.Content, publishedURL string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.rows[id]
	if !ok {
		return roadmap.ErrNotFound
	}
	if reflect.DeepEqual(r.Content, rendered) {
		r.Content = cloneRoadmap(roadmap.Roadmap{Content: refreshed}).Content
	}
	r.PublishedURL = publishedURL
	return nil
}

func (repo *roadmapRepository) SetSyncStatus(_ context.Context, id string, syncedAt time.Time, syncErr string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.rows[id]
	if !ok {
		return roadmap.ErrNotFound
	}
	r.LastSyncedAt = &syncedAt
	r.LastSyncError = syncErr
	return nil
}

func (repo *roadmapRepository) Delete(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return roadmap.ErrNotFound
	}
	repo.db.remove(id)
	return nil
}
