package inmemdb

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/tracking"
)

// recordRepository stores any tracking record type.
type recordRepository[T any, PT tracking.RecordPtr[T]] struct {
	db *table[T]
}

func NewCompanyStatusRepository(db *DB) tracking.Repository[tracking.CompanyStatus] {
	return &recordRepository[tracking.CompanyStatus, *tracking.CompanyStatus]{db: db.companyStatus}
}

func NewInteractionFeedbackRepository(db *DB) tracking.Repository[tracking.InteractionFeedback] {
	return &recordRepository[tracking.InteractionFeedback, *tracking.InteractionFeedback]{db: db.interactionFeedback}
}

func NewPostInternshipRepository(db *DB) tracking.Repository[tracking.PostInternship] {
	return &recordRepository[tracking.PostInternship, *tracking.PostInternship]{db: db.postInternship}
}

func NewHubStatusRepository(db *DB) tracking.Repository[tracking.OverallHubStatus] {
	return &recordRepository[tracking.OverallHubStatus, *tracking.OverallHubStatus]{db: db.hubStatus}
}

func NewStudentRatingRepository(db *DB) tracking.Repository[tracking.StudentRating] {
	return &recordRepository[tracking.StudentRating, *tracking.StudentRating]{db: db.studentRating}
}

// cloneRecord deep copies rec through its JSON form, which holds every stored field.
func cloneRecord[T any](rec T) T {
	var c T
	data, err := json.Marshal(rec)
	if err != nil {
		panic(errors.Wrap(err, "cloning record"))
	}
	if err := json.Unmarshal(data, &c); err != nil {
		panic(errors.Wrap(err, "cloning record"))
	}
	return c
}

func (repo *recordRepository[T, PT]) id(rec *T) string { return PT(rec).RecordBase().ID }

func (repo *recordRepository[T, PT]) sortValue(rec T, field string) (interface{}, bool) {
	attrs := PT(&rec).Attrs()
	switch field {
	case "companyName":
		return attrs.CompanyName, true
	case "role":
		return attrs.Role, true
	case "studentName":
		return attrs.StudentName, true
	case "hubName":
		return attrs.HubName, true
	case "createdAt":
		return PT(&rec).RecordBase().CreatedAt, true
	case "updatedAt":
		return PT(&rec).RecordBase().UpdatedAt, true
	}
	return nil, false
}

func (repo *recordRepository[T, PT]) Insert(_ context.Context, rec T) (T, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.put(repo.id(&rec), cloneRecord(rec))
	return cloneRecord(rec), nil
}

func (repo *recordRepository[T, PT]) InsertMany(_ context.Context, recs []T) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	n := 0
	for i := range recs {
		id := repo.id(&recs[i])
		if _, exists := repo.db.rows[id]; exists {
			continue
		}
		repo.db.put(id, cloneRecord(recs[i]))
		n++
	}
	return n, nil
}

func (repo *recordRepository[T, PT]) Get(_ context.Context, id string) (T, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.rows[id]; ok {
		return cloneRecord(*rec), nil
	}
	var zero T
	return zero, tracking.ErrNotFound
}

func (repo *recordRepository[T, PT]) Query(_ context.Context, filter tracking.Filter, ordering ...core.DBOrdering) ([]T, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := repo.db.list(cloneRecord[T], func(rec T) bool { return filter.Matches(PT(&rec).Attrs()) })
	orderRows(recs, repo.sortValue, ordering...)
	return recs, nil
}

func (repo *recordRepository[T, PT]) Replace(_ context.Context, rec T) (T, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	id := repo.id(&rec)
	if _, ok := repo.db.rows[id]; !ok {
		var zero T
		return zero, tracking.ErrNotFound
	}
	repo.db.put(id, cloneRecord(rec))
	return cloneRecord(rec), nil
}

func (repo *recordRepository[T, PT]) Delete(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return tracking.ErrNotFound
	}
	repo.db.remove(id)
	return nil
}
