package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("record")
	ErrChildNotFound = core.NewNotFoundError("entry")
)

// RecordPtr constrains PT to a pointer to a record type T.
type RecordPtr[T any] interface {
	*T
	Record
}

// ChildPtr constrains PC to a pointer to a sub-document type C.
type ChildPtr[C any] interface {
	*C
	Child
}

type (
	// Repository stores one record type. Lookups of unknown ids return ErrNotFound.
	Repository[T any] interface {
		Insert(ctx context.Context, rec T) (T, error)
		// InsertMany inserts without ordering: a failing document does not stop the others.
		// Returns the number of inserted documents.
		InsertMany(ctx context.Context, recs []T) (int, error)
		Get(ctx context.Context, id string) (T, error)
		Query(ctx context.Context, filter Filter, ordering ...core.DBOrdering) ([]T, error)
		// Replace overwrites the stored record with the same id.
		Replace(ctx context.Context, rec T) (T, error)
		Delete(ctx context.Context, id string) error
	}

	// Service manages one record type and its nested entries.
	Service[T any, PT RecordPtr[T]] struct {
		repo     Repository[T]
		validate *validator.Validate
		logger   core.Logger
		nowFunc  func() time.Time
	}
)

func NewService[T any, PT RecordPtr[T]](repo Repository[T], validate *validator.Validate, logger core.Logger) *Service[T, PT] {
	return &Service[T, PT]{repo: repo, validate: validate, logger: logger, nowFunc: time.Now}
}

func (svc *Service[T, PT]) now() time.Time { return svc.nowFunc().UTC() }

// prepare normalizes and validates rec.
func (svc *Service[T, PT]) prepare(rec *T) error {
	PT(rec).normalize()
	return svc.validate.Struct(rec)
}

func (svc *Service[T, PT]) Create(ctx context.Context, rec T) (T, error) {
	if err := svc.prepare(&rec); err != nil {
		return rec, err
	}
	now := svc.now()
	b := PT(&rec).RecordBase()
	b.ID = uuid.NewString()
	b.CreatedAt = now
	b.UpdatedAt = now

	saved, err := svc.repo.Insert(ctx, rec)
	if err != nil {
		return saved, errors.Wrap(err, "inserting record")
	}
	return saved, nil
}

// CreateMany normalizes and inserts recs in one unordered batch.
// Invalid records are logged and left out. Returns the number of inserted records.
func (svc *Service[T, PT]) CreateMany(ctx context.Context, recs []T) (int, error) {
	now := svc.now()
	valid := make([]T, 0, len(recs))
	for i := range recs {
		rec := recs[i]
		if err := svc.prepare(&rec); err != nil {
			attrs := PT(&rec).Attrs()
			svc.logger.Warn(fmt.Sprintf("skipping invalid record: %v", err), map[string]interface{}{
				"companyName": attrs.CompanyName,
				"role":        attrs.Role,
			})
			continue
		}
		b := PT(&rec).RecordBase()
		b.ID = uuid.NewString()
		b.CreatedAt = now
		b.UpdatedAt = now
		valid = append(valid, rec)
	}
	if len(valid) == 0 {
		return 0, nil
	}
	n, err := svc.repo.InsertMany(ctx, valid)
	if err != nil {
		return n, errors.Wrap(err, "inserting records")
	}
	return n, nil
}

func (svc *Service[T, PT]) Get(ctx context.Context, id string) (T, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *Service[T, PT]) Query(ctx context.Context, filter *Filter, ordering []core.DBOrdering) ([]T, error) {
	if filter == nil {
		filter = new(Filter)
	}
	return svc.repo.Query(ctx, *filter, ordering...)
}

// Replace overwrites the record fields with rec, keeping its id and creation time.
func (svc *Service[T, PT]) Replace(ctx context.Context, id string, rec T) (T, error) {
	orig, err := svc.repo.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if err := svc.prepare(&rec); err != nil {
		return rec, err
	}
	b := PT(&rec).RecordBase()
	b.ID = id
	b.CreatedAt = PT(&orig).RecordBase().CreatedAt
	b.UpdatedAt = svc.now()
	return svc.save(ctx, rec)
}

// Modify applies fn to the stored record then validates and saves the result.
func (svc *Service[T, PT]) Modify(ctx context.Context, id string, fn func(rec PT) error) (T, error) {
	rec, err := svc.repo.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if err := fn(PT(&rec)); err != nil {
		return rec, err
	}
	if err := svc.prepare(&rec); err != nil {
		return rec, err
	}
	PT(&rec).RecordBase().UpdatedAt = svc.now()
	return svc.save(ctx, rec)
}

func (svc *Service[T, PT]) save(ctx context.Context, rec T) (T, error) {
	saved, err := svc.repo.Replace(ctx, rec)
	if err != nil {
		if core.IsNotFound(err) {
			return saved, err
		}
		return saved, errors.Wrap(err, "saving record")
	}
	return saved, nil
}

func (svc *Service[T, PT]) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := svc.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "deleting record")
	}
	return nil
}

// Children selects the nested list of a record.
type Children[T any, C any] func(rec *T) *[]C

func childIndex[C any, PC ChildPtr[C]](list []C, childID string) int {
	for i := range list {
		if PC(&list[i]).childBase().ID == childID {
			return i
		}
	}
	return -1
}

// AddChild appends child to the list of the record. The child gets a new id.
func AddChild[T any, PT RecordPtr[T], C any, PC ChildPtr[C]](ctx context.Context, svc *Service[T, PT], id string, list Children[T, C], child C) (T, error) {
	PC(&child).childBase().ID = uuid.NewString()
	return svc.Modify(ctx, id, func(rec PT) error {
		children := list((*T)(rec))
		*children = append(*children, child)
		return nil
	})
}

// UpdateChild replaces the child with childID, keeping its id.
func UpdateChild[T any, PT RecordPtr[T], C any, PC ChildPtr[C]](ctx context.Context, svc *Service[T, PT], id, childID string, list Children[T, C], child C) (T, error) {
	PC(&child).childBase().ID = childID
	return svc.Modify(ctx, id, func(rec PT) error {
		children := list((*T)(rec))
		idx := childIndex[C, PC](*children, childID)
		if idx < 0 {
			return ErrChildNotFound
		}
		(*children)[idx] = child
		return nil
	})
}

func DeleteChild[T any, PT RecordPtr[T], C any, PC ChildPtr[C]](ctx context.Context, svc *Service[T, PT], id, childID string, list Children[T, C]) (T, error) {
	return svc.Modify(ctx, id, func(rec PT) error {
		children := list((*T)(rec))
		idx := childIndex[C, PC](*children, childID)
		if idx < 0 {
			return ErrChildNotFound
		}
		*children = append((*children)[:idx:idx], (*children)[idx+1:]...)
		return nil
	})
}

// Nested lists of each record type.
var (
	CompanyStudents   Children[CompanyStatus, StudentStatus]        = func(r *CompanyStatus) *[]StudentStatus { return &r.Students }
	FeedbackLogs      Children[InteractionFeedback, InteractionLog] = func(r *InteractionFeedback) *[]InteractionLog { return &r.Interactions }
	InternshipTasks   Children[PostInternship, Task]                = func(r *PostInternship) *[]Task { return &r.Tasks }
	HubStudents       Children[OverallHubStatus, HubStudent]        = func(r *OverallHubStatus) *[]HubStudent { return &r.Students }
	StudentRatingList Children[StudentRating, Rating]               = func(r *StudentRating) *[]Rating { return &r.Ratings }
)

type (
	CompanyStatusService       = Service[CompanyStatus, *CompanyStatus]
	InteractionFeedbackService = Service[InteractionFeedback, *InteractionFeedback]
	PostInternshipService      = Service[PostInternship, *PostInternship]
	HubStatusService           = Service[OverallHubStatus, *OverallHubStatus]
	StudentRatingService       = Service[StudentRating, *StudentRating]
)
