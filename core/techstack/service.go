package techstack

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("tech stack")
	ErrItemNotFound = core.NewNotFoundError("roadmap item")
	ErrNameExists   = errors.New("a tech stack with this name already exists")
)

type (
	Repository interface {
		// Create returns ErrNameExists when the name is taken (case-insensitive).
		Create(ctx context.Context, ts TechStack) (TechStack, error)
		Get(ctx context.Context, id string) (TechStack, error)
		// GetByName matches case-insensitively.
		GetByName(ctx context.Context, name string) (TechStack, error)
		// ListByIDs and ListByNames skip unknown keys.
		ListByIDs(ctx context.Context, ids ...string) ([]TechStack, error)
		ListByNames(ctx context.Context, names ...string) ([]TechStack, error)
		Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]TechStack, error)
		// Update replaces the stored document.
		Update(ctx context.Context, ts TechStack) (TechStack, error)
		Delete(ctx context.Context, id string) error
	}

	// ChangePublisher receives every committed change. Publish must not block; false means dropped.
	ChangePublisher interface {
		Publish(change Change) bool
	}

	Service interface {
		CheckNameUniqueness(ctx context.Context, name string, excludedIDs ...string) error
		Create(ctx context.Context, actorID string, data NewTechStack) (TechStack, error)
		Get(ctx context.Context, id string) (TechStack, error)
		GetByIDs(ctx context.Context, ids ...string) ([]TechStack, error)
		GetByNames(ctx context.Context, names ...string) ([]TechStack, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]TechStack, error)
		Update(ctx context.Context, actorID, id string, data UpdateTechStack) (TechStack, error)
		Delete(ctx context.Context, actorID, id string) error
		AddItem(ctx context.Context, actorID, id string, data NewRoadmapItem) (TechStack, error)
		UpdateItem(ctx context.Context, actorID, id, itemID string, data UpdateRoadmapItem) (TechStack, error)
		DeleteItem(ctx context.Context, actorID, id, itemID string) (TechStack, error)
	}

	service struct {
		repo    Repository
		changes ChangePublisher
		logger  core.Logger
		nowFunc func() time.Time
	}
)

var _ Service = (*service)(nil)

// NewService returns the tech stack Service. changes may be nil, in which case nothing is published.
func NewService(repo Repository, changes ChangePublisher, logger core.Logger) Service {
	return &service{repo: repo, changes: changes, logger: logger, nowFunc: time.Now}
}

func (svc *service) now() time.Time { return svc.nowFunc().UTC() }

func (svc *service) publish(change Change) {
	if svc.changes == nil {
		return
	}
	change.At = svc.now()
	if !svc.changes.Publish(change) {
		svc.logger.Warn("tech stack change dropped: sync queue is full", map[string]interface{}{
			"techStackId": change.TechStackID,
			"name":        change.Name,
			"reason":      change.Reason,
		})
	}
}

func (svc *service) CheckNameUniqueness(ctx context.Context, name string, excludedIDs ...string) error {
	ts, err := svc.repo.GetByName(ctx, name)
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "finding tech stack by name")
	}
	for _, id := range excludedIDs {
		if ts.ID == id {
			return nil
		}
	}
	return core.NewValidationError(ErrNameExists, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
}

func newItems(data []NewRoadmapItem) []RoadmapItem {
	items := make([]RoadmapItem, 0, len(data))
	for _, ni := range data {
		items = append(items, newItem(ni))
	}
	return items
}

func newItem(ni NewRoadmapItem) RoadmapItem {
	it := RoadmapItem{
		ID:               ni.ID,
		Topic:            ni.Topic,
		SubTopics:        ni.SubTopics,
		Projects:         ni.Projects,
		CompletionStatus: ni.CompletionStatus,
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.SubTopics == nil {
		it.SubTopics = []Named{}
	}
	if it.Projects == nil {
		it.Projects = []Named{}
	}
	if it.CompletionStatus == "" {
		it.CompletionStatus = StatusYetToStart
	}
	if ni.ScheduledDate != nil {
		d := ni.ScheduledDate.UTC()
		it.ScheduledDate = &d
	}
	return it
}

func (svc *service) Create(ctx context.Context, actorID string, data NewTechStack) (TechStack, error) {
	now := svc.now()
	ts, err := svc.repo.Create(ctx, TechStack{
		ID:           uuid.NewString(),
		Name:         data.Name,
		Description:  data.Description,
		Headers:      data.Headers.WithDefaults(),
		RoadmapItems: newItems(data.RoadmapItems),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Cause(err) == ErrNameExists {
			return TechStack{}, core.NewValidationError(ErrNameExists, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
		}
		return TechStack{}, errors.Wrap(err, "creating tech stack")
	}

	// roadmaps may reference a stack by name before it exists
	svc.publish(Change{TechStackID: ts.ID, Name: ts.Name, ChangedBy: actorID, Reason: ReasonCreated})
	return ts, nil
}

func (svc *service) Get(ctx context.Context, id string) (TechStack, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *service) GetByIDs(ctx context.Context, ids ...string) ([]TechStack, error) {
	return svc.repo.ListByIDs(ctx, ids...)
}

func (svc *service) GetByNames(ctx context.Context, names ...string) ([]TechStack, error) {
	return svc.repo.ListByNames(ctx, names...)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]TechStack, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.Query(ctx, *filter, ordering...)
}

func (svc *service) Update(ctx context.Context, actorID, id string, data UpdateTechStack) (TechStack, error) {
	ts, err := svc.repo.Get(ctx, id)
	if err != nil {
		return TechStack{}, err
	}
	prevName := ts.Name

	if data.Name != "" {
		ts.Name = data.Name
	}
	if data.Description != nil {
		ts.Description = *data.Description
	}
	if data.Headers != nil {
		ts.Headers = data.Headers.WithDefaults()
	}
	if data.RoadmapItems != nil {
		ts.RoadmapItems = newItems(*data.RoadmapItems)
	}
	ts.UpdatedAt = svc.now()

	if ts, err = svc.save(ctx, ts); err != nil {
		return TechStack{}, err
	}
	change := Change{TechStackID: ts.ID, Name: ts.Name, ChangedBy: actorID, Reason: ReasonUpdated}
	if prevName != ts.Name {
		change.PreviousName = prevName
	}
	svc.publish(change)
	return ts, nil
}

func (svc *service) save(ctx context.Context, ts TechStack) (TechStack, error) {
	saved, err := svc.repo.Update(ctx, ts)
	if err != nil {
		if errors.Cause(err) == ErrNameExists {
			return TechStack{}, core.NewValidationError(ErrNameExists, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
		}
		if core.IsNotFound(err) {
			return TechStack{}, err
		}
		return TechStack{}, errors.Wrap(err, "saving tech stack")
	}
	return saved, nil
}

func (svc *service) Delete(ctx context.Context, actorID, id string) error {
	ts, err := svc.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "deleting tech stack")
	}
	svc.publish(Change{TechStackID: ts.ID, Name: ts.Name, ChangedBy: actorID, Reason: ReasonDeleted})
	return nil
}

func (svc *service) AddItem(ctx context.Context, actorID, id string, data NewRoadmapItem) (TechStack, error) {
	ts, err := svc.repo.Get(ctx, id)
	if err != nil {
		return TechStack{}, err
	}
	data.ID = "" // ids are always generated for new items
	ts.RoadmapItems = append(ts.RoadmapItems, newItem(data))
	ts.UpdatedAt = svc.now()

	if ts, err = svc.save(ctx, ts); err != nil {
		return TechStack{}, err
	}
	svc.publish(Change{TechStackID: ts.ID, Name: ts.Name, ChangedBy: actorID, Reason: ReasonItemAdded})
	return ts, nil
}

func (svc *service) UpdateItem(ctx context.Context, actorID, id, itemID string, data UpdateRoadmapItem) (TechStack, error) {
	ts, err := svc.repo.Get(ctx, id)
	if err != nil {
		return TechStack{}, err
	}
	idx := ts.ItemIndex(itemID)
	if idx < 0 {
		return TechStack{}, ErrItemNotFound
	}
	ts.RoadmapItems[idx] = data.apply(ts.RoadmapItems[idx])
	ts.UpdatedAt = svc.now()

	if ts, err = svc.save(ctx, ts); err != nil {
		return TechStack{}, err
	}
	svc.publish(Change{TechStackID: ts.ID, Name: ts.Name, ChangedBy: actorID, Reason: ReasonItemUpdated})
	return ts, nil
}

func (svc *service) DeleteItem(ctx context.Context, actorID, id, itemID string) (TechStack, error) {
	ts, err := svc.repo.Get(ctx, id)
	if err != nil {
		return TechStack{}, err
	}
	idx := ts.ItemIndex(itemID)
	if idx < 0 {
		return TechStack{}, ErrItemNotFound
	}
	ts.RoadmapItems = append(ts.RoadmapItems[:idx], ts.RoadmapItems[idx+1:]...)
	ts.UpdatedAt = svc.now()

	if ts, err = svc.save(ctx, ts); err != nil {
		return TechStack{}, err
	}
	svc.publish(Change{TechStackID: ts.ID, Name: ts.Name, ChangedBy: actorID, Reason: ReasonItemDeleted})
	return ts, nil
}
