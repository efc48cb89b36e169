package roadmap

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/roadmap/render"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("roadmap")
	ErrRenderFailed   = errors.New("the roadmap page could not be rendered")
	ErrNoTechStacks   = errors.New("none of the selected tech stacks exist")
	ErrFilenameExists = errors.New("a roadmap for this company and role already exists")
)

type (
	Repository interface {
		Create(ctx context.Context, r Roadmap) (Roadmap, error)
		Get(ctx context.Context, id string) (Roadmap, error)
		GetByFilename(ctx context.Context, filename string) (Roadmap, error)
		Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Roadmap, error)
		// FindReferencing lists roadmaps with a ref to the tech stack id or to one of the names (case-insensitive).
		FindReferencing(ctx context.Context, techStackID string, names ...string) ([]Roadmap, error)
		// Update replaces the stored roadmap.
		Update(ctx context.Context, r Roadmap) (Roadmap, error)
		// RefreshContent sets the published url and swaps the content for refreshed
		// only while the stored content still equals rendered. Other fields are left as stored.
		RefreshContent(ctx context.Context, id string, rendered, refreshed Content, publishedURL string) error
		SetSyncStatus(ctx context.Context, id string, syncedAt time.Time, syncErr string) error
		Delete(ctx context.Context, id string) error
	}

	// Preview is a rendered roadmap that was not published.
	Preview struct {
		HTML     string   `json:"html"`
		Filename string   `json:"filename"`
		Missing  []string `json:"missing"`
	}

	// SyncResult is the outcome of re-publishing one roadmap.
	SyncResult struct {
		RoadmapID    string   `json:"roadmapId"`
		CompanyName  string   `json:"companyName"`
		Role         string   `json:"role"`
		Filename     string   `json:"filename"`
		PublishedURL string   `json:"publishedUrl,omitempty"`
		Missing      []string `json:"missing,omitempty"`
		Error        string   `json:"error,omitempty"`
	}

	// Report sums up a batch of syncs. A failure never stops the batch.
	Report struct {
		Synced []SyncResult `json:"synced"`
		Failed []SyncResult `json:"failed"`
	}

	Service interface {
		Preview(ctx context.Context, data NewRoadmap) (Preview, error)
		Create(ctx context.Context, actorID string, data NewRoadmap) (Roadmap, error)
		Get(ctx context.Context, id string) (Roadmap, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Roadmap, error)
		Update(ctx context.Context, id string, data UpdateRoadmap) (Roadmap, error)
		Delete(ctx context.Context, id string) error
		FindReferencing(ctx context.Context, techStackID string, names ...string) ([]Roadmap, error)
		// Republish re-renders a stored roadmap from the current tech stacks and publishes it under its filename.
		Republish(ctx context.Context, id string) (SyncResult, error)
		RepublishAll(ctx context.Context) (Report, error)
		// Sync republishes r and records the outcome on its metadata.
		Sync(ctx context.Context, r Roadmap) SyncResult
	}

	service struct {
		repo       Repository
		aggregator *Aggregator
		host       core.ContentHost
		logger     core.Logger
		nowFunc    func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, source TechStackSource, host core.ContentHost, logger core.Logger) Service {
	return &service{
		repo:       repo,
		aggregator: NewAggregator(source),
		host:       host,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

func (svc *service) now() time.Time { return svc.nowFunc().UTC() }

func (r SyncResult) OK() bool { return r.Error == "" }

func (rep *Report) Add(res SyncResult) {
	if res.OK() {
		rep.Synced = append(rep.Synced, res)
	} else {
		rep.Failed = append(rep.Failed, res)
	}
}

func description(companyName string, content Content) string {
	return fmt.Sprintf("Update %s %s roadmap", companyName, content.RoleTitle())
}

// build aggregates and renders content. The page is left empty when nothing resolved.
func (svc *service) build(ctx context.Context, companyName string, content Content) (Aggregation, string, error) {
	agg, err := svc.aggregator.Aggregate(ctx, content)
	if err != nil {
		return Aggregation{}, "", err
	}
	if agg.Resolved() == 0 {
		return agg, "", core.NewValidationError(ErrNoTechStacks, core.FieldError{Field: "techStacks", Error: ErrNoTechStacks.Error()})
	}
	page := agg.Page(companyName)
	page.GeneratedAt = svc.now()
	html := render.Render(page)
	if html == "" {
		return agg, "", ErrRenderFailed
	}
	return agg, html, nil
}

func (svc *service) Preview(ctx context.Context, data NewRoadmap) (Preview, error) {
	content := data.Content()
	agg, html, err := svc.build(ctx, data.CompanyName, content)
	if err != nil {
		return Preview{}, err
	}
	missing := agg.Missing
	if missing == nil {
		missing = []string{}
	}
	return Preview{HTML: html, Filename: Filename(data.CompanyName, content), Missing: missing}, nil
}

func (svc *service) Create(ctx context.Context, actorID string, data NewRoadmap) (Roadmap, error) {
	content := data.Content()
	filename := Filename(data.CompanyName, content)

	if _, err := svc.repo.GetByFilename(ctx, filename); err == nil {
		return Roadmap{}, core.NewValidationError(ErrFilenameExists, core.FieldError{Field: "companyName", Error: ErrFilenameExists.Error()})
	} else if !core.IsNotFound(err) {
		return Roadmap{}, errors.Wrap(err, "checking roadmap filename")
	}

	agg, html, err := svc.build(ctx, data.CompanyName, content)
	if err != nil {
		return Roadmap{}, err
	}
	res, err := svc.host.Publish(ctx, filename, html, description(data.CompanyName, content))
	if err != nil {
		return Roadmap{}, errors.Wrap(err, "publishing roadmap")
	}

	now := svc.now()
	r, err := svc.repo.Create(ctx, Roadmap{
		ID:             uuid.NewString(),
		CompanyName:    data.CompanyName,
		Content:        agg.Content,
		PublishedURL:   res.PublishedURL,
		Filename:       filename,
		CrmAffiliation: data.CrmAffiliation,
		CreatedBy:      actorID,
		CreatedDate:    now,
		UpdatedDate:    now,
		LastSyncedAt:   &now,
	})
	if err != nil {
		return Roadmap{}, errors.Wrap(err, "saving roadmap")
	}
	if len(agg.Missing) > 0 {
		svc.logger.Warn("roadmap published with missing tech stacks", map[string]interface{}{
			"roadmapId": r.ID,
			"missing":   strings.Join(agg.Missing, ", "),
		})
	}
	return r, nil
}

func (svc *service) Get(ctx context.Context, id string) (Roadmap, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Roadmap, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.Query(ctx, *filter, ordering...)
}

// Update keeps the filename so the published URL stays stable, even when the company or role changes.
func (svc *service) Update(ctx context.Context, id string, data UpdateRoadmap) (Roadmap, error) {
	r, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Roadmap{}, err
	}
	if data.CompanyName != "" {
		r.CompanyName = data.CompanyName
	}
	if data.HasContent() {
		r.Content = NewContent(data.Role, data.TechStacks, data.Roles)
	}
	if data.CrmAffiliation != nil {
		r.CrmAffiliation = *data.CrmAffiliation
	}

	agg, html, err := svc.build(ctx, r.CompanyName, r.Content)
	if err != nil {
		return Roadmap{}, err
	}
	res, err := svc.host.Publish(ctx, r.Filename, html, description(r.CompanyName, r.Content))
	if err != nil {
		return Roadmap{}, errors.Wrap(err, "publishing roadmap")
	}

	now := svc.now()
	r.Content = agg.Content
	r.PublishedURL = res.PublishedURL
	r.UpdatedDate = now
	r.LastSyncedAt = &now
	r.LastSyncError = ""
	if r, err = svc.repo.Update(ctx, r); err != nil {
		if core.IsNotFound(err) {
			return Roadmap{}, err
		}
		return Roadmap{}, errors.Wrap(err, "saving roadmap")
	}
	return r, nil
}

// Delete removes the metadata only. The published page stays online.
func (svc *service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := svc.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "deleting roadmap")
	}
	return nil
}

func (svc *service) FindReferencing(ctx context.Context, techStackID string, names ...string) ([]Roadmap, error) {
	return svc.repo.FindReferencing(ctx, techStackID, names...)
}

func (svc *service) Sync(ctx context.Context, r Roadmap) SyncResult {
	res := SyncResult{RoadmapID: r.ID, CompanyName: r.CompanyName, Role: r.Role(), Filename: r.Filename}

	var syncErr error
	agg, html, err := svc.build(ctx, r.CompanyName, r.Content)
	res.Missing = agg.Missing
	if err != nil {
		syncErr = err
	} else if pub, err := svc.host.Publish(ctx, r.Filename, html, description(r.CompanyName, r.Content)); err != nil {
		syncErr = err
	} else {
		res.PublishedURL = pub.PublishedURL
	}

	errMsg := ""
	if syncErr != nil {
		errMsg = syncErr.Error()
		res.Error = errMsg
	} else if !reflect.DeepEqual(agg.Content, r.Content) || res.PublishedURL != r.PublishedURL {
		// keep refs pointing to the stacks' current ids and names
		if err := svc.repo.RefreshContent(ctx, r.ID, r.Content, agg.Content, res.PublishedURL); err != nil && !core.IsNotFound(err) {
			svc.logger.Error(fmt.Sprintf("saving refreshed roadmap %s: %v", r.ID, err), err)
		}
	}
	if err := svc.repo.SetSyncStatus(ctx, r.ID, svc.now(), errMsg); err != nil && !core.IsNotFound(err) {
		svc.logger.Error(fmt.Sprintf("recording sync status of roadmap %s: %v", r.ID, err), err)
	}
	return res
}

func (svc *service) Republish(ctx context.Context, id string) (SyncResult, error) {
	r, err := svc.repo.Get(ctx, id)
	if err != nil {
		return SyncResult{}, err
	}
	return svc.Sync(ctx, r), nil
}

func (svc *service) RepublishAll(ctx context.Context) (Report, error) {
	roadmaps, err := svc.repo.Query(ctx, QueryFilter{})
	if err != nil {
		return Report{}, errors.Wrap(err, "listing roadmaps")
	}
	rep := Report{Synced: []SyncResult{}, Failed: []SyncResult{}}
	for _, r := range roadmaps {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Add(svc.Sync(ctx, r))
	}
	return rep, nil
}
