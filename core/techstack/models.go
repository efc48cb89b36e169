package techstack

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/niat-ops/opsboard/core"
)

// Completion statuses
const (
	StatusYetToStart = "Yet to Start"
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
)

// Default column labels
const (
	DefaultTopicHeader     = "Topic"
	DefaultSubTopicsHeader = "Sub Topics"
	DefaultProjectsHeader  = "Projects"
	DefaultStatusHeader    = "Status"
)

var Statuses = []string{StatusYetToStart, StatusInProgress, StatusCompleted}

type Named struct {
	Name string `json:"name" bson:"name"`
}

// Headers are the customizable column labels of a tech stack's roadmap table.
type Headers struct {
	Topic     string `json:"topic" bson:"topic"`
	SubTopics string `json:"subTopics" bson:"subTopics"`
	Projects  string `json:"projects" bson:"projects"`
	Status    string `json:"status" bson:"status"`
}

// WithDefaults fills every blank label with its default.
func (h Headers) WithDefaults() Headers {
	if h.Topic = core.CleanString(h.Topic); h.Topic == "" {
		h.Topic = DefaultTopicHeader
	}
	if h.SubTopics = core.CleanString(h.SubTopics); h.SubTopics == "" {
		h.SubTopics = DefaultSubTopicsHeader
	}
	if h.Projects = core.CleanString(h.Projects); h.Projects == "" {
		h.Projects = DefaultProjectsHeader
	}
	if h.Status = core.CleanString(h.Status); h.Status == "" {
		h.Status = DefaultStatusHeader
	}
	return h
}

type RoadmapItem struct {
	ID               string     `json:"id" bson:"id"`
	Topic            string     `json:"topic" bson:"topic"`
	SubTopics        []Named    `json:"subTopics" bson:"subTopics"`
	Projects         []Named    `json:"projects" bson:"projects"`
	CompletionStatus string     `json:"completionStatus" bson:"completionStatus"`
	ScheduledDate    *time.Time `json:"scheduledDate,omitempty" bson:"scheduledDate,omitempty"`
}

func (it RoadmapItem) IsCompleted() bool { return it.CompletionStatus == StatusCompleted }

// DueBy reports whether the item is scheduled on or before day and is not completed yet.
func (it RoadmapItem) DueBy(day time.Time) bool {
	if it.ScheduledDate == nil || it.IsCompleted() {
		return false
	}
	y, m, d := day.Date()
	endOfDay := time.Date(y, m, d, 23, 59, 59, 0, day.Location())
	return !it.ScheduledDate.After(endOfDay)
}

type TechStack struct {
	ID           string        `json:"id" bson:"_id"`
	Name         string        `json:"name" bson:"name"`
	Description  string        `json:"description" bson:"description"`
	Headers      Headers       `json:"headers" bson:"headers"`
	RoadmapItems []RoadmapItem `json:"roadmapItems" bson:"roadmapItems"`
	CreatedAt    time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// PercentComplete is round(100 * completed / total), 0 when the stack has no items.
func (ts TechStack) PercentComplete() int {
	return PercentComplete(ts.RoadmapItems)
}

func PercentComplete(items []RoadmapItem) int {
	if len(items) == 0 {
		return 0
	}
	var completed int
	for _, it := range items {
		if it.IsCompleted() {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(items))))
}

// ItemIndex returns the index of the item with the given id, -1 if missing.
func (ts TechStack) ItemIndex(itemID string) int {
	for i, it := range ts.RoadmapItems {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// Change is emitted after a tech stack write has been committed.
type Change struct {
	TechStackID  string    `json:"techStackId"`
	Name         string    `json:"name"`
	PreviousName string    `json:"previousName,omitempty"`
	ChangedBy    string    `json:"changedBy,omitempty"` // user ID
	Reason       string    `json:"reason"`
	At           time.Time `json:"at"`
}

// Change reasons
const (
	ReasonCreated     = "created"
	ReasonUpdated     = "updated"
	ReasonDeleted     = "deleted"
	ReasonItemAdded   = "item-added"
	ReasonItemUpdated = "item-updated"
	ReasonItemDeleted = "item-deleted"
)

// Names lists every name the stack may be referenced by.
func (c Change) Names() []string {
	if c.PreviousName != "" && c.PreviousName != c.Name {
		return []string{c.Name, c.PreviousName}
	}
	return []string{c.Name}
}

// NewRoadmapItem contains information needed to add a RoadmapItem.
type NewRoadmapItem struct {
	ID               string     `json:"id"` // kept when replacing all items, generated otherwise
	Topic            string     `json:"topic" validate:"required,notblank"`
	SubTopics        []Named    `json:"subTopics"`
	Projects         []Named    `json:"projects"`
	CompletionStatus string     `json:"completionStatus" validate:"omitempty,itemstatus"`
	ScheduledDate    *time.Time `json:"scheduledDate"`
}

func (ni *NewRoadmapItem) clean() {
	ni.Topic = core.CleanString(ni.Topic)
	ni.SubTopics = cleanNamed(ni.SubTopics)
	ni.Projects = cleanNamed(ni.Projects)
	if ni.CompletionStatus = core.CleanString(ni.CompletionStatus); ni.CompletionStatus == "" {
		ni.CompletionStatus = StatusYetToStart
	}
}

func (ni *NewRoadmapItem) Validate(validate *validator.Validate) error {
	ni.clean()
	return validate.Struct(ni)
}

// UpdateRoadmapItem defines what may be changed on a RoadmapItem. Nil fields are left untouched.
type UpdateRoadmapItem struct {
	Topic              *string    `json:"topic" validate:"omitempty,notblank"`
	SubTopics          *[]Named   `json:"subTopics"`
	Projects           *[]Named   `json:"projects"`
	CompletionStatus   *string    `json:"completionStatus" validate:"omitempty,itemstatus"`
	ScheduledDate      *time.Time `json:"scheduledDate"`
	ClearScheduledDate bool       `json:"clearScheduledDate"`
}

// ProgressOnly reports whether only the status and schedule are changed. Instructors may only do that.
func (ui UpdateRoadmapItem) ProgressOnly() bool {
	return ui.Topic == nil && ui.SubTopics == nil && ui.Projects == nil
}

func (ui *UpdateRoadmapItem) Validate(validate *validator.Validate) error {
	if ui.Topic != nil {
		topic := core.CleanString(*ui.Topic)
		ui.Topic = &topic
	}
	if ui.CompletionStatus != nil {
		status := core.CleanString(*ui.CompletionStatus)
		ui.CompletionStatus = &status
	}
	if ui.SubTopics != nil {
		named := cleanNamed(*ui.SubTopics)
		ui.SubTopics = &named
	}
	if ui.Projects != nil {
		named := cleanNamed(*ui.Projects)
		ui.Projects = &named
	}
	return validate.Struct(ui)
}

func (ui UpdateRoadmapItem) apply(it RoadmapItem) RoadmapItem {
	if ui.Topic != nil {
		it.Topic = *ui.Topic
	}
	if ui.SubTopics != nil {
		it.SubTopics = *ui.SubTopics
	}
	if ui.Projects != nil {
		it.Projects = *ui.Projects
	}
	if ui.CompletionStatus != nil {
		it.CompletionStatus = *ui.CompletionStatus
	}
	if ui.ClearScheduledDate {
		it.ScheduledDate = nil
	} else if ui.ScheduledDate != nil {
		d := ui.ScheduledDate.UTC()
		it.ScheduledDate = &d
	}
	return it
}

// NewTechStack contains information needed to create a TechStack.
type NewTechStack struct {
	Name         string           `json:"name" validate:"required,notblank"`
	Description  string           `json:"description"`
	Headers      Headers          `json:"headers"`
	RoadmapItems []NewRoadmapItem `json:"roadmapItems" validate:"dive"`
}

func (nt *NewTechStack) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Description = core.CleanString(nt.Description)
	for i := range nt.RoadmapItems {
		nt.RoadmapItems[i].clean()
	}
	if err := validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckNameUniqueness(ctx, nt.Name)
}

// UpdateTechStack defines what may be changed on a TechStack. RoadmapItems, when set, replaces every item.
type UpdateTechStack struct {
	Name         string            `json:"name"`
	Description  *string           `json:"description"`
	Headers      *Headers          `json:"headers"`
	RoadmapItems *[]NewRoadmapItem `json:"roadmapItems" validate:"omitempty,dive"`
}

func (uts *UpdateTechStack) Validate(ctx context.Context, orig TechStack, validate *validator.Validate, svc Service) error {
	uts.Name = core.CleanString(uts.Name)
	if uts.Description != nil {
		desc := core.CleanString(*uts.Description)
		uts.Description = &desc
	}
	if uts.RoadmapItems != nil {
		for i := range *uts.RoadmapItems {
			(*uts.RoadmapItems)[i].clean()
		}
	}
	if err := validate.Struct(uts); err != nil {
		return err
	}
	if uts.Name == "" || uts.Name == orig.Name {
		return nil
	}
	return svc.CheckNameUniqueness(ctx, uts.Name, orig.ID)
}

type QueryFilter struct {
	Search string `query:"search"`

	// RestrictToNames limits results to Names (case-insensitive). Used for instructors' assignments.
	RestrictToNames bool     `query:"-"`
	Names           []string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Matches applies the filter to a single tech stack. Used by in-memory storage.
func (qf QueryFilter) Matches(ts TechStack) bool {
	if qf.Search != "" && !strings.Contains(strings.ToLower(ts.Name), strings.ToLower(qf.Search)) {
		return false
	}
	if qf.RestrictToNames {
		for _, name := range qf.Names {
			if strings.EqualFold(name, ts.Name) {
				return true
			}
		}
		return false
	}
	return true
}

func cleanNamed(items []Named) []Named {
	cleaned := make([]Named, 0, len(items))
	for _, it := range items {
		if name := core.CleanString(it.Name); name != "" {
			cleaned = append(cleaned, Named{Name: name})
		}
	}
	return cleaned
}
