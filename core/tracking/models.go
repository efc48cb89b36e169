// Package tracking holds the placement tracking records: company statuses, interaction feedback,
// post-internship follow-ups, hub statuses and student ratings.
package tracking

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/niat-ops/opsboard/core"
)

// Closing statuses
const (
	ClosingOpen   = "Open"
	ClosingOnHold = "On Hold"
	ClosingClosed = "Closed"
)

// Student statuses
const (
	StudentPending     = "Pending"
	StudentShortlisted = "Shortlisted"
	StudentSelected    = "Selected"
	StudentRejected    = "Rejected"
	StudentOnHold      = "On Hold"
)

// Task statuses
const (
	TaskPending    = "Pending"
	TaskInProgress = "In Progress"
	TaskCompleted  = "Completed"
)

// Hub statuses
const (
	HubApplied      = "Applied"
	HubInterviewing = "Interviewing"
	HubOffered      = "Offered"
	HubPlaced       = "Placed"
	HubRejected     = "Rejected"
	HubOnHold       = "On Hold"
)

// Rating kinds
const (
	RatingTechnical     = "technical"
	RatingSoftSkills    = "softskills"
	RatingMockInterview = "mock-interview"
)

var (
	ClosingStatuses = []string{ClosingOpen, ClosingOnHold, ClosingClosed}
	StudentStatuses = []string{StudentPending, StudentShortlisted, StudentSelected, StudentRejected, StudentOnHold}
	TaskStatuses    = []string{TaskPending, TaskInProgress, TaskCompleted}
	HubStatuses     = []string{HubApplied, HubInterviewing, HubOffered, HubPlaced, HubRejected, HubOnHold}
	RatingKinds     = []string{RatingTechnical, RatingSoftSkills, RatingMockInterview}
)

// Base is embedded in every record. RecordBase gives generic code access to it.
type Base struct {
	ID        string    `json:"id" bson:"_id"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (b *Base) RecordBase() *Base { return b }

// ChildBase is embedded in every nested sub-document.
type ChildBase struct {
	ID string `json:"id" bson:"id"`
}

func (cb *ChildBase) childBase() *ChildBase { return cb }

// Attrs are the record fields filters apply to.
type Attrs struct {
	CompanyName string
	Role        string
	NiatID      string
	StudentName string
	HubName     string
	Kind        string
	Statuses    []string
}

// Record is implemented by pointers to the record types of this package.
type Record interface {
	RecordBase() *Base
	Attrs() Attrs
	// normalize fills defaults and missing child ids.
	normalize()
}

// Child is implemented by pointers to the sub-document types of this package.
type Child interface {
	childBase() *ChildBase
	normalize()
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func defaultString(s *string, def string) {
	if *s == "" {
		*s = def
	}
}

// canonicalize replaces s with the allowed value it matches ignoring case and inner spacing.
// Unknown values are kept for validation to reject.
func canonicalize(s *string, allowed []string) {
	clean := strings.Join(strings.Fields(*s), " ")
	for _, v := range allowed {
		if strings.EqualFold(clean, v) {
			*s = v
			return
		}
	}
}

func normalizeChildren[C any, PC interface {
	*C
	Child
}](children []C) []C {
	if children == nil {
		return []C{}
	}
	for i := range children {
		PC(&children[i]).normalize()
	}
	return children
}

type (
	CompanyStatus struct {
		Base          `bson:",inline"`
		CompanyName   string          `json:"companyName" bson:"companyName" validate:"required,notblank"`
		Role          string          `json:"role" bson:"role" validate:"required,notblank"`
		ClosingStatus string          `json:"closingStatus" bson:"closingStatus" validate:"oneof=Open 'On Hold' Closed"`
		CrmOwner      string          `json:"crmOwner,omitempty" bson:"crmOwner,omitempty"`
		Students      []StudentStatus `json:"students" bson:"students" validate:"dive"`
	}

	StudentStatus struct {
		ChildBase          `bson:",inline"`
		NiatID             string  `json:"niatId,omitempty" bson:"niatId,omitempty"`
		StudentName        string  `json:"studentName" bson:"studentName" validate:"required,notblank"`
		TechnicalScore     float64 `json:"technicalScore" bson:"technicalScore" validate:"gte=0"`
		CommunicationScore float64 `json:"communicationScore" bson:"communicationScore" validate:"gte=0"`
		Status             string  `json:"status" bson:"status" validate:"oneof=Pending Shortlisted Selected Rejected 'On Hold'"`
		Remarks            string  `json:"remarks,omitempty" bson:"remarks,omitempty"`
	}
)

func (cs CompanyStatus) Attrs() Attrs {
	return Attrs{CompanyName: cs.CompanyName, Role: cs.Role, Statuses: []string{cs.ClosingStatus}}
}

func (cs *CompanyStatus) normalize() {
	cs.CompanyName = core.CleanString(cs.CompanyName)
	cs.Role = core.CleanString(cs.Role)
	defaultString(&cs.ClosingStatus, ClosingOpen)
	canonicalize(&cs.ClosingStatus, ClosingStatuses)
	cs.Students = normalizeChildren(cs.Students)
}

func (s *StudentStatus) normalize() {
	ensureID(&s.ID)
	s.StudentName = core.CleanString(s.StudentName)
	defaultString(&s.Status, StudentPending)
	canonicalize(&s.Status, StudentStatuses)
}

type (
	InteractionFeedback struct {
		Base         `bson:",inline"`
		CompanyName  string           `json:"companyName" bson:"companyName" validate:"required,notblank"`
		Role         string           `json:"role" bson:"role" validate:"required,notblank"`
		Interactions []InteractionLog `json:"interactions" bson:"interactions" validate:"dive"`
	}

	InteractionLog struct {
		ChildBase      `bson:",inline"`
		Date           *time.Time `json:"date,omitempty" bson:"date,omitempty"`
		Mode           string     `json:"mode,omitempty" bson:"mode,omitempty"`
		Participants   string     `json:"participants,omitempty" bson:"participants,omitempty"`
		Feedback       string     `json:"feedback" bson:"feedback" validate:"required,notblank"`
		CriticalPoints string     `json:"criticalPoints,omitempty" bson:"criticalPoints,omitempty"`
		Rating         float64    `json:"rating" bson:"rating" validate:"gte=0,lte=10"`
		LoggedBy       string     `json:"loggedBy,omitempty" bson:"loggedBy,omitempty"`
	}
)

func (f InteractionFeedback) Attrs() Attrs {
	return Attrs{CompanyName: f.CompanyName, Role: f.Role}
}

func (f *InteractionFeedback) normalize() {
	f.CompanyName = core.CleanString(f.CompanyName)
	f.Role = core.CleanString(f.Role)
	f.Interactions = normalizeChildren(f.Interactions)
}

func (l *InteractionLog) normalize() {
	ensureID(&l.ID)
	l.Feedback = core.CleanString(l.Feedback)
	l.CriticalPoints = core.CleanString(l.CriticalPoints)
}

type (
	PostInternship struct {
		Base              `bson:",inline"`
		CompanyName       string     `json:"companyName" bson:"companyName" validate:"required,notblank"`
		NiatID            string     `json:"niatId" bson:"niatId" validate:"required,notblank"`
		StudentName       string     `json:"studentName" bson:"studentName" validate:"required,notblank"`
		InternshipEndDate *time.Time `json:"internshipEndDate,omitempty" bson:"internshipEndDate,omitempty"`
		Tasks             []Task     `json:"tasks" bson:"tasks" validate:"dive"`
	}

	Task struct {
		ChildBase   `bson:",inline"`
		Title       string     `json:"title" bson:"title" validate:"required,notblank"`
		Description string     `json:"description,omitempty" bson:"description,omitempty"`
		DueDate     *time.Time `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
		Status      string     `json:"status" bson:"status" validate:"oneof=Pending 'In Progress' Completed"`
		AssignedBy  string     `json:"assignedBy,omitempty" bson:"assignedBy,omitempty"`
	}
)

func (p PostInternship) Attrs() Attrs {
	statuses := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		statuses = append(statuses, t.Status)
	}
	return Attrs{CompanyName: p.CompanyName, NiatID: p.NiatID, StudentName: p.StudentName, Statuses: statuses}
}

func (p *PostInternship) normalize() {
	p.CompanyName = core.CleanString(p.CompanyName)
	p.NiatID = core.CleanString(p.NiatID)
	p.StudentName = core.CleanString(p.StudentName)
	p.Tasks = normalizeChildren(p.Tasks)
}

func (t *Task) normalize() {
	ensureID(&t.ID)
	t.Title = core.CleanString(t.Title)
	defaultString(&t.Status, TaskPending)
	canonicalize(&t.Status, TaskStatuses)
}

// IsOverdue reports whether the task is not completed and was due before day.
func (t Task) IsOverdue(day time.Time) bool {
	if t.Status == TaskCompleted || t.DueDate == nil {
		return false
	}
	y, m, d := day.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return t.DueDate.Before(startOfDay)
}

type (
	OverallHubStatus struct {
		Base        `bson:",inline"`
		HubName     string       `json:"hubName" bson:"hubName" validate:"required,notblank"`
		CompanyName string       `json:"companyName" bson:"companyName" validate:"required,notblank"`
		Role        string       `json:"role" bson:"role" validate:"required,notblank"`
		Students    []HubStudent `json:"students" bson:"students" validate:"dive"`
	}

	HubStudent struct {
		ChildBase   `bson:",inline"`
		NiatID      string `json:"niatId,omitempty" bson:"niatId,omitempty"`
		StudentName string `json:"studentName" bson:"studentName" validate:"required,notblank"`
		Status      string `json:"status" bson:"status" validate:"oneof=Applied Interviewing Offered Placed Rejected 'On Hold'"`
		Remarks     string `json:"remarks,omitempty" bson:"remarks,omitempty"`
	}
)

func (h OverallHubStatus) Attrs() Attrs {
	statuses := make([]string, 0, len(h.Students))
	for _, s := range h.Students {
		statuses = append(statuses, s.Status)
	}
	return Attrs{CompanyName: h.CompanyName, Role: h.Role, HubName: h.HubName, Statuses: statuses}
}

func (h *OverallHubStatus) normalize() {
	h.HubName = core.CleanString(h.HubName)
	h.CompanyName = core.CleanString(h.CompanyName)
	h.Role = core.CleanString(h.Role)
	h.Students = normalizeChildren(h.Students)
}

func (s *HubStudent) normalize() {
	ensureID(&s.ID)
	s.StudentName = core.CleanString(s.StudentName)
	defaultString(&s.Status, HubApplied)
	canonicalize(&s.Status, HubStatuses)
}

type (
	StudentRating struct {
		Base        `bson:",inline"`
		Kind        string   `json:"kind" bson:"kind" validate:"oneof=technical softskills mock-interview"`
		CompanyName string   `json:"companyName,omitempty" bson:"companyName,omitempty"`
		NiatID      string   `json:"niatId" bson:"niatId" validate:"required,notblank"`
		StudentName string   `json:"studentName" bson:"studentName" validate:"required,notblank"`
		Ratings     []Rating `json:"ratings" bson:"ratings" validate:"dive"`
	}

	Rating struct {
		ChildBase `bson:",inline"`
		Criterion string    `json:"criterion" bson:"criterion" validate:"required,notblank"`
		Score     float64   `json:"score" bson:"score" validate:"gte=0,lte=10"`
		Comment   string    `json:"comment,omitempty" bson:"comment,omitempty"`
		RatedBy   string    `json:"ratedBy,omitempty" bson:"ratedBy,omitempty"`
		RatedAt   time.Time `json:"ratedAt" bson:"ratedAt"`
	}
)

func (r StudentRating) Attrs() Attrs {
	return Attrs{CompanyName: r.CompanyName, NiatID: r.NiatID, StudentName: r.StudentName, Kind: r.Kind}
}

func (r *StudentRating) normalize() {
	r.Kind = core.CleanString(r.Kind, true /* lower */)
	r.CompanyName = core.CleanString(r.CompanyName)
	r.NiatID = core.CleanString(r.NiatID)
	r.StudentName = core.CleanString(r.StudentName)
	r.Ratings = normalizeChildren(r.Ratings)
}

func (r *Rating) normalize() {
	ensureID(&r.ID)
	r.Criterion = core.CleanString(r.Criterion)
	if r.RatedAt.IsZero() {
		r.RatedAt = time.Now().UTC()
	}
}

// Filter narrows record queries. Every set field must match.
type Filter struct {
	// Search is a case-insensitive substring match on the company, student or hub name.
	Search      string `query:"search"`
	CompanyName string `query:"companyName"`
	Role        string `query:"role"`
	NiatID      string `query:"niatId"`
	HubName     string `query:"hubName"`
	Kind        string `query:"kind"`
	// Status matches the closing status of company statuses, or any child status of other records.
	Status string `query:"status"`
}

func (f *Filter) Clean() {
	f.Search = core.CleanString(f.Search)
	f.CompanyName = core.CleanString(f.CompanyName)
	f.Role = core.CleanString(f.Role)
	f.NiatID = core.CleanString(f.NiatID)
	f.HubName = core.CleanString(f.HubName)
	f.Kind = core.CleanString(f.Kind, true /* lower */)
	f.Status = core.CleanString(f.Status)
}

// Matches applies the filter to a single record. Used by in-memory storage.
func (f Filter) Matches(a Attrs) bool {
	if f.Search != "" {
		s := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(a.CompanyName), s) &&
			!strings.Contains(strings.ToLower(a.StudentName), s) &&
			!strings.Contains(strings.ToLower(a.HubName), s) {
			return false
		}
	}
	if f.CompanyName != "" && !strings.EqualFold(f.CompanyName, a.CompanyName) {
		return false
	}
	if f.Role != "" && !strings.EqualFold(f.Role, a.Role) {
		return false
	}
	if f.NiatID != "" && f.NiatID != a.NiatID {
		return false
	}
	if f.HubName != "" && !strings.EqualFold(f.HubName, a.HubName) {
		return false
	}
	if f.Kind != "" && f.Kind != a.Kind {
		return false
	}
	if f.Status != "" {
		found := false
		for _, s := range a.Statuses {
			if s == f.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
