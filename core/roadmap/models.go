package roadmap

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/niat-ops/opsboard/core"
)

// ConsolidatedRole is the role label of multi-role roadmaps.
const ConsolidatedRole = "Consolidated"

// Content kinds
const (
	KindSingle       = "single"
	KindConsolidated = "consolidated"
)

// TechStackRef points to a tech stack by id, falling back to its name.
// Legacy rows only carry the name, so a bare JSON string is accepted as a name.
type TechStackRef struct {
	ID   string `json:"id,omitempty" bson:"id,omitempty"`
	Name string `json:"name" bson:"name"`
}

func (ref *TechStackRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &ref.Name)
	}
	type plain TechStackRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*ref = TechStackRef(p)
	return nil
}

// Key identifies the ref: its id when known, its lower-cased name otherwise.
func (ref TechStackRef) Key() string {
	if ref.ID != "" {
		return ref.ID
	}
	return "name:" + strings.ToLower(ref.Name)
}

func (ref TechStackRef) Label() string {
	if ref.Name != "" {
		return ref.Name
	}
	return ref.ID
}

type RoleContent struct {
	Title      string         `json:"title" bson:"title"`
	TechStacks []TechStackRef `json:"techStacks" bson:"techStacks"`
}

// Content is what a roadmap bundles: either a Single role or a Consolidated list of roles.
type Content interface {
	Kind() string
	// RoleTitle is the single role, or ConsolidatedRole.
	RoleTitle() string
	// Roles lists every role of the content; a Single content has exactly one.
	Roles() []RoleContent
}

type Single struct {
	Role       string
	TechStacks []TechStackRef
}

type Consolidated struct {
	RoleList []RoleContent
}

var (
	_ Content = Single{}
	_ Content = Consolidated{}
)

func (Single) Kind() string         { return KindSingle }
func (s Single) RoleTitle() string  { return s.Role }
func (s Single) Roles() []RoleContent { return []RoleContent{{Title: s.Role, TechStacks: s.TechStacks}} }

func (Consolidated) Kind() string          { return KindConsolidated }
func (Consolidated) RoleTitle() string     { return ConsolidatedRole }
func (c Consolidated) Roles() []RoleContent { return c.RoleList }

// NewContent builds the content variant: several roles make a Consolidated content,
// a single role (or none) a Single one.
func NewContent(role string, techStacks []TechStackRef, roles []RoleContent) Content {
	switch {
	case len(roles) > 1:
		return Consolidated{RoleList: roles}
	case len(roles) == 1:
		return Single{Role: roles[0].Title, TechStacks: roles[0].TechStacks}
	default:
		return Single{Role: role, TechStacks: techStacks}
	}
}

// UniqueRefs lists the refs of every role once, in order of first appearance.
func UniqueRefs(content Content) []TechStackRef {
	seen := make(map[string]bool)
	refs := make([]TechStackRef, 0)
	for _, role := range content.Roles() {
		for _, ref := range role.TechStacks {
			if key := ref.Key(); !seen[key] {
				seen[key] = true
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

// Relink points every id-less ref named oldName (case-insensitive) to ref. It reports whether anything changed.
func Relink(content Content, oldName string, ref TechStackRef) (Content, bool) {
	changed := false
	relink := func(refs []TechStackRef) []TechStackRef {
		out := make([]TechStackRef, 0, len(refs))
		for _, r := range refs {
			if r.ID == "" && strings.EqualFold(r.Name, oldName) {
				r = ref
				changed = true
			}
			out = append(out, r)
		}
		return out
	}
	switch c := content.(type) {
	case Single:
		c.TechStacks = relink(c.TechStacks)
		return c, changed
	case Consolidated:
		roles := make([]RoleContent, 0, len(c.RoleList))
		for _, role := range c.RoleList {
			roles = append(roles, RoleContent{Title: role.Title, TechStacks: relink(role.TechStacks)})
		}
		return Consolidated{RoleList: roles}, changed
	}
	return content, false
}

type Roadmap struct {
	ID             string
	CompanyName    string
	Content        Content
	PublishedURL   string
	Filename       string
	CrmAffiliation string
	CreatedBy      string
	CreatedDate    time.Time
	UpdatedDate    time.Time
	LastSyncedAt   *time.Time
	LastSyncError  string
}

func (r Roadmap) Role() string {
	if r.Content == nil {
		return ""
	}
	return r.Content.RoleTitle()
}

func (r Roadmap) IsConsolidated() bool {
	return r.Content != nil && r.Content.Kind() == KindConsolidated
}

func (r Roadmap) Roles() []RoleContent {
	if r.Content == nil {
		return nil
	}
	return r.Content.Roles()
}

// References reports whether any role of r points to the tech stack, by id or by one of its names.
func (r Roadmap) References(techStackID string, names ...string) bool {
	for _, role := range r.Roles() {
		for _, ref := range role.TechStacks {
			if techStackID != "" && ref.ID == techStackID {
				return true
			}
			for _, name := range names {
				if name != "" && strings.EqualFold(ref.Name, name) {
					return true
				}
			}
		}
	}
	return false
}

// jsonRoadmap is the API shape of a Roadmap.
type jsonRoadmap struct {
	ID             string         `json:"id"`
	Kind           string         `json:"kind"`
	CompanyName    string         `json:"companyName"`
	Role           string         `json:"role"`
	IsConsolidated bool           `json:"isConsolidated"`
	TechStacks     []TechStackRef `json:"techStacks,omitempty"`
	Roles          []RoleContent  `json:"roles,omitempty"`
	PublishedURL   string         `json:"publishedUrl"`
	Filename       string         `json:"filename"`
	CrmAffiliation string         `json:"crmAffiliation,omitempty"`
	CreatedBy      string         `json:"createdBy,omitempty"`
	CreatedDate    time.Time      `json:"createdDate"`
	UpdatedDate    time.Time      `json:"updatedDate"`
	LastSyncedAt   *time.Time     `json:"lastSyncedAt,omitempty"`
	LastSyncError  string         `json:"lastSyncError,omitempty"`
}

func (r Roadmap) MarshalJSON() ([]byte, error) {
	jr := jsonRoadmap{
		ID:             r.ID,
		CompanyName:    r.CompanyName,
		Role:           r.Role(),
		IsConsolidated: r.IsConsolidated(),
		PublishedURL:   r.PublishedURL,
		Filename:       r.Filename,
		CrmAffiliation: r.CrmAffiliation,
		CreatedBy:      r.CreatedBy,
		CreatedDate:    r.CreatedDate,
		UpdatedDate:    r.UpdatedDate,
		LastSyncedAt:   r.LastSyncedAt,
		LastSyncError:  r.LastSyncError,
	}
	switch c := r.Content.(type) {
	case Single:
		jr.Kind = KindSingle
		jr.TechStacks = c.TechStacks
		if jr.TechStacks == nil {
			jr.TechStacks = []TechStackRef{}
		}
	case Consolidated:
		jr.Kind = KindConsolidated
		jr.Roles = c.RoleList
	}
	return json.Marshal(jr)
}

func (r *Roadmap) UnmarshalJSON(data []byte) error {
	var jr jsonRoadmap
	if err := json.Unmarshal(data, &jr); err != nil {
		return err
	}
	*r = Roadmap{
		ID:             jr.ID,
		CompanyName:    jr.CompanyName,
		PublishedURL:   jr.PublishedURL,
		Filename:       jr.Filename,
		CrmAffiliation: jr.CrmAffiliation,
		CreatedBy:      jr.CreatedBy,
		CreatedDate:    jr.CreatedDate,
		UpdatedDate:    jr.UpdatedDate,
		LastSyncedAt:   jr.LastSyncedAt,
		LastSyncError:  jr.LastSyncError,
	}
	if jr.Kind == KindConsolidated || jr.IsConsolidated {
		r.Content = Consolidated{RoleList: jr.Roles}
	} else {
		r.Content = Single{Role: jr.Role, TechStacks: jr.TechStacks}
	}
	return nil
}

// Filename is "<company>-<role>-roadmap.html", with "consolidated" as the role of multi-role content.
func Filename(companyName string, content Content) string {
	company := core.Slugify(companyName)
	if company == "" {
		company = "company"
	}
	role := core.Slugify(content.RoleTitle())
	if role == "" {
		role = "role"
	}
	return company + "-" + role + "-roadmap.html"
}

// NewRoadmap contains information needed to publish a Roadmap.
// Either Role and TechStacks, or Roles are provided.
type NewRoadmap struct {
	CompanyName    string         `json:"companyName" validate:"required,notblank"`
	Role           string         `json:"role"`
	TechStacks     []TechStackRef `json:"techStacks"`
	Roles          []RoleContent  `json:"roles"`
	CrmAffiliation string         `json:"crmAffiliation"`
}

func (nr *NewRoadmap) clean() {
	nr.CompanyName = core.CleanString(nr.CompanyName)
	nr.Role = core.CleanString(nr.Role)
	nr.TechStacks = cleanRefs(nr.TechStacks)
	nr.Roles = cleanRoles(nr.Roles)
	nr.CrmAffiliation = core.CleanString(nr.CrmAffiliation)
}

func (nr *NewRoadmap) Validate(validate *validator.Validate) error {
	nr.clean()
	return validate.Struct(nr)
}

func (nr NewRoadmap) Content() Content {
	return NewContent(nr.Role, nr.TechStacks, nr.Roles)
}

// UpdateRoadmap defines what may be changed on a Roadmap.
// The content is replaced only when Role/TechStacks or Roles are provided.
type UpdateRoadmap struct {
	CompanyName    string         `json:"companyName"`
	Role           string         `json:"role"`
	TechStacks     []TechStackRef `json:"techStacks"`
	Roles          []RoleContent  `json:"roles"`
	CrmAffiliation *string        `json:"crmAffiliation"`
}

func (ur *UpdateRoadmap) Validate(validate *validator.Validate) error {
	ur.CompanyName = core.CleanString(ur.CompanyName)
	ur.Role = core.CleanString(ur.Role)
	ur.TechStacks = cleanRefs(ur.TechStacks)
	ur.Roles = cleanRoles(ur.Roles)
	if ur.CrmAffiliation != nil {
		aff := core.CleanString(*ur.CrmAffiliation)
		ur.CrmAffiliation = &aff
	}
	return validate.Struct(ur)
}

func (ur UpdateRoadmap) HasContent() bool {
	return len(ur.Roles) > 0 || ur.Role != "" || len(ur.TechStacks) > 0
}

type QueryFilter struct {
	Search         string `query:"search"`
	CompanyName    string `query:"companyName"`
	CrmAffiliation string `query:"crmAffiliation"`
	Kind           string `query:"kind"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.CompanyName = core.CleanString(qf.CompanyName)
	qf.CrmAffiliation = core.CleanString(qf.CrmAffiliation)
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
}

// Matches applies the filter to a single roadmap. Used by in-memory storage.
func (qf QueryFilter) Matches(r Roadmap) bool {
	if qf.Search != "" && !strings.Contains(strings.ToLower(r.CompanyName), strings.ToLower(qf.Search)) &&
		!strings.Contains(strings.ToLower(r.Role()), strings.ToLower(qf.Search)) {
		return false
	}
	if qf.CompanyName != "" && !strings.EqualFold(qf.CompanyName, r.CompanyName) {
		return false
	}
	if qf.CrmAffiliation != "" && !strings.EqualFold(qf.CrmAffiliation, r.CrmAffiliation) {
		return false
	}
	if qf.Kind != "" && (r.Content == nil || qf.Kind != r.Content.Kind()) {
		return false
	}
	return true
}

func cleanRefs(refs []TechStackRef) []TechStackRef {
	cleaned := make([]TechStackRef, 0, len(refs))
	for _, ref := range refs {
		ref.ID = core.CleanString(ref.ID)
		ref.Name = core.CleanString(ref.Name)
		if ref.ID != "" || ref.Name != "" {
			cleaned = append(cleaned, ref)
		}
	}
	return cleaned
}

func cleanRoles(roles []RoleContent) []RoleContent {
	if roles == nil {
		return nil
	}
	cleaned := make([]RoleContent, 0, len(roles))
	for _, role := range roles {
		cleaned = append(cleaned, RoleContent{
			Title:      core.CleanString(role.Title),
			TechStacks: cleanRefs(role.TechStacks),
		})
	}
	return cleaned
}
