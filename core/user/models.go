package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/niat-ops/opsboard/core"
)

// Roles
const (
	RoleAdmin      = "admin"
	RoleContent    = "content"
	RoleInstructor = "instructor"
	RoleCRM        = "crm"
	RoleManager    = "manager"
)

var (
	AllRoles = []string{RoleAdmin, RoleContent, RoleInstructor, RoleCRM, RoleManager}

	Roles = []Role{
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Content", Value: RoleContent},
		{Name: "Instructor", Value: RoleInstructor},
		{Name: "CRM", Value: RoleCRM},
		{Name: "Manager", Value: RoleManager},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID                       string    `json:"id" db:"id"`
	Name                     string    `json:"name" db:"name"`
	Email                    string    `json:"email" db:"email"`
	Role                     string    `json:"role" db:"role"`
	AssignedTechStacks       []string  `json:"assignedTechStacks" db:"assigned_tech_stacks"`
	CanAccessCriticalPoints  bool      `json:"canAccessCriticalPoints" db:"can_access_critical_points"`
	CanAccessPostInternships bool      `json:"canAccessPostInternships" db:"can_access_post_internships"`
	IsActive                 bool      `json:"isActive" db:"is_active"`
	PasswordHash             []byte    `json:"-" db:"password_hash"`
	CreatedAt                time.Time `json:"createdAt" db:"created_at"` // UTC
	UpdatedAt                time.Time `json:"updatedAt" db:"updated_at"` // UTC
	LastLogin                time.Time `json:"lastLogin" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsAdmin() bool      { return u.Role == RoleAdmin }
func (u User) IsInstructor() bool { return u.Role == RoleInstructor }
func (u User) IsCRM() bool        { return u.Role == RoleCRM }

// HasAnyRole reports whether u holds one of roles. An empty list matches everyone.
func (u User) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}

// MayViewCriticalPoints gates the interaction critical-points view. Admins always may.
func (u User) MayViewCriticalPoints() bool {
	return u.IsAdmin() || u.CanAccessCriticalPoints
}

// MayViewPostInternships gates post-internship tracking. Admins always may.
func (u User) MayViewPostInternships() bool {
	return u.IsAdmin() || u.CanAccessPostInternships
}

// IsAssignedTo reports whether an instructor is assigned the named tech stack (case-insensitive).
// Users of any other role are not restricted to assignments.
func (u User) IsAssignedTo(techStackName string) bool {
	if !u.IsInstructor() {
		return true
	}
	name := core.CleanString(techStackName, true /* lower */)
	for _, assigned := range u.AssignedTechStacks {
		if core.CleanString(assigned, true /* lower */) == name {
			return true
		}
	}
	return false
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name                     string   `json:"name" validate:"required"`
	Email                    string   `json:"email" validate:"required,email"`
	Password                 string   `json:"password" validate:"required"`
	PasswordConfirm          string   `json:"passwordConfirm" validate:"required,eqfield=Password"`
	Role                     string   `json:"role" validate:"required,role"`
	AssignedTechStacks       []string `json:"assignedTechStacks"`
	CanAccessCriticalPoints  bool     `json:"canAccessCriticalPoints"`
	CanAccessPostInternships bool     `json:"canAccessPostInternships"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.AssignedTechStacks = cleanNames(nu.AssignedTechStacks)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name                     string    `json:"name"`
	Email                    string    `json:"email" validate:"omitempty,email"`
	Role                     string    `json:"role" validate:"omitempty,role"`
	AssignedTechStacks       *[]string `json:"assignedTechStacks"`
	CanAccessCriticalPoints  *bool     `json:"canAccessCriticalPoints"`
	CanAccessPostInternships *bool     `json:"canAccessPostInternships"`
	IsActive                 *bool     `json:"isActive"`
	Password                 string    `json:"password" validate:"omitempty"`
	PasswordConfirm          string    `json:"passwordConfirm" validate:"required_with=Password,eqfield=Password"`
}

// AdminOnly reports whether uu touches fields only an admin may change.
func (uu UpdateUser) AdminOnly() bool {
	return uu.Email != "" || uu.Role != "" || uu.AssignedTechStacks != nil ||
		uu.CanAccessCriticalPoints != nil || uu.CanAccessPostInternships != nil || uu.IsActive != nil
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	uu.Role = core.CleanString(uu.Role, true /* lower */)
	if uu.AssignedTechStacks != nil {
		names := cleanNames(*uu.AssignedTechStacks)
		uu.AssignedTechStacks = &names
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search    string   `query:"search"`
	Roles     []string `query:"role"`
	IsActive  *bool    `query:"isActive"`
	TechStack string   `query:"techStack"` // instructors assigned to this stack
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.TechStack == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.TechStack = core.CleanString(qf.TechStack)
	for i, role := range qf.Roles {
		qf.Roles[i] = core.CleanString(role, true /* lower */)
	}
}

// Matches applies the filter to a single user. Used by in-memory storage.
func (qf QueryFilter) Matches(usr User) bool {
	if qf.Search != "" {
		s := strings.ToLower(qf.Search)
		if !strings.Contains(strings.ToLower(usr.Name), s) && !strings.Contains(usr.Email, s) {
			return false
		}
	}
	if len(qf.Roles) > 0 && !usr.HasAnyRole(qf.Roles...) {
		return false
	}
	if qf.IsActive != nil && usr.IsActive != *qf.IsActive {
		return false
	}
	if qf.TechStack != "" && !(usr.IsInstructor() && usr.IsAssignedTo(qf.TechStack)) {
		return false
	}
	return true
}

func cleanNames(names []string) []string {
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		if name = core.CleanString(name); name != "" {
			cleaned = append(cleaned, name)
		}
	}
	return cleaned
}
