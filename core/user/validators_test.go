package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niat-ops/opsboard/core"
)

func newTestValidator() (*validator.Validate, func(err error) map[string]string) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	InitValidators(validate, translator)
	LoadCommonPasswords(core.NopLogger{})

	messages := func(err error) map[string]string {
		msgs := make(map[string]string)
		if vErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range vErrs {
				msgs[fe.Field()] = fe.Translate(translator)
			}
		}
		return msgs
	}
	return validate, messages
}

func TestNewUserValidation(t *testing.T) {
	validate, messages := newTestValidator()

	valid := NewUser{
		Name:            "Ada Lovelace",
		Email:           "ada@niat.test",
		Password:        "Engine#1843x",
		PasswordConfirm: "Engine#1843x",
		Role:            RoleInstructor,
	}

	tests := []struct {
		name   string
		mutate func(nu *NewUser)
		want   map[string]string
	}{
		{name: "valid", mutate: func(nu *NewUser) {}, want: map[string]string{}},
		{
			name:   "unknown role",
			mutate: func(nu *NewUser) { nu.Role = "student" },
			want:   map[string]string{"role": "invalid role"},
		},
		{
			name:   "min len",
			mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "Ab1#", "Ab1#" },
			want:   map[string]string{"password": "password must contain at least 8 characters"},
		},
		{
			name:   "whitespace",
			mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "Ab1# cdef", "Ab1# cdef" },
			want:   map[string]string{"password": "password must not contain whitespace"},
		},
		{
			name:   "all numeric",
			mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "12345678", "12345678" },
			want:   map[string]string{"password": "password cannot be entirely numeric"},
		},
		{
			name:   "complexity",
			mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "abcdefg1", "abcdefg1" },
			want:   map[string]string{"password": pwdComplexityText},
		},
		{
			name:   "similar to email",
			mutate: func(nu *NewUser) { nu.Email, nu.Password, nu.PasswordConfirm = "adalove@niat.test", "Adalove#1", "Adalove#1" },
			want:   map[string]string{"password": "password cannot be similar to user attributes"},
		},
		{
			name:   "too common",
			mutate: func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "P@$$w0rd", "P@$$w0rd" },
			want:   map[string]string{"password": "password is too common"},
		},
		{
			name:   "confirm mismatch",
			mutate: func(nu *NewUser) { nu.PasswordConfirm = "nope" },
			want:   map[string]string{"passwordConfirm": "passwordConfirm must be equal to Password"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := valid
			tt.mutate(&nu)
			err := validate.Struct(nu)
			if len(tt.want) == 0 {
				require.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, messages(err))
		})
	}
}

func TestUserPermissions(t *testing.T) {
	admin := User{Role: RoleAdmin}
	crm := User{Role: RoleCRM, CanAccessCriticalPoints: true}
	instructor := User{Role: RoleInstructor, AssignedTechStacks: []string{"Python", " React "}}

	assert.True(t, admin.MayViewCriticalPoints())
	assert.True(t, admin.MayViewPostInternships())
	assert.True(t, crm.MayViewCriticalPoints())
	assert.False(t, crm.MayViewPostInternships())

	assert.True(t, instructor.IsAssignedTo("python"))
	assert.True(t, instructor.IsAssignedTo("REACT"))
	assert.False(t, instructor.IsAssignedTo("Java"))
	assert.True(t, crm.IsAssignedTo("Java"))

	assert.True(t, instructor.HasAnyRole())
	assert.True(t, instructor.HasAnyRole(RoleAdmin, RoleInstructor))
	assert.False(t, instructor.HasAnyRole(RoleAdmin, RoleContent))
}
