package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/roadmap"
	"github.com/niat-ops/opsboard/core/techstack"
	"github.com/niat-ops/opsboard/core/user"
)

// NewValidator returns a validator with the rules of every domain package registered.
func NewValidator() *validator.Validate {
	validate, _ := NewTranslatedValidator()
	return validate
}

// NewTranslatedValidator is NewValidator plus the translator its messages are registered on.
func NewTranslatedValidator() (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	techstack.InitValidators(validate, translator)
	roadmap.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:                 uuid.NewString(),
		Name:               name,
		Email:              email,
		Role:               role,
		AssignedTechStacks: []string{},
		IsActive:           isActive,
		CreatedAt:          tstamp,
		UpdatedAt:          tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateInstructor creates an active instructor assigned to stacks.
func CreateInstructor(t *testing.T, repo user.Repository, name, email string, stacks ...string) user.User {
	usr := CreateUser(t, repo, name, email, "", user.RoleInstructor, true)
	usr.AssignedTechStacks = stacks
	usr, err := repo.UpdateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateInstructor() failed: %v", err)
	}
	return usr
}

// CreateTechStack creates a stack with one item per topic.
func CreateTechStack(t *testing.T, svc techstack.Service, name string, topics ...string) techstack.TechStack {
	data := techstack.NewTechStack{Name: name}
	for _, topic := range topics {
		data.RoadmapItems = append(data.RoadmapItems, techstack.NewRoadmapItem{Topic: topic})
	}
	ts, err := svc.Create(context.Background(), "", data)
	if err != nil {
		t.Fatalf("CreateTechStack() failed: %v", err)
	}
	return ts
}
