package roadmap

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/niat-ops/opsboard/core"
)

var (
	contentTag    = "roadmapcontent"
	contentText   = "provide a role with at least one tech stack, or a list of roles"
	roleTitleTag  = "roletitle"
	roleTitleText = "every role needs a title and at least one tech stack"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(newRoadmapStructLevelValidation, NewRoadmap{})
	validate.RegisterStructValidation(updateRoadmapStructLevelValidation, UpdateRoadmap{})
	core.RegisterCustomTranslation(validate, translator, contentTag, contentText)
	core.RegisterCustomTranslation(validate, translator, roleTitleTag, roleTitleText)
}

func newRoadmapStructLevelValidation(sl validator.StructLevel) {
	nr := sl.Current().Interface().(NewRoadmap)
	validateContent(sl, nr.Role, nr.TechStacks, nr.Roles, true)
}

func updateRoadmapStructLevelValidation(sl validator.StructLevel) {
	ur := sl.Current().Interface().(UpdateRoadmap)
	if !ur.HasContent() {
		return
	}
	validateContent(sl, ur.Role, ur.TechStacks, ur.Roles, false)
}

func validateContent(sl validator.StructLevel, role string, techStacks []TechStackRef, roles []RoleContent, required bool) {
	if len(roles) > 0 {
		for _, r := range roles {
			if r.Title == "" || len(r.TechStacks) == 0 {
				sl.ReportError(roles, "roles", "Roles", roleTitleTag, "")
				return
			}
		}
		return
	}
	if role == "" && !required && len(techStacks) == 0 {
		return
	}
	if role == "" {
		sl.ReportError(role, "role", "Role", contentTag, "")
		return
	}
	if len(techStacks) == 0 {
		sl.ReportError(techStacks, "techStacks", "TechStacks", contentTag, "")
	}
}
