package techstack

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/niat-ops/opsboard/core"
)

var (
	itemStatusTag  = "itemstatus"
	itemStatusText = "completion status must be one of: Yet to Start, In Progress, Completed"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(itemStatusTag, itemStatusValidation)
	core.RegisterCustomTranslation(validate, translator, itemStatusTag, itemStatusText)
}

func itemStatusValidation(fl validator.FieldLevel) bool {
	status := fl.Field().String()
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}
