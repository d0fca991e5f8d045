package service

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// portalEmailPattern accepts the simple local@domain.tld shape used by the portal forms.
var portalEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NewValidator returns a validator with the portal specific tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	RegisterPortalValidators(v)
	return v
}

// RegisterPortalValidators adds the portal_email tag to v.
func RegisterPortalValidators(v *validator.Validate) {
	_ = v.RegisterValidation("portal_email", func(fl validator.FieldLevel) bool {
		return IsPortalEmail(fl.Field().String())
	})
}

// IsPortalEmail reports whether value looks like local@domain.tld.
func IsPortalEmail(value string) bool {
	return portalEmailPattern.MatchString(strings.TrimSpace(value))
}
