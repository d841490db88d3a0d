// Package validation holds the struct validator used for registry input.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/callbackurl"
)

var (
	// Starts and ends with an alphanumeric, may contain _ . @ - in between.
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.@-]*[a-zA-Z0-9]$`)
	clientIDRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the custom tags registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		mustRegister(v, "username", func(fl validator.FieldLevel) bool {
			return ValidUsername(fl.Field().String())
		})
		mustRegister(v, "client_id", func(fl validator.FieldLevel) bool {
			return ValidClientID(fl.Field().String())
		})
		mustRegister(v, "callback_url", func(fl validator.FieldLevel) bool {
			return callbackurl.ValidatePattern(fl.Field().String()) == nil
		})
		instance = v
	})
	return instance
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic("failed to register validation " + tag + ": " + err.Error())
	}
}

// ValidUsername reports whether s is an acceptable username.
func ValidUsername(s string) bool {
	return usernameRe.MatchString(s)
}

// ValidClientID reports whether s is an acceptable client id.
func ValidClientID(s string) bool {
	return clientIDRe.MatchString(s)
}

// Struct validates s and converts failures into domain.ErrInvalidInput.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}

	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(fields, ", "))
}
