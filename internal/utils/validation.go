package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
)

// RegisterValidators adds the domain binding tags to gin's validator:
// task_status, task_priority, task_visibility, user_role and project_role.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding engine is not go-playground/validator")
	}
	return registerOn(v)
}

func registerOn(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"task_status":     oneOf(models.TaskStatuses...),
		"task_priority":   oneOf(models.TaskPriorities...),
		"task_visibility": oneOf(models.Visibilities...),
		"user_role":       func(fl validator.FieldLevel) bool { return authz.IsRoleName(fl.Field().String()) },
		"project_role":    func(fl validator.FieldLevel) bool { return authz.IsProjectRoleName(fl.Field().String()) },
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %s: %w", tag, err)
		}
	}
	return nil
}

func oneOf(allowed ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		for _, a := range allowed {
			if value == a {
				return true
			}
		}
		return false
	}
}

// ValidationMessage renders a binding error as "field: rule" pairs. Other
// errors, such as malformed JSON, yield a fixed message.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, strings.ToLower(fe.Field())+": "+rule)
	}
	sort.Strings(parts)
	return "invalid request: " + strings.Join(parts, ", ")
}
