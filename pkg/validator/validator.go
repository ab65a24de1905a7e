// Package validator provides unified parameter validation for nmtrl.
// It uses validator.v10 library and supports custom validation rules
// for run configuration and CLI input.
package validator

import (
	"fmt"
	"math"
	"net"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/openeeap/nmtrl/pkg/types"
)

// ============================================================================
// Validator Instance
// ============================================================================

var (
	// Global validator instance
	global *Validator
	once   sync.Once

	langCodePattern = regexp.MustCompile(`^[a-z]{2,3}(?:_[A-Za-z]{2,4})?$`)
)

// Validator wraps go-playground validator with custom rules
type Validator struct {
	validator *validator.Validate
}

// ============================================================================
// Validator Initialization
// ============================================================================

// New creates a new validator instance with custom rules
func New() *Validator {
	v := validator.New()

	// Report fields by their configuration key
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		}
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations(v)

	return &Validator{validator: v}
}

// GetValidator returns the global validator instance
func GetValidator() *Validator {
	once.Do(func() {
		global = New()
	})
	return global
}

// ============================================================================
// Validation Methods
// ============================================================================

// Validate validates a struct based on tags
func (v *Validator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return v.formatValidationError(err)
	}
	return nil
}

// ValidateVar validates a single variable
func (v *Validator) ValidateVar(field interface{}, tag string) error {
	if err := v.validator.Var(field, tag); err != nil {
		return v.formatValidationError(err)
	}
	return nil
}

// ============================================================================
// Custom Validation Rules
// ============================================================================

// registerCustomValidations registers all custom validation rules
func registerCustomValidations(v *validator.Validate) {
	_ = v.RegisterValidation("lang", validateLang)
	_ = v.RegisterValidation("probability", validateProbability)
	_ = v.RegisterValidation("reward_metric", validateRewardMetric)
	_ = v.RegisterValidation("ckpt_policy", validateCheckpointPolicy)
	_ = v.RegisterValidation("baseline", validateBaseline)
	_ = v.RegisterValidation("optimizer", validateOptimizer)
	_ = v.RegisterValidation("hostport", validateHostPort)
}

// validateLang validates a language code such as "de" or "zh_CN"
func validateLang(fl validator.FieldLevel) bool {
	return langCodePattern.MatchString(fl.Field().String())
}

// validateProbability validates a float in [0, 1]
func validateProbability(fl validator.FieldLevel) bool {
	p := fl.Field().Float()
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// validateRewardMetric validates a sentence-level reward metric name
func validateRewardMetric(fl validator.FieldLevel) bool {
	return types.MetricKind(strings.ToLower(fl.Field().String())).Valid()
}

// validateCheckpointPolicy validates a checkpoint policy name
func validateCheckpointPolicy(fl validator.FieldLevel) bool {
	return types.CheckpointPolicy(strings.ToLower(fl.Field().String())).Valid()
}

// validateBaseline validates a REINFORCE baseline name
func validateBaseline(fl validator.FieldLevel) bool {
	return types.BaselineKind(strings.ToLower(fl.Field().String())).Valid()
}

// validateOptimizer validates an optimizer name
func validateOptimizer(fl validator.FieldLevel) bool {
	return types.OptimizerKind(strings.ToLower(fl.Field().String())).Valid()
}

// validateHostPort validates "host:port" addresses; empty host is allowed
func validateHostPort(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	return err == nil && port != ""
}

// ============================================================================
// Error Formatting
// ============================================================================

// ValidationError represents a formatted validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag"`
	Value   string `json:"value,omitempty"`
}

// formatValidationError formats validation errors into readable messages
func (v *Validator) formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errs []ValidationError
		for _, e := range validationErrors {
			errs = append(errs, ValidationError{
				Field:   e.Namespace(),
				Message: getErrorMessage(e),
				Tag:     e.Tag(),
				Value:   fmt.Sprintf("%v", e.Value()),
			})
		}
		return &FormattedValidationError{Errors: errs}
	}
	return err
}

// FormattedValidationError contains multiple validation errors
type FormattedValidationError struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements error interface
func (f *FormattedValidationError) Error() string {
	var messages []string
	for _, e := range f.Errors {
		messages = append(messages, e.Message)
	}
	return strings.Join(messages, "; ")
}

// getErrorMessage returns human-readable error message for validation tag
func getErrorMessage(fe validator.FieldError) string {
	field := fe.Namespace()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "dive":
		return fmt.Sprintf("%s contains an invalid element", field)
	case "lang":
		return fmt.Sprintf("%s must be a language code such as \"de\" or \"zh_CN\"", field)
	case "probability":
		return fmt.Sprintf("%s must be a probability in [0, 1]", field)
	case "reward_metric":
		return fmt.Sprintf("%s must be one of: gleu sbleu hit", field)
	case "ckpt_policy":
		return fmt.Sprintf("%s must be one of: keep_all override", field)
	case "baseline":
		return fmt.Sprintf("%s must be one of: greedy none", field)
	case "optimizer":
		return fmt.Sprintf("%s must be one of: sgd adagrad adam", field)
	case "hostport":
		return fmt.Sprintf("%s must be a host:port address", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// ValidateStruct validates s with the shared instance
func ValidateStruct(s interface{}) error {
	return GetValidator().Validate(s)
}

//Personal.AI order the ending
