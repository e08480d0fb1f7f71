package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	kerrors "github.com/kubit-go/kubit/errors"
)

var ErrRuleExists = errors.New("validation rule already registered")

// RuleFunc is a context aware validation rule, the context carries the
// request (and its deadline) into rules that hit the database
type RuleFunc func(ctx context.Context, fl validator.FieldLevel) bool

// MessageProvider supplies the message of a failed rule, returning false
// falls back to the default message
type MessageProvider interface {
	Message(field, rule, param string) (string, bool)
}

// MessageProviderFunc adapts a function to a MessageProvider
type MessageProviderFunc func(field, rule, param string) (string, bool)

func (fn MessageProviderFunc) Message(field, rule, param string) (string, bool) {
	return fn(field, rule, param)
}

// FieldError is a single failed rule
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationError carries every failed rule of a Validate call
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (ve *ValidationError) Error() string {
	messages := make([]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		messages = append(messages, fe.Message)
	}
	return "validation failed: " + strings.Join(messages, ", ")
}

// Fields returns the messages grouped by field
func (ve *ValidationError) Fields() map[string][]string {
	ret := make(map[string][]string, len(ve.Errors))
	for _, fe := range ve.Errors {
		ret[fe.Field] = append(ret[fe.Field], fe.Message)
	}
	return ret
}

// Keyed converts the validation error into an unprocessable keyed error
func (ve *ValidationError) Keyed() error {
	return kerrors.SetData(kerrors.WrapUnprocessable(ve), "fields", ve.Fields())
}

// Validator wraps go-playground/validator, providers extend it with rules
// (IE: lucid adds unique and exists)
type Validator struct {
	mu       sync.RWMutex
	validate *validator.Validate
	rules    map[string]struct{}
	messages MessageProvider
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{validate: v, rules: make(map[string]struct{})}
}

// Engine returns the underlying validator
func (v *Validator) Engine() *validator.Validate { return v.validate }

// Extend registers a new rule under tag
func (v *Validator) Extend(tag string, fn RuleFunc) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.rules[tag]; exists {
		return fmt.Errorf("%w: %s", ErrRuleExists, tag)
	}

	if err := v.validate.RegisterValidationCtx(tag, validator.FuncCtx(fn)); err != nil {
		return fmt.Errorf("failed to register rule %s: %w", tag, err)
	}

	v.rules[tag] = struct{}{}
	return nil
}

func (v *Validator) HasRule(tag string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	_, ok := v.rules[tag]
	return ok
}

func (v *Validator) SetMessageProvider(mp MessageProvider) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.messages = mp
}

// Validate validates a struct
func (v *Validator) Validate(ctx context.Context, s any) error {
	return v.convert(v.validate.StructCtx(ctx, s))
}

// Var validates a single value against tag
func (v *Validator) Var(ctx context.Context, field any, tag string) error {
	return v.convert(v.validate.VarCtx(ctx, field, tag))
}

func (v *Validator) convert(err error) error {
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validation error: %w", err)
	}

	v.mu.RLock()
	mp := v.messages
	v.mu.RUnlock()

	ret := &ValidationError{Errors: make([]FieldError, 0, len(validationErrors))}

	for _, fieldErr := range validationErrors {
		fe := FieldError{
			Field: fieldErr.Field(),
			Rule:  fieldErr.Tag(),
			Param: fieldErr.Param(),
		}

		if mp != nil {
			if msg, ok := mp.Message(fe.Field, fe.Rule, fe.Param); ok {
				fe.Message = msg
			}
		}

		if fe.Message == "" {
			fe.Message = defaultMessage(fe)
		}

		ret.Errors = append(ret.Errors, fe)
	}

	return ret
}

func defaultMessage(fe FieldError) string {
	if fe.Param != "" {
		return fmt.Sprintf("%s failed on the %s=%s rule", fe.Field, fe.Rule, fe.Param)
	}
	return fmt.Sprintf("%s failed on the %s rule", fe.Field, fe.Rule)
}
