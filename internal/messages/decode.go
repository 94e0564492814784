package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	vOnce sync.Once
	valid *validator.Validate
	trans ut.Translator
)

func validate() (*validator.Validate, ut.Translator) {
	vOnce.Do(func() {
		enLoc := en.New()
		trans, _ = ut.New(enLoc, enLoc).GetTranslator("en")

		valid = validator.New(validator.WithRequiredStructEnabled())
		// report json field names
		valid.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(valid, trans)
	})
	return valid, trans
}

// ValidationError lists the fields of a request that failed validation.
type ValidationError struct {
	Type   Type
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return fmt.Sprintf("invalid %s message: %s", e.Type, strings.Join(parts, "; "))
}

// Unwrap makes errors.Is(err, ErrInvalidMessage) hold.
func (e *ValidationError) Unwrap() error { return ErrInvalidMessage }

// Decode parses and validates a request. Every failure wraps
// ErrInvalidMessage.
func Decode(raw []byte) (Message, error) {
	var env struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	mk, ok := newMessage[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, env.Type)
	}
	msg := mk()
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, env.Type, err)
	}
	if err := Validate(msg); err != nil {
		return nil, err
	}
	return deref(msg), nil
}

// Validate checks the fields of a request.
func Validate(msg Message) error {
	return check(msg.Type(), msg)
}

// ValidatePayload checks a payload carried inside a request, such as the
// settings of SET_SETTINGS, with the same rules and error shape.
func ValidatePayload(t Type, v any) error {
	return check(t, v)
}

func check(t Type, v any) error {
	val, tr := validate()
	err := val.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	out := &ValidationError{Type: t, Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = fe.Translate(tr)
	}
	return out
}

// Encode marshals a request with its type tag.
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(msg.Type())
	fields["type"] = tag
	return json.Marshal(fields)
}

// deref turns the decoded *Variant into Variant so handlers can switch on
// value types.
func deref(msg Message) Message {
	return reflect.ValueOf(msg).Elem().Interface().(Message)
}
