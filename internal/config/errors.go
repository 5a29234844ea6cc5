package config

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// Validation error codes (E200-E299)
const (
	ErrSyntax          = "E200" // file does not parse
	ErrSchema          = "E201" // value violates the schema
	ErrUnknownField    = "E202" // field not in the schema
	ErrNoBuilds        = "E203" // at least one build required
	ErrUnknownBuilder  = "E204" // build references an undeclared builder
	ErrDuplicateName   = "E205" // two builders share a name
	ErrInvalidLimits   = "E206" // log_window must be below max_log_items
	ErrUnsupportedType = "E207" // unknown config file extension
)

// ValidationError is one problem found in a config file.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found in one file. Load reports all
// of them rather than stopping at the first.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.Error()
	}
	return strings.Join(lines, "\n")
}

// AsValidationErrors extracts ValidationErrors from err.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var errs ValidationErrors
	if errors.As(err, &errs) {
		return errs, true
	}
	return nil, false
}

// fromYAML converts a yaml.v3 error. Unknown fields arrive as a
// *yaml.TypeError with one message per field.
func fromYAML(err error) ValidationErrors {
	var typeErr *yaml.TypeError
	if !errors.As(err, &typeErr) {
		return ValidationErrors{{Field: "yaml", Message: err.Error(), Code: ErrSyntax}}
	}

	out := make(ValidationErrors, 0, len(typeErr.Errors))
	for _, msg := range typeErr.Errors {
		code := ErrSchema
		if strings.Contains(msg, "not found in type") {
			code = ErrUnknownField
		}
		line := 0
		fmt.Sscanf(msg, "line %d:", &line)
		out = append(out, ValidationError{Field: "yaml", Message: msg, Code: code, Line: line})
	}
	return out
}

// fromCUE converts a CUE error list, keeping the path of each error and
// its first position inside filename.
func fromCUE(err error, filename, code string) ValidationErrors {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return ValidationErrors{{Field: "cue", Message: err.Error(), Code: code}}
	}

	out := make(ValidationErrors, 0, len(list))
	for _, e := range list {
		field := strings.Join(e.Path(), ".")
		if field == "" {
			field = "cue"
		}
		format, args := e.Msg()
		ve := ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		}
		for _, pos := range cueerrors.Positions(e) {
			if pos.Filename() == filename {
				ve.Line = pos.Line()
				break
			}
		}
		if strings.Contains(ve.Message, "not allowed") {
			ve.Code = ErrUnknownField
		}
		out = append(out, ve)
	}
	return out
}
