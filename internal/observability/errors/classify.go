// Package errors classifies errors into short, stable names for metric tags and log fields.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/target/mmk-investigations/internal/core"
	apperrors "github.com/target/mmk-investigations/internal/errors"
)

// Classify returns a normalized error class suitable for tagging metrics and summaries.
// Known conditions map to fixed names; anything else is named after the innermost
// concrete error type in snake_case.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, core.ErrInvestigationNotFound), goerrors.Is(err, core.ErrExecutionNotFound):
		return "not_found"
	case goerrors.Is(err, core.ErrInvestigationTerminal), goerrors.Is(err, core.ErrInvalidTransition):
		return "state_conflict"
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
