// Package errors derives metric-friendly labels from Go errors.
package errors

import (
	stderrors "errors"
	"reflect"
	"strings"
)

// Classify reduces an error to a low-cardinality label for metric tags.
// The label is the innermost wrapped error's concrete type, lowercased
// with package qualifiers flattened, e.g. "pgconn_pgerror".
func Classify(err error) string {
	if err == nil {
		return ""
	}

	for inner := stderrors.Unwrap(err); inner != nil; inner = stderrors.Unwrap(err) {
		err = inner
	}

	typ := reflect.TypeOf(err)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil {
		return "unknown"
	}

	label := strings.NewReplacer("*", "", ".", "_").Replace(typ.String())
	label = strings.ToLower(label)
	if label == "" {
		return "unknown"
	}
	return label
}
