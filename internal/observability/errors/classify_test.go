package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/zapply/ingest-api/internal/errors"
)

type timeoutError struct{}

func (timeoutError) Error() string { return "deadline exceeded" }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "stdlib errorString", err: goerrors.New("boom"), want: "errors_errorstring"},
		{name: "custom type", err: timeoutError{}, want: "errors_timeouterror"},
		{name: "pointer receiver unwrapped", err: &timeoutError{}, want: "errors_timeouterror"},
		{name: "app error", err: apperrors.NotFound("run"), want: "errors_apperror"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassifyUnwrapsToInnermost(t *testing.T) {
	t.Parallel()

	inner := timeoutError{}
	wrapped := fmt.Errorf("scrape remotive: %w", fmt.Errorf("http: %w", inner))

	assert.Equal(t, "errors_timeouterror", Classify(wrapped))
}
