package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSentinel = errors.New("sentinel")

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryNoError, CategoryOf(nil))
	assert.Equal(t, CategoryGeneralError, CategoryOf(errors.New("boom")))
	assert.Equal(t, CategoryDataError, CategoryOf(BadRequestError(nil, "bad")))

	wrapped := fmt.Errorf("outer: %w", NotSupportedError(nil, "chain 5"))
	assert.Equal(t, CategoryNotSupported, CategoryOf(wrapped))
	assert.True(t, Is(wrapped, CategoryNotSupported))
	assert.False(t, Is(wrapped, CategoryDataError))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("connection reset"), true},
		{"dependency", DependencyError(nil, "rpc"), true},
		{"timeout", TimeoutError(nil, "rpc"), true},
		{"data", BadRequestError(nil, "nonce"), false},
		{"not supported", NotSupportedError(nil, "chain"), false},
		{"general", GeneralError(nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestServiceError_UnwrapsSentinel(t *testing.T) {
	err := BadRequestError(fmt.Errorf("%w: %q", errSentinel, "x"), "sentinel")
	assert.ErrorIs(t, err, errSentinel)
	assert.Equal(t, `sentinel: "x"`, err.Error())
}
