package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbellec/optlab/internal/logging"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "message only",
			err:  &Error{Message: "boom"},
			want: "boom",
		},
		{
			name: "full context",
			err: &Error{
				Message:   "solve job failed",
				Component: "server",
				Operation: "knapsack",
				Err:       fmt.Errorf("license not found"),
			},
			want: "server.knapsack: solve job failed: license not found",
		},
		{
			name: "cause only",
			err:  &Error{Err: fmt.Errorf("disk full")},
			want: "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapCapturesStack(t *testing.T) {
	err := Wrap(fmt.Errorf("underlying"), "context").
		WithComponent("server").
		WithOperation("runJob")

	require.NotEmpty(t, err.StackTrace())
	for _, frame := range err.StackTrace() {
		assert.False(t, strings.Contains(frame, "internal/errors"),
			"stack should not include this package's constructors: %s", frame)
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Nil(t, Wrapf(nil, "ignored %d", 1))
}

func TestWrapPreservesExistingError(t *testing.T) {
	inner := New("original").WithComponent("config")
	outer := Wrap(inner, "while loading")

	// Wrapping an *Error updates the message in place, keeping the
	// original stack and context.
	assert.Same(t, inner, outer)
	assert.Equal(t, "config", outer.Component)
	assert.Equal(t, "while loading", outer.Message)
}

func TestUnwrapChain(t *testing.T) {
	sentinel := fmt.Errorf("sentinel")
	err := Wrap(sentinel, "wrapped")

	assert.True(t, stderrors.Is(err, sentinel))
}

func TestErrorf(t *testing.T) {
	err := Errorf("bad value %d", 42)
	assert.Equal(t, "bad value 42", err.Error())
	assert.NotEmpty(t, err.StackTrace())
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := logging.New(logging.ErrorLevel, &strings.Builder{})
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/panic", nil)
	RecoveryMiddleware(logger)(panicking).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
