package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus_MapsEveryKind(t *testing.T) {
	cases := []struct {
		err      *Error
		wantCode int
	}{
		{Validation("bad %s", "input"), 400},
		{Auth("missing token"), 401},
		{Forbidden("versions:deploy"), 403},
		{NotFound("agent %q", "foo"), 404},
		{Conflict("already running"), 409},
		{Runtime(errors.New("boom"), "executor failed"), 500},
		{CircuitOpen("breaker open"), 500},
		{Persistence(errors.New("disk full"), "write failed"), 500},
		{JudgeParse("unparseable score"), 500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.wantCode, tc.err.HTTPStatus(), tc.err.Kind)
	}
}

func TestError_MessageFormatsArgs(t *testing.T) {
	err := NotFound("version %d not found", 7)
	assert.Equal(t, "version 7 not found", err.Message)
	assert.Contains(t, err.Error(), "version 7 not found")
}

func TestError_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Runtime(cause, "dial failed")

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "connection refused")

	var wrapped error = fmt.Errorf("outer: %w", err)
	var apiErr *Error
	assert.True(t, errors.As(wrapped, &apiErr))
	assert.Equal(t, KindRuntime, apiErr.Kind)
}

func TestForbidden_UsesForbiddenKindNotAuth(t *testing.T) {
	err := Forbidden("optimize:run")
	assert.Equal(t, KindForbidden, err.Kind)
	assert.Equal(t, 403, err.HTTPStatus())
}
