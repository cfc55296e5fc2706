package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(cause, CodeInternal, "failed to persist")

	t.Run("wrapped cause stays reachable", func(t *testing.T) {
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "failed to persist: disk on fire", err.Error())
	})

	t.Run("HasCode walks nested coded errors", func(t *testing.T) {
		outer := Wrap(New(CodeStaleRevision, "revision moved"), CodeInternal, "release failed")
		assert.True(t, HasCode(outer, CodeStaleRevision))
		assert.True(t, Is(outer, CodeInternal))
		assert.False(t, Is(outer, CodeStaleRevision))
	})

	t.Run("fmt wrapping is transparent", func(t *testing.T) {
		wrapped := fmt.Errorf("context: %w", New(CodeForbidden, "no"))
		assert.Equal(t, CodeForbidden, CodeOf(wrapped))
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(cause))
		assert.False(t, HasCode(cause, CodeInternal))
	})
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeUnauthorized:  http.StatusUnauthorized,
		CodeForbidden:     http.StatusForbidden,
		CodeNotFound:      http.StatusNotFound,
		CodeAmbiguous:     http.StatusConflict,
		CodeInvalidState:  http.StatusConflict,
		CodeStaleRevision: http.StatusPreconditionFailed,
		CodeInternal:      http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), string(code))
	}
}
