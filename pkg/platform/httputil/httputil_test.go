package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
)

type ambiguous struct{ ids []string }

func (a *ambiguous) Error() string { return "identifiers resolve to " + strings.Join(a.ids, ", ") }
func (a *ambiguous) Unwrap() error { return dErrors.New(dErrors.CodeAmbiguous, "ambiguous") }

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "internal_error", body["error"])
		assert.NotContains(t, body, "error_description")
	})

	t.Run("bad request includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid input"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "bad_request", body["error"])
		assert.Equal(t, "invalid input", body["error_description"])
	})

	t.Run("stale revision is a failed precondition", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeStaleRevision, "instance changed"))
		assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	})

	t.Run("ambiguity lists the colliding instances", func(t *testing.T) {
		id := domain.InstanceID{Space: "alpha", UUID: uuid.New()}
		w := httptest.NewRecorder()
		WriteError(w, &ambiguous{ids: []string{id.String()}})

		assert.Equal(t, http.StatusConflict, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "ambiguous", body["error"])
		assert.Contains(t, body["error_description"], id.String())
	})
}
