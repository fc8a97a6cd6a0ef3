package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"bad request", BadRequest("company header %q", "x"), http.StatusBadRequest},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"validation", shared.Invalid(shared.ErrTooFewLines, "got %d", 1), http.StatusBadRequest},
		{"unbalanced", &shared.ImbalanceError{Debit: decimal.NewFromInt(2), Credit: decimal.NewFromInt(1)}, http.StatusBadRequest},
		{"not found", fmt.Errorf("entry 4: %w", shared.ErrNotFound), http.StatusNotFound},
		{"reference", &shared.ReferenceError{Kind: "account", ID: 9}, http.StatusNotFound},
		{"persistence", &shared.PersistenceError{Op: "insert", Err: errors.New("dup")}, http.StatusConflict},
		{"busy", fmt.Errorf("%w: key", shared.ErrSequenceBusy), http.StatusServiceUnavailable},
		{"internal", errors.New("driver exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var problem ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			require.Equal(t, tc.status, problem.Status)
		})
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("password=hunter2"))
	require.NotContains(t, rec.Body.String(), "hunter2")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	require.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "a", target.Name)
}
