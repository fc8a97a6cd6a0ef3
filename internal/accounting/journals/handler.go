package journals

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// UpdateRequest is the PATCH body: header fields plus an optional replacement line set.
type UpdateRequest struct {
	HeaderPatch
	Lines *[]LineInput `json:"lines"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, _, err := scope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter, err := ParseListFilter(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.List(r.Context(), companyID, filter)
	if err != nil {
		h.fail(w, "list journals", err)
		return
	}
	if entries == nil {
		entries = []JournalEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, _, err := scope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := entryID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Get(r.Context(), id, companyID)
	if err != nil {
		h.fail(w, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, actor, err := scope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.CompanyID = companyID
	entry, err := h.service.Create(r.Context(), in, actor)
	if err != nil {
		h.fail(w, "create journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	companyID, actor, err := scope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := entryID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Update(r.Context(), id, companyID, req.HeaderPatch, req.Lines, actor)
	if err != nil {
		h.fail(w, "update journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	companyID, actor, err := scope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := entryID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Cancel(r.Context(), id, companyID, actor)
	if err != nil {
		h.fail(w, "cancel journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	companyID, actor, err := scope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := entryID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ReverseInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	entry, err := h.service.Reverse(r.Context(), id, companyID, in, actor)
	if err != nil {
		h.fail(w, "reverse journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if Outcome(err) == "error" {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func scope(r *http.Request) (int64, internalShared.Actor, error) {
	companyID, ok := internalShared.CompanyFromContext(r.Context())
	if !ok {
		return 0, internalShared.Actor{}, fmt.Errorf("%w: company scope missing", httpx.ErrUnauthorized)
	}
	actor, _ := internalShared.ActorFromContext(r.Context())
	return companyID, actor, nil
}

func entryID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid journal id", httpx.ErrBadRequest)
	}
	return id, nil
}
