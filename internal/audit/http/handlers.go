package audithttp

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
	exportPageSize   = 50
	maxExportRows    = 5000
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

// Handler menangani permintaan audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters.PageSize = exportPageSize
	filters.Page = 1

	var rows []audit.Record
	for len(rows) < maxExportRows {
		result, err := h.service.Timeline(r.Context(), filters)
		if err != nil {
			h.logger.Error("export audit timeline", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		rows = append(rows, result.Rows...)
		if !result.Paging.HasNext {
			break
		}
		filters.Page = result.Paging.NextPage
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	out := csv.NewWriter(w)
	_ = out.Write([]string{"at", "actor_id", "actor_name", "module", "kind", "table", "record_id", "success", "error"})
	for _, rec := range rows {
		_ = out.Write([]string{
			rec.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(rec.ActorID, 10),
			rec.ActorName,
			rec.Module,
			string(rec.Kind),
			rec.Table,
			strconv.FormatInt(rec.RecordID, 10),
			strconv.FormatBool(rec.Success),
			rec.Error,
		})
	}
	out.Flush()
	if err := out.Error(); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		return audit.TimelineFilters{}, httpx.ErrUnauthorized
	}
	query := r.URL.Query()
	now := h.now().UTC()

	toTime := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return audit.TimelineFilters{}, badRequest("to")
		}
		toTime = parsed.AddDate(0, 0, 1)
	}
	fromTime := toTime.Add(-defaultDateRange)
	if v := strings.TrimSpace(query.Get("from")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return audit.TimelineFilters{}, badRequest("from")
		}
		fromTime = parsed
	}
	if !fromTime.Before(toTime) || toTime.Sub(fromTime) > maxDateRange {
		return audit.TimelineFilters{}, badRequest("range")
	}

	filters := audit.TimelineFilters{
		CompanyID: companyID,
		From:      fromTime,
		To:        toTime,
		Module:    strings.TrimSpace(query.Get("module")),
		Table:     strings.TrimSpace(query.Get("table")),
	}
	var err error
	if filters.RecordID, err = positive(query.Get("record_id"), "record_id"); err != nil {
		return audit.TimelineFilters{}, err
	}
	page, err := positive(query.Get("page"), "page")
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	size, err := positive(query.Get("page_size"), "page_size")
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	filters.Page, filters.PageSize = int(page), int(size)
	return filters, nil
}

func positive(raw, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, badRequest(field)
	}
	return v, nil
}

func badRequest(field string) error {
	return httpx.BadRequest("invalid %s", field)
}
