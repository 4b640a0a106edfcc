package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"collecta/internal/entry/models"
	id "collecta/pkg/domain"
	dErrors "collecta/pkg/domain-errors"
	"collecta/pkg/requestcontext"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[name] = err.Error()
			continue
		}
		body[name] = "ok"
	}
	writeJSON(w, status, body)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, _ *http.Request) {
	cats := h.catalog.Categories()
	resp := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		resp = append(resp, toCategoryResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": resp})
}

func (h *Handler) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	key, ok := h.groupKey(w, r)
	if !ok {
		return
	}
	group, err := h.workflow.Group(r.Context(), key)
	if err != nil {
		h.fail(w, r, "get group", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

func (h *Handler) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	key, ok := h.groupKey(w, r)
	if !ok {
		return
	}
	var req valuesRequest
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.workflow.SaveDraft(r.Context(), key, req.Values)
	if err != nil {
		h.fail(w, r, "save draft", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	key, ok := h.groupKey(w, r)
	if !ok {
		return
	}
	var req valuesRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.workflow.Validate(r.Context(), key.CategoryID, req.Values)
	if err != nil {
		h.fail(w, r, "validate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    result.Valid(),
		"errors":   nonNil(result.Errors),
		"warnings": nonNil(result.Warnings),
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	key, ok := h.groupKey(w, r)
	if !ok {
		return
	}
	group, result, err := h.workflow.Submit(r.Context(), key)
	if err != nil {
		h.fail(w, r, "submit", err)
		return
	}
	resp := toGroupResponse(group)
	resp.Warnings = result.Warnings
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	key, ok := h.groupKey(w, r)
	if !ok {
		return
	}
	group, err := h.workflow.Approve(r.Context(), key)
	if err != nil {
		h.fail(w, r, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	key, ok := h.groupKey(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.workflow.Reject(r.Context(), key, req.Reason)
	if err != nil {
		h.fail(w, r, "reject", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

func (h *Handler) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.sweeper.Run(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "manual sweep finished with errors",
			"failed", report.Failed,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	writeJSON(w, http.StatusOK, toSweepResponse(report, err))
}

func (h *Handler) groupKey(w http.ResponseWriter, r *http.Request) (models.GroupKey, bool) {
	unit, err := id.ParseUnitID(chi.URLParam(r, "unit"))
	if err != nil {
		writeError(w, err)
		return models.GroupKey{}, false
	}
	category, err := id.ParseCategoryID(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, err)
		return models.GroupKey{}, false
	}
	return models.GroupKey{UnitID: unit, CategoryID: category}, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(r.Context()),
		)
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// fail writes err and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := writeError(w, err)
	ctx := r.Context()
	attrs := []any{
		"op", op,
		"status", status,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(ctx),
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed", attrs...)
		return
	}
	h.logger.InfoContext(ctx, "request refused", attrs...)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
