// Package httpapi exposes the application lifecycle REST API.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/halden-labs/application_layer/internal/app"
	"github.com/halden-labs/application_layer/internal/app/services/applications"
	"github.com/halden-labs/application_layer/internal/errors"
	"github.com/halden-labs/application_layer/internal/httputil"
	"github.com/halden-labs/application_layer/internal/logging"
)

const defaultListLimit = 20

var timeNow = time.Now

// Options configures the HTTP handler.
type Options struct {
	AuditMax  int
	AuditFile string
}

// handler bundles the HTTP endpoints for the lifecycle coordinator.
type handler struct {
	app   *app.Application
	audit *auditLog
}

// NewHandler returns a mux exposing the core REST API plus the internal
// cascade and audit endpoints.
func NewHandler(application *app.Application, opts Options) (http.Handler, error) {
	sink, err := newFileAuditSink(opts.AuditFile)
	if err != nil {
		return nil, err
	}
	var auditSinkIface auditSink
	if sink != nil {
		auditSinkIface = sink
	}

	h := &handler{
		app:   application,
		audit: newAuditLog(opts.AuditMax, auditSinkIface),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/applications", h.applications)
	mux.HandleFunc("/applications/", h.applicationResources)
	mux.HandleFunc("/internal/applicants/", h.cascadeByApplicant)
	mux.HandleFunc("/internal/products/", h.cascadeByProduct)
	mux.HandleFunc("/admin/audit", h.auditEntries)
	return mux, nil
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) applications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			ApplicantID string `json:"applicant_id"`
			ProductID   string `json:"product_id"`
			Documents   []struct {
				FileName    string `json:"file_name"`
				ContentType string `json:"content_type"`
				StoragePath string `json:"storage_path"`
			} `json:"documents"`
			Tags []string `json:"tags"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, errors.BadRequest("malformed request body"))
			return
		}

		req := applications.CreateRequest{
			ApplicantID: payload.ApplicantID,
			ProductID:   payload.ProductID,
			TagNames:    payload.Tags,
		}
		for _, doc := range payload.Documents {
			req.Documents = append(req.Documents, applications.DocumentInput{
				FileName:    doc.FileName,
				ContentType: doc.ContentType,
				StoragePath: doc.StoragePath,
			})
		}

		created, err := h.app.Applications.Create(r.Context(), req)
		if err != nil {
			h.record(r, "create", created.ID, statusOf(err))
			writeError(w, err)
			return
		}
		h.record(r, "create", created.ID, http.StatusCreated)
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, errors.BadRequest("limit must be an integer"))
				return
			}
			limit = parsed
		}

		page, err := h.app.Applications.List(r.Context(), r.URL.Query().Get("cursor"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"items":       page.Items,
			"next_cursor": page.NextCursor,
		})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) applicationResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/applications"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := parts[0]
	actorID := logging.GetUserID(r.Context())

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			appRecord, err := h.app.Applications.Get(r.Context(), id, actorID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, appRecord)
		case http.MethodDelete:
			if err := h.app.Applications.Delete(r.Context(), id, actorID); err != nil {
				h.record(r, "delete", id, statusOf(err))
				writeError(w, err)
				return
			}
			h.record(r, "delete", id, http.StatusNoContent)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "status":
		h.applicationStatus(w, r, id, actorID)
	case "tags":
		h.applicationTags(w, r, id, actorID)
	case "history":
		h.applicationHistory(w, r, id, actorID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) applicationStatus(w http.ResponseWriter, r *http.Request, id, actorID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.BadRequest("malformed request body"))
		return
	}

	updated, err := h.app.Applications.ChangeStatus(r.Context(), id, payload.Status, actorID)
	if err != nil {
		h.record(r, "change_status", id, statusOf(err))
		writeError(w, err)
		return
	}
	h.record(r, "change_status", id, http.StatusOK)
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) applicationTags(w http.ResponseWriter, r *http.Request, id, actorID string) {
	var payload struct {
		Names []string `json:"names"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.BadRequest("malformed request body"))
		return
	}

	switch r.Method {
	case http.MethodPost:
		updated, err := h.app.Applications.AttachTags(r.Context(), id, payload.Names, actorID)
		if err != nil {
			h.record(r, "attach_tags", id, statusOf(err))
			writeError(w, err)
			return
		}
		h.record(r, "attach_tags", id, http.StatusOK)
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		updated, err := h.app.Applications.RemoveTags(r.Context(), id, payload.Names, actorID)
		if err != nil {
			h.record(r, "remove_tags", id, statusOf(err))
			writeError(w, err)
			return
		}
		h.record(r, "remove_tags", id, http.StatusOK)
		writeJSON(w, http.StatusOK, updated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) applicationHistory(w http.ResponseWriter, r *http.Request, id, actorID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	history, err := h.app.Applications.ListHistory(r.Context(), id, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// cascadeByApplicant handles DELETE /internal/applicants/{id}/applications.
// Reachable only through the service-auth middleware; not actor-gated.
func (h *handler) cascadeByApplicant(w http.ResponseWriter, r *http.Request) {
	id, ok := internalCascadeID(r, "/internal/applicants/")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	result, err := h.app.Applications.DeleteAllByApplicant(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.record(r, "delete_all_by_applicant", "", http.StatusOK)
	writeJSON(w, http.StatusOK, result)
}

// cascadeByProduct handles DELETE /internal/products/{id}/applications.
func (h *handler) cascadeByProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := internalCascadeID(r, "/internal/products/")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	result, err := h.app.Applications.DeleteAllByProduct(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.record(r, "delete_all_by_product", "", http.StatusOK)
	writeJSON(w, http.StatusOK, result)
}

func internalCascadeID(r *http.Request, prefix string) (string, bool) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "applications" {
		return "", false
	}
	return parts[0], true
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func (h *handler) record(r *http.Request, operation, applicationID string, status int) {
	h.audit.add(auditEntry{
		Time:          timeNow(),
		Actor:         logging.GetUserID(r.Context()),
		Role:          logging.GetRole(r.Context()),
		Operation:     operation,
		ApplicationID: applicationID,
		Status:        status,
		RemoteAddr:    r.RemoteAddr,
	})
}

func statusOf(err error) int {
	if svcErr := errors.GetServiceError(err); svcErr != nil {
		return svcErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("internal error", err)
	}
	httputil.WriteErrorResponse(w, nil, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
}
