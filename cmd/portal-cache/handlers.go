/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigschom/ss-portal/httpserver"
	"github.com/bigschom/ss-portal/httpserver/middleware"
	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/portalapi"
	"github.com/bigschom/ss-portal/restapi"
	"github.com/bigschom/ss-portal/resultcache"
)

const errorDomain = "PortalCache"

const errCodeInvalidRequest = "invalidRequest"

type handlers struct {
	client      *portalapi.Client
	cache       *resultcache.Cache[[]byte]
	logger      log.FieldLogger
	maxBodySize uint64
}

func (h *handlers) routes(r chi.Router) {
	r.Route("/service-requests", func(r chi.Router) {
		r.Get("/", h.listServiceRequests)
		r.Get("/{id}", h.getServiceRequest)
		r.Patch("/{id}/status", h.updateServiceRequestStatus)
	})
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Get("/audit-logs", h.listAuditLogs)
	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", h.cacheStats)
		r.Get("/entries", h.listCacheEntries)
		r.Delete("/entries", h.deleteCacheEntries)
	})
}

func (h *handlers) listServiceRequests(rw http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	limit, err := restapi.ParseQueryInt(r, "limit", 0, portalapi.MaxListLimit)
	if err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, errorDomain, err, logger)
		return
	}
	filter := portalapi.ServiceRequestFilter{
		Status:      portalapi.Status(r.URL.Query().Get("status")),
		ServiceType: portalapi.ServiceType(r.URL.Query().Get("type")),
		Limit:       limit,
	}
	items, err := h.client.ListServiceRequests(r.Context(), filter)
	if err != nil {
		h.respondError(rw, r, err)
		return
	}
	restapi.RespondJSON(rw, map[string]interface{}{"items": items}, logger)
}

func (h *handlers) getServiceRequest(rw http.ResponseWriter, r *http.Request) {
	sr, err := h.client.GetServiceRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(rw, r, err)
		return
	}
	restapi.RespondJSON(rw, sr, h.requestLogger(r))
}

type updateStatusRequest struct {
	Status portalapi.Status `json:"status"`
}

func (h *handlers) updateServiceRequestStatus(rw http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	var req updateStatusRequest
	if err := restapi.DecodeRequestJSON(rw, r, &req, h.maxBodySize); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, errorDomain, err, logger)
		return
	}
	sr, err := h.client.UpdateServiceRequestStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.respondError(rw, r, err)
		return
	}
	restapi.RespondJSON(rw, sr, logger)
}

func (h *handlers) listUsers(rw http.ResponseWriter, r *http.Request) {
	users, err := h.client.ListUsers(r.Context())
	if err != nil {
		h.respondError(rw, r, err)
		return
	}
	restapi.RespondJSON(rw, map[string]interface{}{"items": users}, h.requestLogger(r))
}

func (h *handlers) getUser(rw http.ResponseWriter, r *http.Request) {
	user, err := h.client.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(rw, r, err)
		return
	}
	restapi.RespondJSON(rw, user, h.requestLogger(r))
}

func (h *handlers) listAuditLogs(rw http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	limit, err := restapi.ParseQueryInt(r, "limit", 0, portalapi.MaxListLimit)
	if err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, errorDomain, err, logger)
		return
	}
	logs, err := h.client.ListAuditLogs(r.Context(), portalapi.AuditLogFilter{UserID: r.URL.Query().Get("user_id"), Limit: limit})
	if err != nil {
		h.respondError(rw, r, err)
		return
	}
	restapi.RespondJSON(rw, map[string]interface{}{"items": logs}, logger)
}

func (h *handlers) cacheStats(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, h.cache.Stats(), h.requestLogger(r))
}

type cacheEntry struct {
	Key       string    `json:"key"`
	Fresh     bool      `json:"fresh"`
	Error     string    `json:"error,omitempty"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *handlers) listCacheEntries(rw http.ResponseWriter, r *http.Request) {
	keys := h.cache.Keys(r.URL.Query().Get("prefix"))
	entries := make([]cacheEntry, 0, len(keys))
	for _, key := range keys {
		info, ok := h.cache.Lookup(key)
		if !ok {
			continue
		}
		entry := cacheEntry{Key: key, Fresh: info.Fresh, StoredAt: info.StoredAt, ExpiresAt: info.ExpiresAt}
		if info.Err != nil {
			entry.Error = info.Err.Message
		}
		entries = append(entries, entry)
	}
	restapi.RespondJSON(rw, map[string]interface{}{"items": entries}, h.requestLogger(r))
}

// deleteCacheEntries invalidates one key (?key=), all keys with a prefix (?prefix=) or the whole cache.
func (h *handlers) deleteCacheEntries(rw http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	query := r.URL.Query()
	var removed int
	switch {
	case query.Get("key") != "":
		if h.cache.Invalidate(query.Get("key")) {
			removed = 1
		}
	case query.Get("prefix") != "":
		removed = h.cache.InvalidatePrefix(query.Get("prefix"))
	default:
		removed = h.cache.Len()
		h.cache.Clear()
	}
	logger.Info("cache entries deleted", log.Int("count", removed))
	restapi.RespondJSON(rw, map[string]interface{}{"removed": removed}, logger)
}

func (h *handlers) respondError(rw http.ResponseWriter, r *http.Request, err error) {
	logger := h.requestLogger(r)

	switch {
	case errors.Is(err, portalapi.ErrEmptyID), errors.Is(err, portalapi.ErrInvalidStatus),
		errors.Is(err, portalapi.ErrInvalidType), errors.Is(err, portalapi.ErrInvalidLimit):
		restapi.RespondError(rw, http.StatusBadRequest, restapi.NewError(errorDomain, errCodeInvalidRequest, err.Error()), logger)
		return
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		logger.Warn("request is canceled while waiting for the backend", log.Error(err))
		rw.WriteHeader(httpserver.StatusClientClosedRequest)
		return
	}

	var clientErr *restapi.ClientError
	if !errors.As(err, &clientErr) {
		logger.Error("backend request failed", log.Error(err))
		restapi.RespondError(rw, http.StatusBadGateway,
			restapi.NewError(errorDomain, restapi.ErrCodeBadGateway, restapi.ErrMessageBadGateway), logger)
		return
	}

	// Statuses of the backend are mirrored except for server errors: the gateway itself is fine.
	message := clientErr.RemoteErrorMessage()
	if clientErr.StatusCode >= http.StatusInternalServerError {
		restapi.RespondError(rw, http.StatusBadGateway, restapi.NewError(errorDomain, restapi.ErrCodeBadGateway, message), logger)
		return
	}
	restapi.RespondError(rw, clientErr.StatusCode, restapi.NewErrorForStatus(errorDomain, clientErr.StatusCode, message), logger)
}

func (h *handlers) requestLogger(r *http.Request) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return h.logger
}
