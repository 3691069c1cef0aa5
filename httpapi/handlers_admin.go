package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	jobAuth "github.com/MrEthical07/jobAuth"
	"github.com/MrEthical07/jobAuth/middleware"
)

type lockedResponse struct {
	Accounts []jobAuth.LockedAccount `json:"accounts"`
}

type auditLogsResponse struct {
	Events []jobAuth.AuditEvent `json:"events"`
}

func actorID(r *http.Request) string {
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		return id.UserID
	}
	return ""
}

func (h *handler) listLocked(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.engine.ListLockedAccounts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, lockedResponse{Accounts: accounts})
}

func (h *handler) unlock(w http.ResponseWriter, r *http.Request) {
	var req adminActionRequest
	if !h.rv.decode(w, r, &req) {
		return
	}
	if err := h.engine.UnlockAccount(r.Context(), chi.URLParam(r, "userID"), req.Reason, actorID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Account unlocked."})
}

func (h *handler) forceReset(w http.ResponseWriter, r *http.Request) {
	var req adminActionRequest
	if !h.rv.decode(w, r, &req) {
		return
	}
	if err := h.engine.ForcePasswordReset(r.Context(), chi.URLParam(r, "userID"), req.Reason, actorID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Password reset required; sessions revoked."})
}

func (h *handler) checkSuspicious(w http.ResponseWriter, r *http.Request) {
	var req suspiciousRequest
	if !h.rv.decode(w, r, &req) {
		return
	}
	report, err := h.engine.CheckSuspiciousActivity(r.Context(), chi.URLParam(r, "userID"), req.IPs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

func (h *handler) auditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := auditQueryParams{UserID: q.Get("userId"), EventType: q.Get("eventType")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		params.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		params.Since = t
	}
	if msg := h.rv.check(params); msg != "" {
		writeBadRequest(w, msg)
		return
	}

	events, err := h.engine.GetAuditLogs(r.Context(), jobAuth.AuditQuery{
		UserID:    params.UserID,
		EventType: params.EventType,
		Since:     params.Since,
		Limit:     params.Limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, auditLogsResponse{Events: events})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GetSecurityStatistics(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, stats)
}
