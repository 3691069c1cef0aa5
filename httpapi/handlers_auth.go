package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	jobAuth "github.com/MrEthical07/jobAuth"
	"github.com/MrEthical07/jobAuth/middleware"
	"github.com/MrEthical07/jobAuth/token"
)

const (
	csrfHeader      = "X-CSRF-Token"
	oauthStateName  = "ja_oauth_state"
	checkInboxReply = "If the address belongs to an account, an email is on its way."
)

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if jobAuth.KindOf(err) == jobAuth.KindInternal {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	middleware.WriteError(w, err)
}

func (h *handler) writeSession(w http.ResponseWriter, status int, resp *jobAuth.AuthResponse) {
	h.cookie.set(w, resp.RefreshToken, resp.ExpiresAt, h.now())
	middleware.WriteJSON(w, status, jobAuth.ToSafeAuthResponse(resp))
}

// csrfFrom prefers the header and falls back to a JSON body field.
func (h *handler) csrfFrom(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(csrfHeader)); v != "" {
		return v
	}
	var body csrfRequest
	if r.Body != nil && r.ContentLength != 0 {
		_ = decodeLoose(r, &body)
	}
	return body.CSRFToken
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.rv.decode(w, r, &req) {
		return
	}
	resp, err := h.engine.Register(r.Context(), jobAuth.RegisterRequest{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeSession(w, http.StatusCreated, resp)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.rv.decode(w, r, &req) {
		return
	}
	resp, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeSession(w, http.StatusOK, resp)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	resp, err := h.engine.Refresh(r.Context(), h.cookie.read(r), h.csrfFrom(r))
	if err != nil {
		if errors.Is(err, jobAuth.ErrInvalidSession) {
			h.cookie.clear(w)
		}
		h.fail(w, r, err)
		return
	}
	h.cookie.set(w, resp.RefreshToken, resp.ExpiresAt, h.now())
	middleware.WriteJSON(w, http.StatusOK, jobAuth.ToSafeRefreshResponse(resp))
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Logout(r.Context(), h.cookie.read(r), h.csrfFrom(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.cookie.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) bootstrapCSRF(w http.ResponseWriter, r *http.Request) {
	csrf, err := h.engine.BootstrapCSRF(r.Context(), h.cookie.read(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var out csrfResponse
	if csrf != "" {
		out.CSRFToken = &csrf
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.rv.decode(w, r, &req) {
		return
	}
	if err := h.engine.VerifyEmail(r.Context(), req.Token); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Email verified."})
}

func (h *handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.rv.decode(w, r, &req) {
		return
	}
	if err := h.engine.ResendVerification(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, messageResponse{Message: checkInboxReply})
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.rv.decode(w, r, &req) {
		return
	}
	if err := h.engine.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, messageResponse{Message: checkInboxReply})
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.rv.decode(w, r, &req) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	h.cookie.clear(w)
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Password updated. Please sign in again."})
}

func (h *handler) oauthStart(w http.ResponseWriter, r *http.Request) {
	state, err := token.Generate(token.CSRFBytes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	target, err := h.engine.AuthCodeURL(chi.URLParam(r, "provider"), state)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateName,
		Value:    state,
		Path:     "/auth/oauth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	st, err := r.Cookie(oauthStateName)
	if err != nil || st.Value == "" || st.Value != r.URL.Query().Get("state") {
		h.fail(w, r, jobAuth.ErrInvalidCredentials)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateName, Path: "/auth/oauth", MaxAge: -1})

	resp, err := h.engine.LoginWithProvider(r.Context(), chi.URLParam(r, "provider"), r.URL.Query().Get("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.opts.OAuthRedirect != "" {
		h.cookie.set(w, resp.RefreshToken, resp.ExpiresAt, h.now())
		http.Redirect(w, r, h.opts.OAuthRedirect, http.StatusFound)
		return
	}
	h.writeSession(w, http.StatusOK, resp)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	u, err := h.engine.GetUser(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, u)
}
