package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"
)

// HandleOAuthStart initiates the authorization-code flow by redirecting the
// operator to the consent page.
func (h *Handlers) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	// generate state
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", 500)
		return
	}
	st := hex.EncodeToString(b)

	authURL, err := h.ctrl.AuthCodeURL(st)
	if err != nil {
		writeError(w, err)
		return
	}
	h.addOAuthState(st, time.Now().Add(10*time.Minute))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleOAuthCallback finishes the code flow: validates state, exchanges the
// code, and stores the tokens.
func (h *Handlers) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		// The provider reports denial via the error parameter
		http.Error(w, "authorization denied: "+errMsg, http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", 400)
		return
	}
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", 400)
		return
	}
	if err := h.ctrl.CompleteAuth(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HandleTokenHandoff accepts an access token obtained out-of-band via the
// implicit flow. DELETE drops the stored credentials instead.
func (h *Handlers) HandleTokenHandoff(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodDelete:
		h.HandleLogout(w, r)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int    `json:"expiresIn"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if err := h.ctrl.AcceptTokenHandoff(r.Context(), body.AccessToken, body.ExpiresIn); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"warning": "no refresh token: the session ends when this access token expires",
	})
}

// HandleAuthStatus reports whether stored credentials exist and when the
// access token expires.
func (h *Handlers) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	authorized, expiry, err := h.ctrl.Authorized(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"authorized": authorized}
	if authorized && !expiry.IsZero() {
		resp["tokenExpiresAt"] = expiry
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleLogout clears the access token and tears down the session. With
// full=1 the refresh token is dropped too, forcing a fresh consent.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logout := h.ctrl.Logout
	if r.URL.Query().Get("full") == "1" {
		logout = h.ctrl.ForgetCredentials
	}
	if err := logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
