package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/payprompt/payprompt-backend/internal/api/httpx"
	"github.com/payprompt/payprompt-backend/internal/auth"
	"github.com/payprompt/payprompt-backend/internal/config"
)

type AuthHandler struct {
	TM  *auth.TokenManager
	Cfg config.Config
}

func NewAuthHandler(tm *auth.TokenManager, cfg config.Config) *AuthHandler {
	return &AuthHandler{TM: tm, Cfg: cfg}
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

// Login verifies the bootstrap operator credential and issues a token pair.
// Full administrator management lives in the portal service.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		httpx.Failed(w, http.StatusBadRequest, "username and password required")
		return
	}
	if req.Username != h.Cfg.AdminUser || h.Cfg.AdminPasswordHash == "" ||
		auth.VerifyPassword(req.Password, h.Cfg.AdminPasswordHash) != nil {
		httpx.Failed(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	access, refresh, exp, err := h.TM.GeneratePair(req.Username)
	if err != nil {
		httpx.Failed(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	})
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.Failed(w, http.StatusBadRequest, "invalid request")
		return
	}
	claims, isRefresh, err := h.TM.Parse(req.RefreshToken)
	if err != nil || !isRefresh {
		httpx.Failed(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	access, refresh, exp, err := h.TM.GeneratePair(claims.Username)
	if err != nil {
		httpx.Failed(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	})
}
