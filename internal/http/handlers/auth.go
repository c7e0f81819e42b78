package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/identra/server/internal/auth"
	"github.com/identra/server/internal/middleware"
	"github.com/identra/server/internal/model"
	"github.com/identra/server/internal/notify"
)

// AuthHandler handles login, logout, token verify and refresh endpoints.
type AuthHandler struct {
	authService *auth.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// loginRequest is the request body for POST /auth/login. The email field
// carries either an email or a phone number.
type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	BrowserInfo string `json:"browserInfo"`
	IPAddress   string `json:"ipAddress"`
	OSInfo      string `json:"osInfo"`
	Timezone    string `json:"timezone"`
	Location    string `json:"location"`
	DeviceID    string `json:"deviceId"`
}

type tokenPairResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	User         *userResponse `json:"user,omitempty"`
}

// userResponse is the user projection in API responses
type userResponse struct {
	ID        string  `json:"id"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
}

func newUserResponse(p auth.UserProjection) *userResponse {
	return &userResponse{
		ID:        p.ID.String(),
		Email:     p.Email,
		Phone:     p.Phone,
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	meta := model.DeviceMetadata{
		RemoteAddress: optional(clientIP(r)),
		BrowserInfo:   optional(req.BrowserInfo),
		IPAddress:     optional(req.IPAddress),
		OSInfo:        optional(req.OSInfo),
		Timezone:      optional(req.Timezone),
		Location:      optional(req.Location),
		DeviceID:      optional(req.DeviceID),
	}

	pair, user, err := h.authService.Login(r.Context(), req.Email, req.Password, meta)
	if err != nil {
		log.Printf("login failed for %s: %v", notify.MaskRecipient(req.Email), err)
		respondAuthError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		User:         newUserResponse(user),
	})
}

// refreshRequest is the request body for POST /auth/refresh
type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Refresh = strings.TrimSpace(req.Refresh)
	if req.Refresh == "" {
		respondWithError(w, http.StatusBadRequest, "refresh is required")
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.Refresh)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
	})
}

// verifyRequest is the request body for POST /auth/verify
type verifyRequest struct {
	Token string `json:"token"`
}

// HandleVerify handles POST /auth/verify: an access-token validity check.
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.authService.VerifyAccess(r.Context(), strings.TrimSpace(req.Token)); err != nil {
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"detail": "token is valid"})
}

// HandleLogout handles GET /auth/logout. Logout never fails: unauthenticated
// callers and repeat calls both get a success response.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.GetUser(r.Context()); ok {
		if err := h.authService.Logout(r.Context(), user.ID); err != nil {
			log.Printf("logout for %s: %v", user.ID, err)
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"detail": "Successfully logged out"})
}
