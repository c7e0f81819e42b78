package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/identra/server/internal/auth"
	"github.com/identra/server/internal/notify"
)

// OTPHandler handles OTP issuance, verification and registration endpoints.
type OTPHandler struct {
	otpEngine   *auth.OTPEngine
	authService *auth.AuthService
}

// NewOTPHandler creates a new OTP handler
func NewOTPHandler(otpEngine *auth.OTPEngine, authService *auth.AuthService) *OTPHandler {
	return &OTPHandler{otpEngine: otpEngine, authService: authService}
}

type issueEmailRequest struct {
	Email string `json:"email"`
}

type issuePhoneRequest struct {
	Phone string `json:"phone"`
}

// issueResponse acknowledges OTP dispatch. DevOTP is set only in dev mode.
type issueResponse struct {
	Message string `json:"message"`
	DevOTP  string `json:"dev_otp,omitempty"`
}

// HandleIssueEmailOTP handles POST /auth/verify-email
func (h *OTPHandler) HandleIssueEmailOTP(w http.ResponseWriter, r *http.Request) {
	var req issueEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondWithError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	devCode, err := h.otpEngine.IssueEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("issue email otp for %s: %v", notify.MaskRecipient(req.Email), err)
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, issueResponse{Message: "OTP sent successfully.", DevOTP: devCode})
}

// HandleIssuePhoneOTP handles POST /auth/verify-phone
func (h *OTPHandler) HandleIssuePhoneOTP(w http.ResponseWriter, r *http.Request) {
	var req issuePhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" {
		respondWithError(w, http.StatusBadRequest, "phone is required")
		return
	}

	devCode, err := h.otpEngine.IssuePhone(r.Context(), req.Phone)
	if err != nil {
		log.Printf("issue phone otp for %s: %v", notify.MaskRecipient(req.Phone), err)
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, issueResponse{Message: "OTP sent successfully.", DevOTP: devCode})
}

// verifyOTPRequest is the request body for POST /auth/verify-otp. Exactly
// one of email/phone must be supplied.
type verifyOTPRequest struct {
	OTP   string `json:"otp"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type verifyOTPResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// HandleVerifyOTP handles POST /auth/verify-otp
func (h *OTPHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.OTP = strings.TrimSpace(req.OTP)
	if req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, "otp is required")
		return
	}

	token, err := h.otpEngine.Verify(r.Context(), req.OTP, strings.TrimSpace(req.Email), strings.TrimSpace(req.Phone))
	if err != nil {
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, verifyOTPResponse{Message: "Verified successfully.", Token: token})
}

// registerRequest is the request body for POST /auth/register. The exchange
// token from verify-otp arrives in the Authorization header.
type registerRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// HandleRegister handles POST /auth/register
func (h *OTPHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := auth.RegisterInput{
		Email:           strings.TrimSpace(req.Email),
		Phone:           strings.TrimSpace(req.Phone),
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
	}

	user, err := h.authService.Register(r.Context(), input, strings.TrimSpace(r.Header.Get("Authorization")))
	if err != nil {
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]*userResponse{"user": newUserResponse(user)})
}
