package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/identra/server/internal/middleware"
	"github.com/identra/server/internal/model"
	"github.com/identra/server/internal/policy"
	"github.com/identra/server/internal/repo"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// ProfileHandler serves the authenticated user's profile and login activity.
type ProfileHandler struct {
	users     repo.UserRepo
	sessions  repo.SessionRepo
	evaluator policy.Evaluator
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(users repo.UserRepo, sessions repo.SessionRepo, evaluator policy.Evaluator) *ProfileHandler {
	return &ProfileHandler{users: users, sessions: sessions, evaluator: evaluator}
}

type profileResponse struct {
	ID             string  `json:"id"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	ProfilePicture *string `json:"profile_picture"`
}

// HandleProfile handles GET /profile
func (h *ProfileHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, profileResponse{
		ID:             user.ID.String(),
		Email:          user.Email,
		Phone:          user.Phone,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		ProfilePicture: user.ProfilePicture,
	})
}

type updatePictureRequest struct {
	ProfilePicture string `json:"profile_picture"`
}

// HandleUpdatePicture handles PATCH|PUT /profile/picture. The capability for
// the Update verb on the user resource is checked via the policy table.
func (h *ProfileHandler) HandleUpdatePicture(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	capability := policy.Capability(policy.ActionForMethod(r.Method), "user")
	if !h.evaluator.HasCapability(user, capability) {
		respondWithError(w, http.StatusForbidden, "permission denied")
		return
	}

	var req updatePictureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ProfilePicture = strings.TrimSpace(req.ProfilePicture)
	if req.ProfilePicture == "" {
		respondWithError(w, http.StatusBadRequest, "profile_picture is required")
		return
	}

	if err := h.users.UpdateProfilePicture(r.Context(), user.ID, req.ProfilePicture); err != nil {
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"profile_picture": req.ProfilePicture})
}

type sessionResponse struct {
	ID          string  `json:"id"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	LoginMethod string  `json:"login_method"`
	BrowserInfo *string `json:"browser_info"`
	IPAddress   *string `json:"ip_address"`
	OSInfo      *string `json:"os_info"`
	Timezone    *string `json:"timezone"`
	Location    *string `json:"location"`
	DeviceID    *string `json:"device_id"`
}

type recentActivityResponse struct {
	Sessions            []sessionResponse `json:"sessions"`
	DistinctDeviceCount int               `json:"distinct_device_count"`
	FirstLogin          *string           `json:"first_login"`
	Limit               int               `json:"limit"`
	Offset              int               `json:"offset"`
}

// HandleRecentActivity handles GET /profile/recent-activity: a page of the
// user's sessions, newest first, with whole-history summary fields.
func (h *ProfileHandler) HandleRecentActivity(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := queryInt(r, "limit", defaultActivityLimit)
	if limit <= 0 || limit > maxActivityLimit {
		limit = defaultActivityLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	sessions, err := h.sessions.ListByUser(r.Context(), user.ID, limit, offset)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	deviceCount, err := h.sessions.DistinctDeviceCount(r.Context(), user.ID)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	firstLogin, err := h.sessions.FirstLogin(r.Context(), user.ID)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	resp := recentActivityResponse{
		Sessions:            make([]sessionResponse, 0, len(sessions)),
		DistinctDeviceCount: deviceCount,
		Limit:               limit,
		Offset:              offset,
	}
	if firstLogin != nil {
		s := firstLogin.Format(time.RFC3339)
		resp.FirstLogin = &s
	}
	for _, session := range sessions {
		resp.Sessions = append(resp.Sessions, newSessionResponse(session))
	}
	respondJSON(w, http.StatusOK, resp)
}

func newSessionResponse(s model.Session) sessionResponse {
	return sessionResponse{
		ID:          s.ID.String(),
		StartTime:   s.StartTime.Format(time.RFC3339),
		EndTime:     s.EndTime.Format(time.RFC3339),
		LoginMethod: s.LoginMethod.String(),
		BrowserInfo: s.BrowserInfo,
		IPAddress:   s.IPAddress,
		OSInfo:      s.OSInfo,
		Timezone:    s.Timezone,
		Location:    s.Location,
		DeviceID:    s.DeviceID,
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
