// User HTTP handlers.
//
// This file exposes account endpoints:
//   - POST /users                              (register a CLIENT account)
//   - GET  /session                            (who am I)
//   - GET  /users/{id}                         (public profile)
//   - PUT  /users/me/location                  (address + map visibility)
//   - PUT  /admin/users/{id}/role              (administrators only)
//   - POST /admin/users/{id}/achievements/{code} (manual grant, administrators only)
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/http/middleware"
	"github.com/tbourn/ecoprenda-backend/internal/services"
)

//
// DTOs
//

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Name  string `json:"name"  binding:"required" example:"Valentina Ríos"`
	Email string `json:"email" binding:"required" example:"valentina@example.com"`
}

// RegisterResponse carries the new user and, when token issuing is
// configured, a bearer token for it.
type RegisterResponse struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

// SessionResponse describes the caller.
type SessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user,omitempty"`
	Role          domain.Role  `json:"role,omitempty"`
	FoundationID  *uint        `json:"foundation_id,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
}

// LocationRequest updates an address and its map visibility.
type LocationRequest struct {
	Address   string `json:"address"     binding:"required" example:"Cra. 7 #40-62, Bogotá"`
	ShowOnMap bool   `json:"show_on_map" example:"true"`
}

// LocationResponse reports whether the address could be geocoded.
type LocationResponse struct {
	User    *domain.User `json:"user"`
	Located bool         `json:"located"`
}

// RoleRequest changes a user's role.
type RoleRequest struct {
	Role         string `json:"role" binding:"required" example:"FOUNDATION_REP"`
	FoundationID *uint  `json:"foundation_id,omitempty" example:"3"`
}

// UnlockResponse reports whether the badge was newly granted.
type UnlockResponse struct {
	Granted bool `json:"granted"`
}

// pathID parses a positive integer path parameter, answering 400 otherwise.
func pathID(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return uint(n), true
}

//
// Handlers
//

// Register godoc
// @ID          register
// @Summary     Register an account
// @Description Creates a CLIENT account. E-mail addresses are unique and case-insensitive.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Account"
// @Success     201   {object}  handlers.RegisterResponse
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     409   {object}  handlers.ErrorResponse "E-mail already registered"
// @Router      /users [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and email are required")
		return
	}
	u, err := h.users.Register(c.Request.Context(), services.RegisterInput{Name: req.Name, Email: req.Email})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := RegisterResponse{User: u}
	if h.tokens != nil {
		tok, exp, err := h.tokens.Issue(u.ID, u.Role)
		if err != nil {
			writeError(c, err)
			return
		}
		resp.Token, resp.ExpiresAt = tok, &exp
	}
	h.created(c, resp, "users", u.ID)
}

// Session godoc
// @ID          session
// @Summary     Current session
// @Description Returns the authenticated user with the role resolved from the store. Anonymous callers get authenticated=false.
// @Tags        Users
// @Produce     json
// @Param       Authorization  header  string  false  "Bearer token"
// @Success     200  {object}  handlers.SessionResponse
// @Failure     401  {object}  handlers.ErrorResponse "Unknown user"
// @Router      /session [get]
func (h *Handlers) Session(c *gin.Context) {
	if middleware.UserIDFrom(c) == 0 {
		ok(c, http.StatusOK, SessionResponse{})
		return
	}
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	p, err := h.users.Profile(c.Request.Context(), a.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := SessionResponse{Authenticated: true, User: &p.User, Role: a.Role, FoundationID: a.FoundationID}
	if exp, has := middleware.TokenExpiryFrom(c); has {
		resp.ExpiresAt = &exp
	}
	ok(c, http.StatusOK, resp)
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Public profile
// @Tags        Users
// @Produce     json
// @Param       id   path      int  true  "User ID"
// @Success     200  {object}  services.Profile
// @Failure     404  {object}  handlers.ErrorResponse "User not found"
// @Router      /users/{id} [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	p, err := h.users.Profile(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdateMyLocation godoc
// @ID          updateMyLocation
// @Summary     Update my location
// @Description Stores the caller's address. Geocoding is best-effort; located=false means no coordinates were found.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LocationRequest  true  "Location"
// @Success     200   {object}  handlers.LocationResponse
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse "Authentication required"
// @Router      /users/me/location [put]
func (h *Handlers) UpdateMyLocation(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "address is required")
		return
	}
	u, located, err := h.users.UpdateLocation(c.Request.Context(), a, req.Address, req.ShowOnMap)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, LocationResponse{User: u, Located: located})
}

// SetRole godoc
// @ID          setRole
// @Summary     Change a user's role
// @Description FOUNDATION_REP requires foundation_id. Administrators only.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       id    path      int                   true  "User ID"
// @Param       body  body      handlers.RoleRequest  true  "Role"
// @Success     200   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     403   {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404   {object}  handlers.ErrorResponse "User or foundation not found"
// @Router      /admin/users/{id}/role [put]
func (h *Handlers) SetRole(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "role is required")
		return
	}
	role := domain.Role(strings.ToUpper(strings.TrimSpace(req.Role)))
	u, err := h.users.SetRole(c.Request.Context(), a, id, role, req.FoundationID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UnlockAchievement godoc
// @ID          unlockAchievement
// @Summary     Grant a badge manually
// @Description Idempotent: granted=false when the user already holds it. Administrators only.
// @Tags        Admin
// @Produce     json
// @Param       id    path      int     true  "User ID"
// @Param       code  path      string  true  "Achievement code"  example(DONOR)
// @Success     200   {object}  handlers.UnlockResponse
// @Failure     403   {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404   {object}  handlers.ErrorResponse "User or achievement not found"
// @Router      /admin/users/{id}/achievements/{code} [post]
func (h *Handlers) UnlockAchievement(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	code := domain.AchievementCode(strings.ToUpper(strings.TrimSpace(c.Param("code"))))
	granted, err := h.achievements.Unlock(c.Request.Context(), a, id, code)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, UnlockResponse{Granted: granted})
}
