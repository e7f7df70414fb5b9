// Impact and achievement HTTP handlers.
//
//   - GET /impact/calculate   (hypothetical garment; no auth)
//   - GET /impact/me          (caller's completed transactions)
//   - GET /impact/platform    (everyone's completed transactions)
//   - GET /impact/report      (scoped report: user, foundation or global)
//   - GET /achievements       (catalog)
//   - GET /achievements/mine  (caller's badges)
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ecoprenda-backend/internal/services"
)

// CalculateImpact godoc
// @ID          calculateImpact
// @Summary     Impact calculator
// @Description Estimates the CO2, water and energy a garment saves by being reused. weight_kg scales the category defaults; courier adds transport emissions.
// @Tags        Impact
// @Produce     json
// @Param       category   query     string  true   "Category"  example(Camiseta)
// @Param       weight_kg  query     number  false  "Weight in kg"
// @Param       courier    query     string  false  "Transport mode or courier"  example(moto)
// @Success     200  {object}  services.Calculation
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Router      /impact/calculate [get]
func (h *Handlers) CalculateImpact(c *gin.Context) {
	var weight *float64
	if v := strings.TrimSpace(c.Query("weight_kg")); v != "" {
		w, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "weight_kg must be a number")
			return
		}
		weight = &w
	}
	calc, err := h.impact.Calculate(c.Query("category"), weight, c.Query("courier"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, calc)
}

// MyImpact godoc
// @ID          myImpact
// @Summary     My impact
// @Tags        Impact
// @Produce     json
// @Success     200  {object}  services.ImpactSummary
// @Failure     401  {object}  handlers.ErrorResponse "Authentication required"
// @Router      /impact/me [get]
func (h *Handlers) MyImpact(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	sum, err := h.impact.UserTotals(c.Request.Context(), a.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}

// PlatformImpact godoc
// @ID          platformImpact
// @Summary     Platform impact
// @Tags        Impact
// @Produce     json
// @Success     200  {object}  services.ImpactSummary
// @Router      /impact/platform [get]
func (h *Handlers) PlatformImpact(c *gin.Context) {
	sum, err := h.impact.PlatformTotals(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}

// ImpactReport godoc
// @ID          impactReport
// @Summary     Impact report
// @Description user: own report, or any user's for moderators. foundation: its representatives and administrators. global: moderators and administrators.
// @Tags        Impact
// @Produce     json
// @Param       scope  query     string  true   "user, foundation or global"
// @Param       id     query     int     false  "User or foundation ID (defaults to the caller for scope=user)"
// @Success     200  {object}  services.Report
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Router      /impact/report [get]
func (h *Handlers) ImpactReport(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	scope := services.ReportScope(strings.ToLower(strings.TrimSpace(c.Query("scope"))))
	var id uint
	if v := c.Query("id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
			return
		}
		id = uint(n)
	} else if scope == services.ScopeUser {
		id = a.UserID
	}
	rep, err := h.impact.Report(c.Request.Context(), a, scope, id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}

// ListAchievements godoc
// @ID          listAchievements
// @Summary     Badge catalog
// @Tags        Achievements
// @Produce     json
// @Success     200  {array}  domain.Achievement
// @Router      /achievements [get]
func (h *Handlers) ListAchievements(c *gin.Context) {
	cat, err := h.achievements.ListCatalog(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, cat)
}

// MyAchievements godoc
// @ID          myAchievements
// @Summary     My badges
// @Tags        Achievements
// @Produce     json
// @Success     200  {array}   domain.UserAchievement
// @Failure     401  {object}  handlers.ErrorResponse "Authentication required"
// @Router      /achievements/mine [get]
func (h *Handlers) MyAchievements(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	got, err := h.achievements.ListForUser(c.Request.Context(), a.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, got)
}
