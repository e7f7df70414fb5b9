// Foundation, campaign and map HTTP handlers.
//
//   - GET    /foundations                 (active foundations)
//   - POST   /foundations                 (administrators)
//   - GET    /foundations/{id}            (public page)
//   - GET    /foundations/{id}/dashboard  (representative or admin)
//   - PUT    /foundations/{id}/location   (representative or admin)
//   - GET    /map                         (public map markers)
//   - GET    /campaigns                   (open campaigns, or ?foundation_id=)
//   - POST   /campaigns
//   - GET    /campaigns/{id}
//   - PUT    /campaigns/{id}
//   - DELETE /campaigns/{id}
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/services"
)

//
// DTOs
//

// FoundationRequest registers a foundation.
type FoundationRequest struct {
	Name        string `json:"name"        binding:"required" example:"Fundación Abrigo"`
	Description string `json:"description" example:"Ropa para familias en Ciudad Bolívar"`
	Address     string `json:"address"     example:"Cl. 60 Sur #18-20, Bogotá"`
}

// FoundationLocationRequest changes a foundation's address.
type FoundationLocationRequest struct {
	Address string `json:"address" binding:"required" example:"Cl. 60 Sur #18-20, Bogotá"`
}

// FoundationLocationResponse reports whether the address could be geocoded.
type FoundationLocationResponse struct {
	Foundation *domain.Foundation `json:"foundation"`
	Located    bool               `json:"located"`
}

// CampaignRequest creates or replaces a campaign. Dates are RFC 3339 or
// YYYY-MM-DD; a date-only end date covers that whole day.
type CampaignRequest struct {
	FoundationID        uint     `json:"foundation_id" example:"3"`
	Name                string   `json:"name"        binding:"required" example:"Abrigos para el invierno"`
	Description         string   `json:"description" example:"Chaquetas y buzos para niños"`
	StartDate           string   `json:"start_date"  binding:"required" example:"2025-06-01"`
	EndDate             string   `json:"end_date"    binding:"required" example:"2025-07-31"`
	Goal                int      `json:"goal"        example:"200"`
	RequestedCategories []string `json:"requested_categories" example:"Chaqueta,Buzo"`
	Active              *bool    `json:"active,omitempty"`
}

//
// Helpers
//

// parseDate accepts RFC 3339 timestamps and bare dates (UTC). With endOfDay,
// a bare date maps to its last instant.
func parseDate(s string, endOfDay bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, true
}

func (r CampaignRequest) input() (services.CampaignInput, error) {
	start, okStart := parseDate(r.StartDate, false)
	end, okEnd := parseDate(r.EndDate, true)
	if !okStart || !okEnd {
		return services.CampaignInput{}, invalidBody("start_date and end_date must be YYYY-MM-DD or RFC 3339")
	}
	return services.CampaignInput{
		FoundationID:        r.FoundationID,
		Name:                r.Name,
		Description:         r.Description,
		StartDate:           start,
		EndDate:             end,
		Goal:                r.Goal,
		RequestedCategories: r.RequestedCategories,
		Active:              r.Active,
	}, nil
}

//
// Foundations
//

// ListFoundations godoc
// @ID          listFoundations
// @Summary     Active foundations
// @Tags        Foundations
// @Produce     json
// @Success     200  {array}  domain.Foundation
// @Router      /foundations [get]
func (h *Handlers) ListFoundations(c *gin.Context) {
	fs, err := h.foundations.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, fs)
}

// CreateFoundation godoc
// @ID          createFoundation
// @Summary     Register a foundation
// @Description Administrators only. The address is geocoded when possible.
// @Tags        Foundations
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.FoundationRequest  true  "Foundation"
// @Success     201   {object}  domain.Foundation
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     403   {object}  handlers.ErrorResponse "Forbidden"
// @Failure     409   {object}  handlers.ErrorResponse "Name taken"
// @Router      /foundations [post]
func (h *Handlers) CreateFoundation(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	var req FoundationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}
	f, err := h.foundations.Create(c.Request.Context(), a, services.FoundationInput{
		Name:        req.Name,
		Description: req.Description,
		Address:     req.Address,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.created(c, f, "foundations", f.ID)
}

// GetFoundation godoc
// @ID          getFoundation
// @Summary     Foundation page
// @Tags        Foundations
// @Produce     json
// @Param       id   path      int  true  "Foundation ID"
// @Success     200  {object}  services.FoundationDetails
// @Failure     404  {object}  handlers.ErrorResponse "Foundation not found"
// @Router      /foundations/{id} [get]
func (h *Handlers) GetFoundation(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	d, err := h.foundations.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// FoundationDashboard godoc
// @ID          foundationDashboard
// @Summary     Foundation dashboard
// @Tags        Foundations
// @Produce     json
// @Param       id   path      int  true  "Foundation ID"
// @Success     200  {object}  services.Dashboard
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse "Foundation not found"
// @Router      /foundations/{id}/dashboard [get]
func (h *Handlers) FoundationDashboard(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	d, err := h.foundations.Dashboard(c.Request.Context(), a, id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// UpdateFoundationLocation godoc
// @ID          updateFoundationLocation
// @Summary     Update a foundation's address
// @Tags        Foundations
// @Accept      json
// @Produce     json
// @Param       id    path      int                                 true  "Foundation ID"
// @Param       body  body      handlers.FoundationLocationRequest  true  "Address"
// @Success     200   {object}  handlers.FoundationLocationResponse
// @Failure     403   {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404   {object}  handlers.ErrorResponse "Foundation not found"
// @Router      /foundations/{id}/location [put]
func (h *Handlers) UpdateFoundationLocation(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req FoundationLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "address is required")
		return
	}
	f, located, err := h.foundations.UpdateLocation(c.Request.Context(), a, id, req.Address)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, FoundationLocationResponse{Foundation: f, Located: located})
}

// MapData godoc
// @ID          mapData
// @Summary     Map markers
// @Description Geocoded active foundations and users who opted in, with the map's default center.
// @Tags        Foundations
// @Produce     json
// @Success     200  {object}  services.MapData
// @Router      /map [get]
func (h *Handlers) MapData(c *gin.Context) {
	m, err := h.foundations.MapData(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

//
// Campaigns
//

// ListCampaigns godoc
// @ID          listCampaigns
// @Summary     Campaigns
// @Description Without foundation_id, the campaigns accepting donations now. With it, all of that foundation's campaigns.
// @Tags        Campaigns
// @Produce     json
// @Param       foundation_id  query     int  false  "Foundation ID"
// @Success     200  {array}   services.CampaignProgress
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Router      /campaigns [get]
func (h *Handlers) ListCampaigns(c *gin.Context) {
	ctx := c.Request.Context()
	if v := c.Query("foundation_id"); v != "" {
		fid, err := strconv.ParseUint(v, 10, 64)
		if err != nil || fid == 0 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "foundation_id must be a positive integer")
			return
		}
		cs, err := h.campaigns.ListForFoundation(ctx, uint(fid))
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, http.StatusOK, cs)
		return
	}
	cs, err := h.campaigns.ListActive(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, cs)
}

// CreateCampaign godoc
// @ID          createCampaign
// @Summary     Open a campaign
// @Description The foundation's representative or an administrator.
// @Tags        Campaigns
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CampaignRequest  true  "Campaign"
// @Success     201   {object}  domain.Campaign
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     403   {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404   {object}  handlers.ErrorResponse "Foundation not found"
// @Router      /campaigns [post]
func (h *Handlers) CreateCampaign(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	var req CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, start_date and end_date are required")
		return
	}
	if req.FoundationID == 0 && a.FoundationID != nil {
		req.FoundationID = *a.FoundationID
	}
	in, err := req.input()
	if err != nil {
		writeError(c, err)
		return
	}
	cp, err := h.campaigns.Create(c.Request.Context(), a, in)
	if err != nil {
		writeError(c, err)
		return
	}
	h.created(c, cp, "campaigns", cp.ID)
}

// GetCampaign godoc
// @ID          getCampaign
// @Summary     Get a campaign
// @Tags        Campaigns
// @Produce     json
// @Param       id   path      int  true  "Campaign ID"
// @Success     200  {object}  services.CampaignProgress
// @Failure     404  {object}  handlers.ErrorResponse "Campaign not found"
// @Router      /campaigns/{id} [get]
func (h *Handlers) GetCampaign(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	cp, err := h.campaigns.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, cp)
}

// UpdateCampaign godoc
// @ID          updateCampaign
// @Summary     Replace a campaign
// @Tags        Campaigns
// @Accept      json
// @Produce     json
// @Param       id    path      int                       true  "Campaign ID"
// @Param       body  body      handlers.CampaignRequest  true  "Campaign"
// @Success     200   {object}  domain.Campaign
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     403   {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404   {object}  handlers.ErrorResponse "Campaign not found"
// @Router      /campaigns/{id} [put]
func (h *Handlers) UpdateCampaign(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, start_date and end_date are required")
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(c, err)
		return
	}
	cp, err := h.campaigns.Update(c.Request.Context(), a, id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, cp)
}

// DeleteCampaign godoc
// @ID          deleteCampaign
// @Summary     Delete a campaign
// @Description Donations already made keep their foundation and lose the campaign link.
// @Tags        Campaigns
// @Param       id  path  int  true  "Campaign ID"
// @Success     204  "Deleted"
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse "Campaign not found"
// @Router      /campaigns/{id} [delete]
func (h *Handlers) DeleteCampaign(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	if err := h.campaigns.Delete(c.Request.Context(), a, id); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}
