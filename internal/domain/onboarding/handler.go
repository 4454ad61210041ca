package onboarding

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onboard/onboard/internal/domain/assessment"
	"github.com/onboard/onboard/internal/domain/catalog"
	"github.com/onboard/onboard/internal/platform/auth"
	"github.com/onboard/onboard/internal/platform/results"
	"github.com/onboard/onboard/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Assessments – patients run their own, clinicians may act for them
	sessions := api.Group("/assessments", auth.RequireRole(auth.RolePatient, auth.RoleClinician))
	sessions.POST("", h.Start)
	sessions.GET("/:id", h.GetSession)
	sessions.DELETE("/:id", h.Abandon)
	sessions.POST("/:id/answers", h.SubmitAnswer)
	sessions.GET("/:id/result", h.GetResult)

	// Results – clinicians list, owners read their own
	res := api.Group("/assessment-results")
	res.GET("", h.ListResults, auth.RequireRole(auth.RoleClinician))
	res.GET("/:id", h.GetResult, auth.RequireRole(auth.RolePatient, auth.RoleClinician))
}

func (h *Handler) Start(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	caller := auth.UserIDFromContext(ctx)
	if req.UserID == "" {
		req.UserID = caller
	}
	if req.UserID != caller && !auth.HasRole(ctx, auth.RoleClinician) {
		return echo.NewHTTPError(http.StatusForbidden, "cannot start an assessment for another user")
	}

	out, err := h.svc.Start(ctx, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) SubmitAnswer(c echo.Context) error {
	id := c.Param("id")
	if err := h.authorize(c, id); err != nil {
		return err
	}
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.QuestionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question_id is required")
	}

	step, err := h.svc.SubmitAnswer(c.Request().Context(), id, req.QuestionID, req.Value)
	var ie *assessment.InputError
	if errors.As(err, &ie) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":       ie.Reason,
			"question_id": ie.QuestionID,
			"step":        step,
		})
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, step)
}

func (h *Handler) GetSession(c echo.Context) error {
	id := c.Param("id")
	if err := h.authorize(c, id); err != nil {
		return err
	}
	st, err := h.svc.Snapshot(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Abandon(c echo.Context) error {
	id := c.Param("id")
	if err := h.authorize(c, id); err != nil {
		return err
	}
	if err := h.svc.Abandon(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetResult(c echo.Context) error {
	ctx := c.Request().Context()
	res, err := h.svc.Result(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if res.UserID != auth.UserIDFromContext(ctx) && !auth.HasRole(ctx, auth.RoleClinician) {
		return echo.NewHTTPError(http.StatusNotFound, "assessment result not found")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListResults(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := results.Filter{
		UserID:    c.QueryParam("user_id"),
		Tier:      c.QueryParam("tier"),
		PathwayID: c.QueryParam("pathway_id"),
	}
	if f.Tier != "" && catalog.Tier(f.Tier).Rank() < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown tier "+f.Tier)
	}
	items, total, err := h.svc.ListResults(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// authorize admits the session owner and clinicians. Other callers get 404
// so session ids cannot be probed.
func (h *Handler) authorize(c echo.Context, sessionID string) error {
	ctx := c.Request().Context()
	owner, err := h.svc.Owner(ctx, sessionID)
	if err != nil {
		return httpError(err)
	}
	if owner != auth.UserIDFromContext(ctx) && !auth.HasRole(ctx, auth.RoleClinician) {
		return echo.NewHTTPError(http.StatusNotFound, "assessment session not found")
	}
	return nil
}

func httpError(err error) error {
	var ce *assessment.ConfigError
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, results.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotComplete), errors.Is(err, assessment.ErrSessionClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &ce):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
