package assignment

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rehab/rehab/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/assignments", auth.RequireRole("admin"))
	g.POST("/auto", h.AutoAssign)
}

type autoAssignResponse struct {
	DryRun      bool         `json:"dryRun"`
	Assignments []Assignment `json:"assignments"`
	Error       string       `json:"error,omitempty"`
}

func (h *Handler) AutoAssign(c echo.Context) error {
	dryRun := false
	if v := c.QueryParam("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "dry_run must be a boolean")
		}
		dryRun = b
	}
	if dryRun {
		return c.JSON(http.StatusOK, autoAssignResponse{DryRun: true, Assignments: h.svc.DryRun()})
	}
	done, err := h.svc.Run(c.Request().Context())
	if err != nil {
		// Partial progress is still reported.
		return c.JSON(http.StatusBadGateway, autoAssignResponse{Assignments: done, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, autoAssignResponse{Assignments: done})
}
