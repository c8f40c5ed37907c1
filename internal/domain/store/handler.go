package store

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/domain/stats"
	"github.com/rehab/rehab/internal/platform/accounts"
	"github.com/rehab/rehab/internal/platform/auth"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/pkg/pagination"
)

type Handler struct {
	store *Store
}

func NewHandler(s *Store) *Handler {
	return &Handler{store: s}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Admin
	admin := api.Group("", auth.RequireRole("admin"))
	admin.GET("/snapshot", h.GetSnapshot)
	admin.POST("/reload", h.Reload)
	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateUser)
	admin.PUT("/users/:id", h.UpdateUser)
	admin.POST("/patients", h.CreatePatient)
	admin.DELETE("/patients/:id", h.DeletePatient)
	admin.PUT("/patients/:id/buddy", h.AssignBuddy)
	admin.POST("/buddies/tiers/recalculate", h.RecalculateTiers)

	// Care staff
	care := api.Group("", auth.RequireRole("admin", "doctor", "nurse", "buddy"))
	care.GET("/patients", h.ListPatients)
	care.GET("/patients/:id", h.GetPatient)
	care.GET("/sessions", h.ListSessions)
	care.GET("/sessions/:id", h.GetSession)

	clinical := api.Group("", auth.RequireRole("admin", "doctor", "nurse"))
	clinical.PUT("/patients/:id", h.UpdatePatient)
	clinical.POST("/sessions", h.CreateSession)
	clinical.PUT("/sessions/:id", h.UpdateSession)
	clinical.DELETE("/sessions/:id", h.DeleteSession)
	clinical.GET("/careplans", h.ListCarePlans)

	doctor := api.Group("", auth.RequireRole("doctor"))
	doctor.POST("/patients/:id/progress/approval", h.ApproveProgress)
	doctor.POST("/careplans", h.SaveCarePlan)

	reporters := api.Group("", auth.RequireRole("doctor", "nurse", "buddy", "patient"))
	reporters.POST("/patients/:id/progress", h.UpdateProgress)
	reporters.POST("/users/:id/feedback", h.SubmitFeedback)

	patient := api.Group("", auth.RequireRole("patient"))
	patient.POST("/sessions/:id/rating", h.RateSession)
}

// httpError maps store errors onto HTTP statuses. Anything unrecognised is a
// gateway failure, including exhausted loads.
func httpError(err error) error {
	switch {
	case rehab.IsValidationError(err), errors.Is(err, accounts.ErrWeakPassword):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, docstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, accounts.ErrEmailExists), errors.Is(err, docstore.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error())
}

func callerID(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

// -- Snapshot --

func (h *Handler) GetSnapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Snapshot())
}

func (h *Handler) Reload(c echo.Context) error {
	if err := h.store.LoadAll(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.store.Snapshot().Stats)
}

// -- Users --

func (h *Handler) ListUsers(c echo.Context) error {
	snap := h.store.Snapshot()
	users := snap.Users
	if role := c.QueryParam("role"); role != "" {
		r, err := rehab.ParseRole(role)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		users = snap.UsersByRole(r)
	}
	return c.JSON(http.StatusOK, pagination.Page(users, pagination.FromContext(c)))
}

func (h *Handler) CreateUser(c echo.Context) error {
	var in NewUser
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.store.AddUser(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) UpdateUser(c echo.Context) error {
	var patch UserPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.store.UpdateUser(c.Request().Context(), c.Param("id"), patch); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SubmitFeedback(c echo.Context) error {
	var in FeedbackInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if in.From == "" || auth.HasOnlyRole(ctx, string(rehab.RolePatient)) || auth.HasOnlyRole(ctx, string(rehab.RoleBuddy)) {
		in.From = callerID(c)
	}
	if err := h.store.SubmitFeedback(c.Request().Context(), c.Param("id"), in); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RecalculateTiers(c echo.Context) error {
	r, err := stats.ParseTimeRange(c.QueryParam("range"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	changes, err := h.store.RecalculateBuddyTiers(c.Request().Context(), r)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, changes)
}

// -- Patients --

func (h *Handler) ListPatients(c echo.Context) error {
	snap := h.store.Snapshot()
	patients := snap.Patients
	ctx := c.Request().Context()
	if auth.HasOnlyRole(ctx, string(rehab.RoleBuddy)) {
		uid := auth.UserIDFromContext(ctx)
		mine := []rehab.Patient{}
		for _, p := range patients {
			if p.AssignedBuddy == uid {
				mine = append(mine, p)
			}
		}
		patients = mine
	}
	return c.JSON(http.StatusOK, pagination.Page(patients, pagination.FromContext(c)))
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, ok := h.store.Snapshot().FindPatient(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	ctx := c.Request().Context()
	if auth.HasOnlyRole(ctx, string(rehab.RoleBuddy)) && p.AssignedBuddy != auth.UserIDFromContext(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, "patient is not assigned to you")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var in NewPatient
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.store.AddPatient(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var patch PatientPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.store.UpdatePatient(c.Request().Context(), c.Param("id"), patch); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.store.DeletePatient(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AssignBuddy(c echo.Context) error {
	var body struct {
		BuddyID string `json:"buddyId"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.store.AssignBuddy(c.Request().Context(), c.Param("id"), body.BuddyID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateProgress(c echo.Context) error {
	var in ProgressUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reporter, err := h.ownPatientRole(c, c.Param("id"))
	if err != nil {
		return err
	}
	if reporter != "" {
		in.UpdatedBy = callerID(c)
		in.RequestedBy = string(reporter)
	}
	if in.UpdatedBy == "" {
		in.UpdatedBy = callerID(c)
	}
	if in.RequestedBy == "" {
		if roles := auth.RolesFromContext(c.Request().Context()); len(roles) > 0 {
			in.RequestedBy = roles[0]
		}
	}
	if err := h.store.UpdatePatientProgress(c.Request().Context(), c.Param("id"), in); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ownPatientRole limits patients to their own record and buddies to the
// patients assigned to them. It returns the restricted role, or "" for staff.
func (h *Handler) ownPatientRole(c echo.Context, patientID string) (rehab.Role, error) {
	ctx := c.Request().Context()
	uid := callerID(c)
	switch {
	case auth.HasOnlyRole(ctx, string(rehab.RolePatient)):
		if patientID != uid {
			return "", echo.NewHTTPError(http.StatusForbidden, "patients can only report their own progress")
		}
		return rehab.RolePatient, nil
	case auth.HasOnlyRole(ctx, string(rehab.RoleBuddy)):
		p, ok := h.store.Snapshot().FindPatient(patientID)
		if !ok {
			return "", echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		if p.AssignedBuddy != uid {
			return "", echo.NewHTTPError(http.StatusForbidden, "patient is not assigned to you")
		}
		return rehab.RoleBuddy, nil
	}
	return "", nil
}

func (h *Handler) ApproveProgress(c echo.Context) error {
	var in ProgressDecision
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.ApprovedBy == "" {
		in.ApprovedBy = callerID(c)
	}
	if err := h.store.ApprovePatientProgress(c.Request().Context(), c.Param("id"), in); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Sessions --

func (h *Handler) ListSessions(c echo.Context) error {
	snap := h.store.Snapshot()
	sessions := snap.Sessions
	ctx := c.Request().Context()
	if auth.HasOnlyRole(ctx, string(rehab.RoleBuddy)) {
		sessions = snap.SessionsFor(auth.UserIDFromContext(ctx))
		if sessions == nil {
			sessions = []rehab.Session{}
		}
	}
	if status := c.QueryParam("status"); status != "" {
		filtered := []rehab.Session{}
		for _, s := range sessions {
			if s.Status == status {
				filtered = append(filtered, s)
			}
		}
		sessions = filtered
	}
	return c.JSON(http.StatusOK, pagination.Page(sessions, pagination.FromContext(c)))
}

func (h *Handler) GetSession(c echo.Context) error {
	s, ok := h.store.Snapshot().FindSession(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	ctx := c.Request().Context()
	if auth.HasOnlyRole(ctx, string(rehab.RoleBuddy)) && s.BuddyID != auth.UserIDFromContext(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, "session is not yours")
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) CreateSession(c echo.Context) error {
	var in NewSession
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.store.AddSession(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) UpdateSession(c echo.Context) error {
	var patch SessionPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.store.UpdateSession(c.Request().Context(), c.Param("id"), patch); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.store.DeleteSession(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RateSession(c echo.Context) error {
	var in SessionRating
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := c.Param("id")
	ctx := c.Request().Context()
	if auth.HasOnlyRole(ctx, string(rehab.RolePatient)) {
		if s, ok := h.store.Snapshot().FindSession(id); ok && s.PatientID != auth.UserIDFromContext(ctx) {
			return echo.NewHTTPError(http.StatusForbidden, "patients can only rate their own sessions")
		}
	}
	if err := h.store.RateSession(ctx, id, in); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Care plans --

func (h *Handler) ListCarePlans(c echo.Context) error {
	plans := h.store.Snapshot().CarePlans
	if pid := c.QueryParam("patient_id"); pid != "" {
		filtered := []rehab.CarePlanRecord{}
		for _, p := range plans {
			if p.PatientID == pid {
				filtered = append(filtered, p)
			}
		}
		plans = filtered
	}
	return c.JSON(http.StatusOK, pagination.Page(plans, pagination.FromContext(c)))
}

func (h *Handler) SaveCarePlan(c echo.Context) error {
	var in CarePlanInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.CreatedBy == "" {
		in.CreatedBy = callerID(c)
	}
	id, err := h.store.SaveCarePlan(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}
