package stats

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/platform/auth"
)

// SnapshotSource is satisfied by the store.
type SnapshotSource interface {
	Snapshot() rehab.Snapshot
}

type Handler struct {
	src SnapshotSource
	now func() time.Time
}

func NewHandler(src SnapshotSource) *Handler {
	return &Handler{src: src, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("/stats", auth.RequireRole("admin", "doctor", "nurse"))
	staff.GET("/overview", h.GetOverview)
	staff.GET("/tiers", h.GetTierDistribution)
	staff.GET("/buddies/performance", h.ListPerformance)
	staff.GET("/patients/:id", h.GetPatientSummary)

	// Buddies may look at their own numbers.
	self := api.Group("/stats/buddies/:id", auth.RequireRole("admin", "doctor", "nurse", "buddy"))
	self.GET("/workload", h.GetWorkload)
	self.GET("/performance", h.GetPerformance)
}

func (h *Handler) GetOverview(c echo.Context) error {
	return c.JSON(http.StatusOK, Overview(h.src.Snapshot()))
}

func (h *Handler) GetTierDistribution(c echo.Context) error {
	return c.JSON(http.StatusOK, DistributeTiers(h.src.Snapshot().Buddies()))
}

func (h *Handler) ListPerformance(c echo.Context) error {
	r, err := ParseTimeRange(c.QueryParam("range"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, Leaderboard(h.src.Snapshot(), r, h.now()))
}

func (h *Handler) GetWorkload(c echo.Context) error {
	snap := h.src.Snapshot()
	buddy, err := h.buddy(c, snap)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BuddyWorkload(snap.Patients, snap.Sessions, buddy.ID))
}

func (h *Handler) GetPerformance(c echo.Context) error {
	r, err := ParseTimeRange(c.QueryParam("range"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	snap := h.src.Snapshot()
	buddy, err := h.buddy(c, snap)
	if err != nil {
		return err
	}
	p, ok := BuddyPerformance(snap, buddy, r, h.now())
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no rated sessions in range")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPatientSummary(c echo.Context) error {
	snap := h.src.Snapshot()
	p, ok := snap.FindPatient(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, SummarizePatient(snap, p))
}

// buddy resolves the :id path parameter. A caller holding only the buddy role
// is limited to their own id.
func (h *Handler) buddy(c echo.Context, snap rehab.Snapshot) (rehab.User, error) {
	id := c.Param("id")
	ctx := c.Request().Context()
	if auth.HasOnlyRole(ctx, string(rehab.RoleBuddy)) && auth.UserIDFromContext(ctx) != id {
		return rehab.User{}, echo.NewHTTPError(http.StatusForbidden, "buddies can only view their own statistics")
	}
	u, ok := snap.FindUser(id)
	if !ok || !u.IsBuddy() {
		return rehab.User{}, echo.NewHTTPError(http.StatusNotFound, "buddy not found")
	}
	return u, nil
}
