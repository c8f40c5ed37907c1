package sandbox

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/platform/auth"
)

// maxPerKind caps any single count in a request body.
const maxPerKind = 500

// SeedHandler exposes seeding over HTTP. It is only mounted in development.
type SeedHandler struct {
	target Target
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewSeedHandler creates a handler that seeds into target.
func NewSeedHandler(target Target, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{target: target, logger: logger}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	sb := g.Group("/sandbox", auth.RequireRole("admin"))
	sb.POST("/seed", h.handleSeed)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	// One run at a time; generated emails would collide otherwise.
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg := DefaultSeedConfig()
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	for _, n := range []int{cfg.Doctors, cfg.Nurses, cfg.Buddies, cfg.Patients, cfg.SessionsPerPatient, cfg.Unassigned} {
		if n < 0 || n > maxPerKind {
			return echo.NewHTTPError(http.StatusBadRequest, "counts must be between 0 and 500")
		}
	}

	result, err := NewSeeder(h.target, cfg).Run(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Int("patients", result.Patients).Msg("sandbox seed failed")
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error":   err.Error(),
			"partial": result,
		})
	}
	h.logger.Info().
		Int("users", result.Users).
		Int("patients", result.Patients).
		Int("sessions", result.Sessions).
		Msg("sandbox seeded")
	return c.JSON(http.StatusCreated, result)
}
