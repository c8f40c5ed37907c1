// Package assignment pairs unassigned patients with the least busy buddies.
package assignment

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/domain/stats"
)

// Assignment is one patient-to-buddy pairing.
type Assignment struct {
	PatientID   string `json:"patientId"`
	PatientName string `json:"patientName"`
	BuddyID     string `json:"buddyId"`
	BuddyName   string `json:"buddyName"`
}

// Source is the slice of the store the assigner needs.
type Source interface {
	Snapshot() rehab.Snapshot
	AssignBuddy(ctx context.Context, patientID, buddyID string) error
}

type candidate struct {
	buddy    rehab.User
	workload int
	sessions int
}

// better reports whether a should be picked over b: lower workload first,
// then higher tier, then fewer sessions overall.
func better(a, b *candidate) bool {
	if a.workload != b.workload {
		return a.workload < b.workload
	}
	if ra, rb := a.buddy.Tier.Rank(), b.buddy.Tier.Rank(); ra != rb {
		return ra > rb
	}
	return a.sessions < b.sessions
}

// Plan computes assignments for every active, unassigned patient in snapshot
// order without applying them. Buddies whose working workload has reached
// threshold take no more patients. Each pick adds one to the chosen buddy's
// working workload.
func Plan(snap rehab.Snapshot, threshold int) []Assignment {
	var pool []*candidate
	for _, b := range snap.Buddies() {
		if !b.IsActive() {
			continue
		}
		pool = append(pool, &candidate{
			buddy:    b,
			workload: stats.BuddyWorkload(snap.Patients, snap.Sessions, b.ID).Total,
			sessions: len(snap.SessionsFor(b.ID)),
		})
	}

	out := []Assignment{}
	for _, p := range snap.Patients {
		if p.AssignedBuddy != "" || !p.IsActive() {
			continue
		}
		var pick *candidate
		for _, c := range pool {
			if c.workload >= threshold {
				continue
			}
			if pick == nil || better(c, pick) {
				pick = c
			}
		}
		if pick == nil {
			// Every buddy is at capacity; later patients cannot fare better.
			break
		}
		pick.workload++
		out = append(out, Assignment{
			PatientID:   p.ID,
			PatientName: p.Label(),
			BuddyID:     pick.buddy.ID,
			BuddyName:   pick.buddy.Label(),
		})
	}
	return out
}

// Service runs assignment passes one at a time.
type Service struct {
	src       Source
	threshold int
	logger    zerolog.Logger
	mu        sync.Mutex
}

func NewService(src Source, threshold int, logger zerolog.Logger) *Service {
	if threshold <= 0 {
		threshold = stats.HighLoadThreshold
	}
	return &Service{
		src:       src,
		threshold: threshold,
		logger:    logger.With().Str("component", "assignment").Logger(),
	}
}

// DryRun returns what Run would assign right now.
func (s *Service) DryRun() []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Plan(s.src.Snapshot(), s.threshold)
}

// Run plans against the current snapshot and applies each pairing through the
// store. It stops at the first failed write and returns the pairings that were
// applied before it.
func (s *Service) Run(ctx context.Context) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	planned := Plan(s.src.Snapshot(), s.threshold)
	done := make([]Assignment, 0, len(planned))
	for _, a := range planned {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := s.src.AssignBuddy(ctx, a.PatientID, a.BuddyID); err != nil {
			s.logger.Error().Err(err).
				Str("patient_id", a.PatientID).
				Str("buddy_id", a.BuddyID).
				Msg("auto-assignment write failed")
			return done, fmt.Errorf("assigning patient %s: %w", a.PatientID, err)
		}
		done = append(done, a)
	}
	s.logger.Info().Int("assigned", len(done)).Msg("auto-assignment complete")
	return done, nil
}
