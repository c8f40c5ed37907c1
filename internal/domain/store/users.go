package store

import (
	"context"
	"fmt"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/domain/stats"
	"github.com/rehab/rehab/internal/platform/accounts"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/events"
)

// AddUser creates a staff or patient user document and returns its id.
func (s *Store) AddUser(ctx context.Context, in NewUser) (string, error) {
	if err := rehab.Validate(in); err != nil {
		return "", err
	}
	role, _ := rehab.ParseRole(in.Role)
	now := s.timestamp()
	u := rehab.User{
		Email:          in.Email,
		Name:           in.Name,
		Role:           role,
		Status:         rehab.StatusActive,
		Phone:          in.Phone,
		Specialization: in.Specialization,
		CreatedAt:      &now,
		UpdatedAt:      &now,
	}
	if role == rehab.RoleBuddy {
		u.Tier = rehab.TierBronze
		if in.Tier != "" {
			u.Tier, _ = rehab.ParseTier(in.Tier)
		}
	}

	var id string
	var err error
	if in.Password != "" {
		id, err = s.createWithAccount(ctx, in.Email, in.Password, accounts.Profile{Name: in.Name, Role: string(role)}, func(uid string) interface{} {
			u.ID = uid
			return u
		})
	} else {
		id, err = s.createDocument(ctx, UsersCollection, u)
	}
	if err != nil {
		return "", err
	}

	if role == rehab.RolePatient {
		s.reloadPatients(ctx)
	} else {
		s.reload(ctx, s.LoadUsers)
	}
	s.publish(ctx, events.UserCreated, id, map[string]interface{}{"role": string(role)})
	return id, nil
}

// UpdateUser applies the non-nil fields of patch to user id.
func (s *Store) UpdateUser(ctx context.Context, id string, patch UserPatch) error {
	if id == "" {
		return rehab.Invalid("id", "is required")
	}
	if err := rehab.Validate(patch); err != nil {
		return err
	}
	if patch.Role != nil {
		role, _ := rehab.ParseRole(*patch.Role)
		r := string(role)
		patch.Role = &r
	}
	if patch.Tier != nil {
		tier, _ := rehab.ParseTier(*patch.Tier)
		t := string(tier)
		patch.Tier = &t
	}
	if err := s.patch(ctx, UsersCollection, id, patch); err != nil {
		return err
	}
	s.reloadPatients(ctx)
	s.publish(ctx, events.UserUpdated, id, nil)
	return nil
}

// SubmitFeedback appends a remark to a user's feedback list.
func (s *Store) SubmitFeedback(ctx context.Context, userID string, in FeedbackInput) error {
	if userID == "" {
		return rehab.Invalid("id", "is required")
	}
	if err := rehab.Validate(in); err != nil {
		return err
	}
	if err := s.appendFeedback(ctx, userID, rehab.Feedback{
		From:     in.From,
		Positive: in.Positive,
		Comment:  in.Comment,
		Date:     s.timestamp(),
	}); err != nil {
		return err
	}
	s.reload(ctx, s.LoadUsers)
	s.publish(ctx, events.UserFeedback, userID, map[string]interface{}{"positive": in.Positive})
	return nil
}

func (s *Store) appendFeedback(ctx context.Context, userID string, fb rehab.Feedback) error {
	var u rehab.User
	if err := s.get(ctx, UsersCollection, userID, &u); err != nil {
		return err
	}
	list := append(u.Feedback, fb)
	return s.write(ctx, UsersCollection, userID, docstore.Document{"feedback": list})
}

// TierChange records a buddy whose tier was recalculated.
type TierChange struct {
	BuddyID       string     `json:"buddyId"`
	From          rehab.Tier `json:"from"`
	To            rehab.Tier `json:"to"`
	AverageRating float64    `json:"averageRating"`
	Satisfaction  float64    `json:"satisfactionRate"`
}

// RecalculateBuddyTiers classifies every buddy with ratings in the range and
// persists tiers that changed. Buddies without ratings keep their tier. The
// first failed write stops the pass; earlier changes stay applied.
func (s *Store) RecalculateBuddyTiers(ctx context.Context, r stats.TimeRange) ([]TierChange, error) {
	snap := s.Snapshot()
	now := s.now()
	changes := []TierChange{}
	var err error
	for _, b := range snap.Buddies() {
		agg, ok := stats.AggregateRatings(snap.Sessions, b.ID, r, now)
		if !ok {
			continue
		}
		tier := stats.ClassifyTier(agg.AverageRating, agg.SatisfactionRate)
		if tier == b.Tier {
			continue
		}
		if err = s.write(ctx, UsersCollection, b.ID, docstore.Document{"tier": string(tier)}); err != nil {
			break
		}
		changes = append(changes, TierChange{
			BuddyID:       b.ID,
			From:          b.Tier,
			To:            tier,
			AverageRating: agg.AverageRating,
			Satisfaction:  agg.SatisfactionRate,
		})
		s.publish(ctx, events.BuddyTierChanged, b.ID, map[string]interface{}{
			"from": string(b.Tier),
			"to":   string(tier),
		})
	}
	if len(changes) > 0 {
		s.reload(ctx, s.LoadUsers)
	}
	if err != nil {
		return changes, fmt.Errorf("recalculate tiers: %w", err)
	}
	return changes, nil
}
