package store

import (
	"context"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/events"
)

// AddSession books a session and returns its id.
func (s *Store) AddSession(ctx context.Context, in NewSession) (string, error) {
	if err := rehab.Validate(in); err != nil {
		return "", err
	}
	status := in.Status
	if status == "" {
		status = rehab.SessionScheduled
	}
	now := s.timestamp()
	id, err := s.createDocument(ctx, SessionsCollection, rehab.Session{
		PatientID:  in.PatientID,
		BuddyID:    in.BuddyID,
		NurseID:    in.NurseID,
		Date:       in.Date,
		Time:       in.Time,
		Duration:   in.Duration,
		Type:       in.Type,
		Activities: in.Activities,
		Status:     status,
		Notes:      in.Notes,
		CreatedAt:  &now,
		UpdatedAt:  &now,
	})
	if err != nil {
		return "", err
	}
	s.reload(ctx, s.LoadSessions)
	s.publish(ctx, events.SessionCreated, id, map[string]interface{}{
		"patientId": in.PatientID,
		"buddyId":   in.BuddyID,
	})
	return id, nil
}

// UpdateSession applies the non-nil fields of patch to session id.
func (s *Store) UpdateSession(ctx context.Context, id string, patch SessionPatch) error {
	if id == "" {
		return rehab.Invalid("id", "is required")
	}
	if err := rehab.Validate(patch); err != nil {
		return err
	}
	if err := s.patch(ctx, SessionsCollection, id, patch); err != nil {
		return err
	}
	s.reload(ctx, s.LoadSessions)
	s.publish(ctx, events.SessionUpdated, id, nil)
	return nil
}

// DeleteSession cancels a session. The document is kept.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return rehab.Invalid("id", "is required")
	}
	if err := s.write(ctx, SessionsCollection, id, docstore.Document{
		"status":      rehab.SessionCancelled,
		"cancelledAt": s.timestamp(),
	}); err != nil {
		return err
	}
	s.reload(ctx, s.LoadSessions)
	s.publish(ctx, events.SessionCancelled, id, nil)
	return nil
}

// RateSession stores the patient's rating of a completed session and leaves
// matching feedback on the buddy's profile. A session is rated once.
func (s *Store) RateSession(ctx context.Context, id string, in SessionRating) error {
	if id == "" {
		return rehab.Invalid("id", "is required")
	}
	if err := rehab.Validate(in); err != nil {
		return err
	}
	var sess rehab.Session
	if err := s.get(ctx, SessionsCollection, id, &sess); err != nil {
		return err
	}
	if sess.Status != rehab.SessionCompleted {
		return rehab.Invalid("status", "only completed sessions can be rated")
	}
	if sess.PatientRating != nil {
		return rehab.Invalid("patientRating", "session has already been rated")
	}

	doc := docstore.Document{"patientRating": in.Rating}
	if in.Feedback != "" {
		doc["patientFeedback"] = in.Feedback
	}
	if err := s.write(ctx, SessionsCollection, id, doc); err != nil {
		return err
	}

	reloads := []func(context.Context) error{s.LoadSessions}
	if sess.BuddyID != "" {
		err := s.appendFeedback(ctx, sess.BuddyID, rehab.Feedback{
			From:     sess.PatientID,
			Positive: in.Rating >= 4,
			Comment:  in.Feedback,
			Date:     s.timestamp(),
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", id).Str("buddy_id", sess.BuddyID).Msg("rating feedback not recorded")
		} else {
			reloads = append(reloads, s.LoadUsers)
		}
	}
	s.reload(ctx, reloads...)
	s.publish(ctx, events.SessionRated, id, map[string]interface{}{
		"buddyId": sess.BuddyID,
		"rating":  in.Rating,
	})
	return nil
}
