package store

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/platform/accounts"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/events"
)

// AddPatient creates the patient's login account and then the patient
// document keyed by the account uid. No document is written when the account
// cannot be created.
func (s *Store) AddPatient(ctx context.Context, in NewPatient) (string, error) {
	if err := rehab.Validate(in); err != nil {
		return "", err
	}
	now := s.timestamp()
	id, err := s.createWithAccount(ctx, in.Email, in.Password,
		accounts.Profile{Name: in.Name, Role: string(rehab.RolePatient)},
		func(uid string) interface{} {
			return rehab.Patient{
				User: rehab.User{
					ID:        uid,
					Email:     in.Email,
					Name:      in.Name,
					Role:      rehab.RolePatient,
					Status:    rehab.StatusActive,
					Phone:     in.Phone,
					CreatedAt: &now,
					UpdatedAt: &now,
				},
				DateOfBirth:    in.DateOfBirth,
				Condition:      in.Condition,
				AssignedDoctor: in.AssignedDoctor,
				AssignedNurse:  in.AssignedNurse,
				AssignedBuddy:  in.AssignedBuddy,
				CarePlan:       in.CarePlan,
			}
		})
	if err != nil {
		return "", err
	}
	s.reloadPatients(ctx)
	s.publish(ctx, events.PatientCreated, id, nil)
	return id, nil
}

// UpdatePatient applies the non-nil fields of patch to patient id.
func (s *Store) UpdatePatient(ctx context.Context, id string, patch PatientPatch) error {
	if err := s.updatePatient(ctx, id, patch); err != nil {
		return err
	}
	s.publish(ctx, events.PatientUpdated, id, nil)
	return nil
}

func (s *Store) updatePatient(ctx context.Context, id string, patch PatientPatch) error {
	if id == "" {
		return rehab.Invalid("id", "is required")
	}
	if err := rehab.Validate(patch); err != nil {
		return err
	}
	if _, err := s.getPatient(ctx, id); err != nil {
		return err
	}
	if err := s.patch(ctx, UsersCollection, id, patch); err != nil {
		return err
	}
	s.reloadPatients(ctx)
	return nil
}

// AssignBuddy points a patient at a buddy through the patient update path.
// The buddy must be a known buddy in the current snapshot.
func (s *Store) AssignBuddy(ctx context.Context, patientID, buddyID string) error {
	if buddyID == "" {
		return rehab.Invalid("assignedBuddy", "is required")
	}
	if u, ok := s.Snapshot().FindUser(buddyID); !ok || !u.IsBuddy() {
		return rehab.Invalid("assignedBuddy", "%s is not a buddy", buddyID)
	}
	if err := s.updatePatient(ctx, patientID, PatientPatch{AssignedBuddy: &buddyID}); err != nil {
		return err
	}
	s.publish(ctx, events.BuddyAssigned, patientID, map[string]interface{}{"buddyId": buddyID})
	return nil
}

// DeletePatient deactivates a patient. The document is kept.
func (s *Store) DeletePatient(ctx context.Context, id string) error {
	if id == "" {
		return rehab.Invalid("id", "is required")
	}
	if _, err := s.getPatient(ctx, id); err != nil {
		return err
	}
	if err := s.write(ctx, UsersCollection, id, docstore.Document{
		"status":    rehab.StatusInactive,
		"deletedAt": s.timestamp(),
	}); err != nil {
		return err
	}
	s.reloadPatients(ctx)
	s.publish(ctx, events.PatientDeleted, id, nil)
	return nil
}

// UpdatePatientProgress records new progress figures. The overall percentage
// is the mean of the four dimensions, the approval status goes back to
// pending whatever it was, and a pending approval request is appended.
func (s *Store) UpdatePatientProgress(ctx context.Context, patientID string, in ProgressUpdate) error {
	if patientID == "" {
		return rehab.Invalid("id", "is required")
	}
	for _, dim := range []struct {
		field string
		v     float64
	}{
		{"physicalProgress", in.PhysicalProgress},
		{"mentalProgress", in.MentalProgress},
		{"emotionalProgress", in.EmotionalProgress},
		{"socialProgress", in.SocialProgress},
	} {
		if math.IsNaN(dim.v) {
			return rehab.Invalid(dim.field, "must be a number")
		}
	}
	if err := rehab.Validate(in); err != nil {
		return err
	}

	p, err := s.getPatient(ctx, patientID)
	if err != nil {
		return err
	}

	now := s.timestamp()
	overall := rehab.OverallOf(in.PhysicalProgress, in.MentalProgress, in.EmotionalProgress, in.SocialProgress)
	progress := rehab.Progress{
		PhysicalProgress:  in.PhysicalProgress,
		MentalProgress:    in.MentalProgress,
		EmotionalProgress: in.EmotionalProgress,
		SocialProgress:    in.SocialProgress,
		OverallPercentage: overall,
		ApprovalStatus:    rehab.ApprovalPending,
		LastUpdatedBy:     in.UpdatedBy,
		LastUpdated:       &now,
	}
	if prev := p.OverallProgress; prev != nil {
		progress.LastApprovedBy = prev.LastApprovedBy
		progress.ApprovalDate = prev.ApprovalDate
	}

	requestedBy := in.RequestedBy
	if requestedBy == "" {
		requestedBy = string(rehab.RolePatient)
	}
	requests := append(p.ApprovalRequests, rehab.ApprovalRequest{
		ID:          uuid.New().String(),
		RequestedBy: requestedBy,
		RequesterID: in.UpdatedBy,
		Data: rehab.ProgressData{
			PhysicalProgress:  in.PhysicalProgress,
			MentalProgress:    in.MentalProgress,
			EmotionalProgress: in.EmotionalProgress,
			SocialProgress:    in.SocialProgress,
			OverallPercentage: overall,
			Notes:             in.Notes,
		},
		Status:    rehab.RequestPendingApproval,
		CreatedAt: now,
	})

	doc, err := rehab.Encode(map[string]interface{}{
		"overallProgress":  progress,
		"approvalRequests": requests,
	})
	if err != nil {
		return err
	}
	if err := s.write(ctx, UsersCollection, patientID, doc); err != nil {
		return err
	}
	s.reloadPatients(ctx)
	s.publish(ctx, events.ProgressSubmitted, patientID, map[string]interface{}{
		"overallPercentage": overall,
		"updatedBy":         in.UpdatedBy,
	})
	return nil
}

// ApprovePatientProgress records a doctor's decision on the patient's current
// progress and resolves the most recent pending approval request, if any.
// Requests that were already decided are left alone.
func (s *Store) ApprovePatientProgress(ctx context.Context, patientID string, in ProgressDecision) error {
	if patientID == "" {
		return rehab.Invalid("id", "is required")
	}
	if err := rehab.Validate(in); err != nil {
		return err
	}

	p, err := s.getPatient(ctx, patientID)
	if err != nil {
		return err
	}
	if p.OverallProgress == nil {
		return rehab.Invalid("overallProgress", "patient has no progress to review")
	}

	now := s.timestamp()
	progress := *p.OverallProgress
	progress.ApprovalStatus = in.ApprovalStatus
	progress.LastApprovedBy = in.ApprovedBy
	progress.ApprovalDate = &now
	progress.ApprovalNotes = in.Notes

	requests := p.ApprovalRequests
	resolved := ""
	for i := len(requests) - 1; i >= 0; i-- {
		if requests[i].Status != rehab.RequestPendingApproval {
			continue
		}
		requests[i].Status = in.ApprovalStatus
		requests[i].ApprovedBy = in.ApprovedBy
		requests[i].ApprovalDate = &now
		requests[i].ApprovalNotes = in.Notes
		resolved = requests[i].ID
		break
	}

	fields := map[string]interface{}{"overallProgress": progress}
	if resolved != "" {
		fields["approvalRequests"] = requests
	}
	doc, err := rehab.Encode(fields)
	if err != nil {
		return err
	}
	if err := s.write(ctx, UsersCollection, patientID, doc); err != nil {
		return err
	}
	s.reloadPatients(ctx)
	s.publish(ctx, events.ProgressReviewed, patientID, map[string]interface{}{
		"approvalStatus": in.ApprovalStatus,
		"approvedBy":     in.ApprovedBy,
		"requestId":      resolved,
	})
	return nil
}

// SaveCarePlan stores a care plan record and copies the plan onto the patient.
func (s *Store) SaveCarePlan(ctx context.Context, in CarePlanInput) (string, error) {
	if err := rehab.Validate(in); err != nil {
		return "", err
	}
	if _, ok := s.Snapshot().FindPatient(in.PatientID); !ok {
		return "", rehab.Invalid("patientId", "unknown patient %s", in.PatientID)
	}
	now := s.timestamp()
	plan := in.plan()
	id, err := s.createDocument(ctx, CarePlansCollection, rehab.CarePlanRecord{
		PatientID: in.PatientID,
		CreatedBy: in.CreatedBy,
		Status:    rehab.StatusActive,
		CreatedAt: &now,
		CarePlan:  plan,
	})
	if err != nil {
		return "", err
	}
	if err := s.patch(ctx, UsersCollection, in.PatientID, PatientPatch{CarePlan: &plan}); err != nil {
		// The record exists; only the copy on the patient is stale.
		s.logger.Warn().Err(err).Str("patient_id", in.PatientID).Msg("care plan not copied to patient")
	}
	s.reload(ctx, s.LoadCarePlans, s.LoadPatients)
	s.publish(ctx, events.CarePlanSaved, id, map[string]interface{}{"patientId": in.PatientID})
	return id, nil
}

// getPatient reads a patient document from the gateway. Staff records share
// the users collection and are rejected.
func (s *Store) getPatient(ctx context.Context, id string) (rehab.Patient, error) {
	var p rehab.Patient
	if err := s.get(ctx, UsersCollection, id, &p); err != nil {
		return p, err
	}
	if p.Role != rehab.RolePatient {
		return p, rehab.Invalid("id", "%s is not a patient", id)
	}
	return p, nil
}
