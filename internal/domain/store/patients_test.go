package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/platform/accounts"
	"github.com/rehab/rehab/internal/platform/events"
)

func validPatient() NewPatient {
	return NewPatient{Email: "pat@rehab.test", Name: "Pat", Password: "secret1", DateOfBirth: "1990-04-01"}
}

func TestAddPatient_ThenLoadIncludesItOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.store.AddPatient(ctx, validPatient())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.store.LoadPatients(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := 0
	for _, p := range env.store.Snapshot().Patients {
		if p.ID == id {
			count++
			if p.Role != rehab.RolePatient || p.Status != rehab.StatusActive {
				t.Errorf("unexpected patient: %+v", p)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected patient exactly once, got %d", count)
	}
	if _, err := env.accounts.Authenticate(ctx, "pat@rehab.test", "secret1"); err != nil {
		t.Errorf("expected a login account keyed to the patient: %v", err)
	}
	if got := env.events.types(); len(got) != 1 || got[0] != events.PatientCreated {
		t.Errorf("expected patient.created event, got %v", got)
	}
}

func TestAddPatient_AccountFailureWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.accounts.createErr = accounts.ErrEmailExists

	_, err := env.store.AddPatient(context.Background(), validPatient())
	if !errors.Is(err, accounts.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	if env.gw.writes() != 0 {
		t.Errorf("expected no document writes, got %d", env.gw.writes())
	}
}

func TestAddPatient_DocumentFailureRemovesAccount(t *testing.T) {
	env := newTestEnv(t)
	env.gw.createErr = errors.New("write refused")

	_, err := env.store.AddPatient(context.Background(), validPatient())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(env.accounts.deleted) != 1 {
		t.Fatalf("expected compensating account removal, got %v", env.accounts.deleted)
	}
	if env.accounts.Count() != 0 {
		t.Errorf("expected no accounts left, got %d", env.accounts.Count())
	}
}

func TestAddPatient_CompensationFailureStillReturnsWriteError(t *testing.T) {
	env := newTestEnv(t)
	env.gw.createErr = errors.New("write refused")
	env.accounts.deleteErr = errors.New("auth down")

	_, err := env.store.AddPatient(context.Background(), validPatient())
	if err == nil || err.Error() != "create users document: write refused" {
		t.Errorf("expected the document error, got %v", err)
	}
}

func TestAddPatient_CreatingUserFlag(t *testing.T) {
	env := newTestEnv(t)
	var during bool
	env.accounts.onCreate = func() { during = env.store.CreatingUser() }

	if _, err := env.store.AddPatient(context.Background(), validPatient()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !during {
		t.Error("expected CreatingUser while the account is created")
	}
	if env.store.CreatingUser() {
		t.Error("expected CreatingUser to clear after success")
	}

	env.accounts.createErr = errors.New("auth down")
	env.store.AddPatient(context.Background(), validPatient())
	if env.store.CreatingUser() {
		t.Error("expected CreatingUser to clear after failure")
	}
}

func TestAddPatient_EmailValidation(t *testing.T) {
	env := newTestEnv(t)
	in := validPatient()
	in.Email = "not-an-email"

	_, err := env.store.AddPatient(context.Background(), in)
	if !rehab.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if env.accounts.Count() != 0 || env.gw.writes() != 0 {
		t.Error("expected no account or document for invalid input")
	}

	in.Email = "a@b.co"
	if _, err := env.store.AddPatient(context.Background(), in); err != nil {
		t.Errorf("expected a@b.co to be accepted, got %v", err)
	}
}

func TestAddPatient_BadBirthDate(t *testing.T) {
	env := newTestEnv(t)
	in := validPatient()
	in.DateOfBirth = "01/04/1990"

	_, err := env.store.AddPatient(context.Background(), in)
	var ve *rehab.ValidationError
	if !errors.As(err, &ve) || ve.Field != "dateOfBirth" {
		t.Errorf("expected dateOfBirth validation error, got %v", err)
	}
}

func TestUpdatePatientProgress_MeanAndPending(t *testing.T) {
	inputs := []ProgressUpdate{
		{PhysicalProgress: 10, MentalProgress: 20, EmotionalProgress: 30, SocialProgress: 40, UpdatedBy: "b1"},
		{PhysicalProgress: 0, MentalProgress: 0, EmotionalProgress: 0, SocialProgress: 0, UpdatedBy: "b1"},
		{PhysicalProgress: 100, MentalProgress: 100, EmotionalProgress: 100, SocialProgress: 100, UpdatedBy: "b1"},
		{PhysicalProgress: 33.3, MentalProgress: 66.6, EmotionalProgress: 12.5, SocialProgress: 99, UpdatedBy: "b1"},
	}
	for _, prior := range []string{"", rehab.ApprovalApproved, rehab.ApprovalRejected, rehab.ApprovalPending} {
		for _, in := range inputs {
			env := newTestEnv(t)
			p := rehab.Patient{User: rehab.User{ID: "p1", Email: "p1@rehab.test", Role: rehab.RolePatient}}
			if prior != "" {
				p.OverallProgress = &rehab.Progress{ApprovalStatus: prior, LastApprovedBy: "d1"}
			}
			env.seed(t, UsersCollection, p)

			if err := env.store.UpdatePatientProgress(context.Background(), "p1", in); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, ok := env.store.Snapshot().FindPatient("p1")
			if !ok || got.OverallProgress == nil {
				t.Fatalf("expected patient with progress, got %+v", got)
			}
			want := (in.PhysicalProgress + in.MentalProgress + in.EmotionalProgress + in.SocialProgress) / 4
			if got.OverallProgress.OverallPercentage != want {
				t.Errorf("prior %q: expected overall %v, got %v", prior, want, got.OverallProgress.OverallPercentage)
			}
			if got.OverallProgress.ApprovalStatus != rehab.ApprovalPending {
				t.Errorf("prior %q: expected pending, got %q", prior, got.OverallProgress.ApprovalStatus)
			}
			if n := got.PendingRequests(); n != 1 {
				t.Errorf("prior %q: expected one pending request, got %d", prior, n)
			}
		}
	}
}

func TestUpdatePatientProgress_RejectsOutOfRange(t *testing.T) {
	base := ProgressUpdate{PhysicalProgress: 50, MentalProgress: 50, EmotionalProgress: 50, SocialProgress: 50, UpdatedBy: "b1"}
	mutations := map[string]func(*ProgressUpdate, float64){
		"physicalProgress":  func(p *ProgressUpdate, v float64) { p.PhysicalProgress = v },
		"mentalProgress":    func(p *ProgressUpdate, v float64) { p.MentalProgress = v },
		"emotionalProgress": func(p *ProgressUpdate, v float64) { p.EmotionalProgress = v },
		"socialProgress":    func(p *ProgressUpdate, v float64) { p.SocialProgress = v },
	}
	for field, set := range mutations {
		for _, v := range []float64{-1, -0.01, 100.01, 101} {
			env := newTestEnv(t)
			env.seedPatient(t, "p1")
			in := base
			set(&in, v)

			err := env.store.UpdatePatientProgress(context.Background(), "p1", in)
			var ve *rehab.ValidationError
			if !errors.As(err, &ve) || ve.Field != field {
				t.Errorf("%s=%v: expected validation error on %s, got %v", field, v, field, err)
			}
			if env.gw.writes() != 0 {
				t.Errorf("%s=%v: expected no mutation", field, v)
			}
		}
	}
}

func TestApprovePatientProgress_ResolvesLatestPendingOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seedPatient(t, "p1")
	ctx := context.Background()
	in := ProgressUpdate{PhysicalProgress: 50, MentalProgress: 50, EmotionalProgress: 50, SocialProgress: 50, UpdatedBy: "b1", RequestedBy: "buddy"}
	if err := env.store.UpdatePatientProgress(ctx, "p1", in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in.PhysicalProgress = 70
	if err := env.store.UpdatePatientProgress(ctx, "p1", in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decision := ProgressDecision{ApprovalStatus: rehab.ApprovalApproved, ApprovedBy: "d1", Notes: "good"}
	if err := env.store.ApprovePatientProgress(ctx, "p1", decision); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := env.store.Snapshot().FindPatient("p1")
	if p.OverallProgress.ApprovalStatus != rehab.ApprovalApproved || p.OverallProgress.LastApprovedBy != "d1" {
		t.Errorf("unexpected progress: %+v", p.OverallProgress)
	}
	if p.OverallProgress.ApprovalDate == nil || !p.OverallProgress.ApprovalDate.Equal(testNow) {
		t.Errorf("expected approval timestamp, got %v", p.OverallProgress.ApprovalDate)
	}
	reqs := p.ApprovalRequests
	if len(reqs) != 2 || reqs[0].Status != rehab.RequestPendingApproval || reqs[1].Status != rehab.ApprovalApproved {
		t.Fatalf("expected only the latest request resolved, got %+v", reqs)
	}

	// A second decision resolves the older request and never revisits the first.
	decision.ApprovalStatus = rehab.ApprovalRejected
	if err := env.store.ApprovePatientProgress(ctx, "p1", decision); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ = env.store.Snapshot().FindPatient("p1")
	if p.ApprovalRequests[1].Status != rehab.ApprovalApproved || p.ApprovalRequests[0].Status != rehab.ApprovalRejected {
		t.Errorf("expected resolved requests to stay resolved, got %+v", p.ApprovalRequests)
	}
}

func TestApprovePatientProgress_RejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seedPatient(t, "p1")

	err := env.store.ApprovePatientProgress(context.Background(), "p1", ProgressDecision{ApprovalStatus: "pending", ApprovedBy: "d1"})
	if !rehab.IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if env.gw.writes() != 0 {
		t.Error("expected no mutation")
	}
}

func TestApprovePatientProgress_NoProgress(t *testing.T) {
	env := newTestEnv(t)
	env.seedPatient(t, "p1")

	err := env.store.ApprovePatientProgress(context.Background(), "p1", ProgressDecision{ApprovalStatus: rehab.ApprovalApproved, ApprovedBy: "d1"})
	if !rehab.IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDeletePatient_SoftDeletes(t *testing.T) {
	env := newTestEnv(t)
	env.seedPatient(t, "p1")
	env.loadAll(t)

	if err := env.store.DeletePatient(context.Background(), "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := env.store.Snapshot().FindPatient("p1")
	if !ok {
		t.Fatal("expected patient to remain")
	}
	if p.Status != rehab.StatusInactive || p.DeletedAt == nil {
		t.Errorf("expected inactive with deletedAt, got %+v", p.User)
	}
}

func TestDeletePatient_NotFound(t *testing.T) {
	env := newTestEnv(t)
	err := env.store.DeletePatient(context.Background(), "missing")
	if err == nil || rehab.IsValidationError(err) {
		t.Errorf("expected gateway not-found error, got %v", err)
	}
}

func TestUpdatePatient_GatewayErrorNotRetried(t *testing.T) {
	env := newTestEnv(t)
	env.seedPatient(t, "p1")
	env.gw.updateErr = errors.New("write refused")
	name := "New Name"

	if err := env.store.UpdatePatient(context.Background(), "p1", PatientPatch{Name: &name}); err == nil {
		t.Fatal("expected error")
	}
	if env.gw.updateCalls != 1 {
		t.Errorf("expected a single write attempt, got %d", env.gw.updateCalls)
	}
}

func TestUpdatePatient_EmptyPatch(t *testing.T) {
	env := newTestEnv(t)
	env.seedPatient(t, "p1")

	if err := env.store.UpdatePatient(context.Background(), "p1", PatientPatch{}); !rehab.IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestAssignBuddy(t *testing.T) {
	env := newTestEnv(t)
	env.seedBuddy(t, "b1", rehab.TierGold)
	env.seedPatient(t, "p1")
	env.loadAll(t)

	if err := env.store.AssignBuddy(context.Background(), "p1", "b1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := env.store.Snapshot().FindPatient("p1")
	if p.AssignedBuddy != "b1" {
		t.Errorf("expected b1, got %q", p.AssignedBuddy)
	}
	if err := env.store.AssignBuddy(context.Background(), "p1", "p1"); !rehab.IsValidationError(err) {
		t.Errorf("expected non-buddy to be rejected, got %v", err)
	}
}

func TestSaveCarePlan(t *testing.T) {
	env := newTestEnv(t)
	env.seedPatient(t, "p1")
	env.loadAll(t)

	id, err := env.store.SaveCarePlan(context.Background(), CarePlanInput{
		PatientID: "p1",
		CreatedBy: "d1",
		Goals:     []string{"walk unaided"},
		Exercises: []rehab.Exercise{{Name: "squats", Frequency: "daily"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := env.store.Snapshot()
	if len(snap.CarePlans) != 1 || snap.CarePlans[0].ID != id || snap.CarePlans[0].PatientID != "p1" {
		t.Errorf("unexpected care plans: %+v", snap.CarePlans)
	}
	p, _ := snap.FindPatient("p1")
	if p.CarePlan == nil || len(p.CarePlan.Goals) != 1 {
		t.Errorf("expected plan copied onto patient, got %+v", p.CarePlan)
	}
}

func TestSaveCarePlan_UnknownPatient(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.SaveCarePlan(context.Background(), CarePlanInput{PatientID: "nobody", CreatedBy: "d1"})
	if !rehab.IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestPatientActions_RejectStaffRecords(t *testing.T) {
	env := newTestEnv(t)
	env.seedBuddy(t, "b1", rehab.TierGold)
	env.seedBuddy(t, "b2", rehab.TierSilver)
	env.loadAll(t)
	ctx := context.Background()
	name := "Renamed"

	actions := map[string]func() error{
		"progress": func() error {
			return env.store.UpdatePatientProgress(ctx, "b1", ProgressUpdate{PhysicalProgress: 90, MentalProgress: 90, EmotionalProgress: 90, SocialProgress: 90, UpdatedBy: "n1"})
		},
		"approve": func() error {
			return env.store.ApprovePatientProgress(ctx, "b1", ProgressDecision{ApprovalStatus: rehab.ApprovalApproved, ApprovedBy: "d1"})
		},
		"assign": func() error { return env.store.AssignBuddy(ctx, "b1", "b2") },
		"delete": func() error { return env.store.DeletePatient(ctx, "b1") },
		"update": func() error { return env.store.UpdatePatient(ctx, "b1", PatientPatch{Name: &name}) },
	}
	for action, run := range actions {
		t.Run(action, func(t *testing.T) {
			var ve *rehab.ValidationError
			if err := run(); !errors.As(err, &ve) || ve.Field != "id" {
				t.Errorf("expected id validation error, got %v", err)
			}
		})
	}
	if env.gw.writes() != 0 {
		t.Errorf("expected no writes to staff records, got %d", env.gw.writes())
	}
	var b rehab.Patient
	if err := env.store.get(ctx, UsersCollection, "b1", &b); err != nil {
		t.Fatalf("read b1: %v", err)
	}
	if b.AssignedBuddy != "" || b.OverallProgress != nil || b.Status != rehab.StatusActive {
		t.Errorf("expected buddy record untouched, got %+v", b)
	}
}

func TestUpdatePatientProgress_RequestedByRoles(t *testing.T) {
	for _, role := range []string{"patient", "buddy", "nurse", "doctor", "admin"} {
		env := newTestEnv(t)
		env.seedPatient(t, "p1")
		in := ProgressUpdate{PhysicalProgress: 50, MentalProgress: 50, EmotionalProgress: 50, SocialProgress: 50, UpdatedBy: "u1", RequestedBy: role}
		if err := env.store.UpdatePatientProgress(context.Background(), "p1", in); err != nil {
			t.Errorf("%s: unexpected error: %v", role, err)
		}
	}

	env := newTestEnv(t)
	env.seedPatient(t, "p1")
	in := ProgressUpdate{PhysicalProgress: 50, MentalProgress: 50, EmotionalProgress: 50, SocialProgress: 50, UpdatedBy: "u1", RequestedBy: "janitor"}
	var ve *rehab.ValidationError
	if err := env.store.UpdatePatientProgress(context.Background(), "p1", in); !errors.As(err, &ve) || ve.Field != "requestedBy" {
		t.Errorf("expected requestedBy validation error, got %v", err)
	}
}
