package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/domain/stats"
	"github.com/rehab/rehab/internal/platform/events"
)

func TestAddUser_BuddyDefaults(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.store.AddUser(context.Background(), NewUser{Email: "b@rehab.test", Name: "Bea", Role: "Medical Buddy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, ok := env.store.Snapshot().FindUser(id)
	if !ok {
		t.Fatal("expected user after reload")
	}
	if u.Role != rehab.RoleBuddy || u.Tier != rehab.TierBronze || u.Status != rehab.StatusActive {
		t.Errorf("unexpected user: %+v", u)
	}
	if env.accounts.Count() != 0 {
		t.Error("expected no account without a password")
	}
}

func TestAddUser_WithPasswordCreatesAccount(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.store.AddUser(context.Background(), NewUser{Email: "doc@rehab.test", Name: "Doc", Role: "doctor", Password: "secret1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acct, err := env.accounts.Authenticate(context.Background(), "doc@rehab.test", "secret1")
	if err != nil {
		t.Fatalf("expected account: %v", err)
	}
	if acct.UID != id {
		t.Errorf("expected user id to be the account uid, got %s vs %s", id, acct.UID)
	}
}

func TestAddUser_EmailValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.store.AddUser(context.Background(), NewUser{Email: "not-an-email", Name: "X", Role: "nurse"})
	var ve *rehab.ValidationError
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Errorf("expected email validation error, got %v", err)
	}
	if _, err := env.store.AddUser(context.Background(), NewUser{Email: "a@b.co", Name: "X", Role: "nurse"}); err != nil {
		t.Errorf("expected a@b.co to be accepted, got %v", err)
	}
}

func TestAddUser_UnknownRole(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.AddUser(context.Background(), NewUser{Email: "a@b.co", Name: "X", Role: "janitor"})
	if !rehab.IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	env := newTestEnv(t)
	env.seedBuddy(t, "b1", rehab.TierBronze)
	tier := "gold"
	email := "not-an-email"

	if err := env.store.UpdateUser(context.Background(), "b1", UserPatch{Email: &email}); !rehab.IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := env.store.UpdateUser(context.Background(), "b1", UserPatch{Tier: &tier}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, _ := env.store.Snapshot().FindUser("b1")
	if u.Tier != rehab.TierGold {
		t.Errorf("expected canonical Gold tier, got %q", u.Tier)
	}
	if u.UpdatedAt == nil || !u.UpdatedAt.Equal(testNow) {
		t.Errorf("expected updatedAt stamp, got %v", u.UpdatedAt)
	}
}

func TestSubmitFeedback(t *testing.T) {
	env := newTestEnv(t)
	env.seedBuddy(t, "b1", rehab.TierBronze)
	ctx := context.Background()

	for _, positive := range []bool{true, false} {
		if err := env.store.SubmitFeedback(ctx, "b1", FeedbackInput{From: "d1", Positive: positive, Comment: "noted"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	u, _ := env.store.Snapshot().FindUser("b1")
	if len(u.Feedback) != 2 || !u.Feedback[0].Positive || u.Feedback[1].Positive {
		t.Errorf("expected feedback appended in order, got %+v", u.Feedback)
	}
	if err := env.store.SubmitFeedback(ctx, "b1", FeedbackInput{}); !rehab.IsValidationError(err) {
		t.Errorf("expected validation error without author, got %v", err)
	}
}

func TestRecalculateBuddyTiers(t *testing.T) {
	env := newTestEnv(t)
	env.seedBuddy(t, "b1", rehab.TierBronze)
	env.seedBuddy(t, "b2", rehab.TierGold)
	env.seedBuddy(t, "b3", rehab.TierSilver)
	rate := func(buddy string, r int) {
		env.seed(t, SessionsCollection, rehab.Session{
			PatientID: "p1", BuddyID: buddy, Date: "2024-06-20",
			Status: rehab.SessionCompleted, PatientRating: &r,
		})
	}
	rate("b1", 5)
	rate("b1", 5)
	rate("b1", 4)
	rate("b2", 2)
	env.loadAll(t)

	changes, err := env.store.RecalculateBuddyTiers(context.Background(), stats.Last30Days)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", changes)
	}
	snap := env.store.Snapshot()
	if u, _ := snap.FindUser("b1"); u.Tier != rehab.TierGold {
		t.Errorf("expected b1 promoted to Gold, got %s", u.Tier)
	}
	if u, _ := snap.FindUser("b2"); u.Tier != rehab.TierBronze {
		t.Errorf("expected b2 demoted to Bronze, got %s", u.Tier)
	}
	if u, _ := snap.FindUser("b3"); u.Tier != rehab.TierSilver {
		t.Errorf("expected unrated b3 untouched, got %s", u.Tier)
	}
	n := 0
	for _, typ := range env.events.types() {
		if typ == events.BuddyTierChanged {
			n++
		}
	}
	if n != 2 {
		t.Errorf("expected 2 tier events, got %d", n)
	}
}
