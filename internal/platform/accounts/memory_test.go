package accounts

import (
	"context"
	"errors"
	"testing"
)

func TestMemory_CreateAndAuthenticate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	acct, err := m.CreateUserAccount(ctx, " Ana@Clinic.io ", "secret1", Profile{Name: "Ana", Role: "patient"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.UID == "" {
		t.Fatal("expected uid")
	}
	if acct.Email != "ana@clinic.io" {
		t.Errorf("expected normalized email, got %q", acct.Email)
	}

	got, err := m.Authenticate(ctx, "ana@clinic.io", "secret1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UID != acct.UID || got.Profile.Role != "patient" {
		t.Errorf("unexpected account: %+v", got)
	}
}

func TestMemory_WrongPassword(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.CreateUserAccount(ctx, "a@b.co", "secret1", Profile{})
	if _, err := m.Authenticate(ctx, "a@b.co", "nope-nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := m.Authenticate(ctx, "x@b.co", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestMemory_DuplicateEmail(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.CreateUserAccount(ctx, "a@b.co", "secret1", Profile{})
	if _, err := m.CreateUserAccount(ctx, "A@B.CO", "secret2", Profile{}); !errors.Is(err, ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}
}

func TestMemory_WeakPassword(t *testing.T) {
	m := NewMemory()
	if _, err := m.CreateUserAccount(context.Background(), "a@b.co", "123", Profile{}); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
	if m.Count() != 0 {
		t.Error("expected no account to be created")
	}
}

func TestMemory_DeleteAccount(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	acct, _ := m.CreateUserAccount(ctx, "a@b.co", "secret1", Profile{})
	if err := m.DeleteAccount(ctx, acct.UID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Count() != 0 {
		t.Error("expected account to be removed")
	}
	if err := m.DeleteAccount(ctx, acct.UID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	// the email is free again
	if _, err := m.CreateUserAccount(ctx, "a@b.co", "secret1", Profile{}); err != nil {
		t.Errorf("expected email to be reusable, got %v", err)
	}
}
