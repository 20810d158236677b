package services

import (
	"testing"

	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

func TestRegisterDefaultsToFreeTier(t *testing.T) {
	users := &fakeUserStore{users: map[string]*models.User{}}
	svc := NewUserService(users)

	if err := svc.Register(testCtx(), "uid-1", "jane@example.com", "Jane", "Doe"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u := users.users["uid-1"]
	if u == nil {
		t.Fatal("user not stored")
	}
	if u.Tier != models.TierFree {
		t.Fatalf("new users must start on the free tier, got %s", u.Tier)
	}
	if u.CanBulkSync() {
		t.Fatal("free tier must not allow bulk sync")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	users := &fakeUserStore{users: map[string]*models.User{
		"uid-1": {UID: "uid-1"},
	}}
	svc := NewUserService(users)

	err := svc.Register(testCtx(), "uid-1", "jane@example.com", "Jane", "Doe")
	if _, ok := err.(*errs.AlreadyExistsError); !ok {
		t.Fatalf("expected AlreadyExistsError, got %v", err)
	}
}

func TestRegisterRequiresIdentity(t *testing.T) {
	svc := NewUserService(&fakeUserStore{users: map[string]*models.User{}})

	if err := svc.Register(testCtx(), "", "jane@example.com", "Jane", "Doe"); err == nil {
		t.Fatal("missing uid must be rejected")
	}
	if err := svc.Register(testCtx(), "uid-1", "", "Jane", "Doe"); err == nil {
		t.Fatal("missing email must be rejected")
	}
}
