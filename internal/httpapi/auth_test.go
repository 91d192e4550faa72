package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Barcode:   "EMP-9000",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := legacyAdminStore()
	manager := NewAuthManager("test-secret", time.Hour, "123456", users)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Username != "admin" || resp.Role != "admin" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	stored, _ := users.ListUsers(context.Background())
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if !strings.HasPrefix(stored[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored[0].Password)
	}
}

func TestBarcodeLoginIssuesParsableToken(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "123456", legacyAdminStore())

	resp, err := manager.LoginWithBarcode(context.Background(), domain.BarcodeLoginRequest{Barcode: "EMP-9000"})
	if err != nil {
		t.Fatalf("barcode login failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	if _, err := manager.LoginWithBarcode(context.Background(), domain.BarcodeLoginRequest{Barcode: "EMP-0000"}); err == nil {
		t.Fatalf("expected unknown barcode to fail")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, "123456", legacyAdminStore())
	verifier := NewAuthManager("secret-two", time.Hour, "123456", legacyAdminStore())

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestCreateUserStoresPasswordHashAndBarcode(t *testing.T) {
	users := legacyAdminStore()
	manager := NewAuthManager("test-secret", time.Hour, "123456", users)

	created, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "kasirbaru",
		Password: "pass1234",
		Barcode:  "EMP-0101",
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.Role != "cashier" {
		t.Fatalf("expected default role cashier, got %s", created.Role)
	}

	stored := users.users["kasirbaru"]
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", stored.Password)
	}
	if _, err := manager.LoginWithBarcode(context.Background(), domain.BarcodeLoginRequest{Barcode: "EMP-0101"}); err != nil {
		t.Fatalf("barcode login for new user failed: %v", err)
	}

	_, err = manager.CreateUser(context.Background(), domain.UserCreateRequest{Username: "kasirlain", Password: "pass1234", Barcode: "EMP-0101"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate barcode error, got %v", err)
	}
	_, err = manager.CreateUser(context.Background(), domain.UserCreateRequest{Username: "kasirtiga", Password: "pass1234", Role: "owner"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for unknown role, got %v", err)
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "654321", &userStoreStub{})

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}
	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}
	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}
