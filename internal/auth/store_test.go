package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/memshield/memshield/internal/models"
)

// skipIfNoTestDB skips the test if no test database is available
func skipIfNoTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=memshield password=memshield_password dbname=memshield_test sslmode=disable"
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("Skipping test, database not available: %v", err)
		return nil
	}
	return db
}

// Role validation happens before any query is issued, so these paths need no
// database.
func TestUserStore_RejectsUnknownRoles(t *testing.T) {
	s := NewPostgresUserStore(nil)
	ctx := context.Background()

	err := s.CreateUser(ctx, &User{Email: "a@example.com", Role: "superuser"})
	if !errors.Is(err, ErrUnknownRole) {
		t.Errorf("CreateUser with unknown role: expected ErrUnknownRole, got %v", err)
	}

	err = s.UpdateUser(ctx, &User{ID: "x", Role: "root"})
	if !errors.Is(err, ErrUnknownRole) {
		t.Errorf("UpdateUser with unknown role: expected ErrUnknownRole, got %v", err)
	}

	if _, err := s.ListUsers(ctx, "superuser"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("ListUsers with unknown role: expected ErrUnknownRole, got %v", err)
	}
}

func TestUserStore_ListUsersByRole(t *testing.T) {
	db := skipIfNoTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	s := NewPostgresUserStore(db)
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	officer := &User{
		Email:    fmt.Sprintf("officer-%d@example.com", suffix),
		Name:     "Officer",
		Password: "hash",
		Role:     models.RoleSecurityOfficer,
	}
	plain := &User{
		Email:    fmt.Sprintf("plain-%d@example.com", suffix),
		Name:     "Plain",
		Password: "hash",
	}
	for _, u := range []*User{officer, plain} {
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		defer s.DeleteUser(ctx, u.ID)
	}

	if plain.Role != models.RoleUser {
		t.Errorf("expected the default role %s, got %s", models.RoleUser, plain.Role)
	}

	officers, err := s.ListUsers(ctx, models.RoleSecurityOfficer)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	found := false
	for _, u := range officers {
		if u.Role != models.RoleSecurityOfficer {
			t.Errorf("role filter leaked a %s user: %s", u.Role, u.Email)
		}
		if u.ID == officer.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected the created security officer in the filtered list")
	}

	all, err := s.ListUsers(ctx, "")
	if err != nil {
		t.Fatalf("ListUsers without filter failed: %v", err)
	}
	if len(all) < 2 {
		t.Errorf("expected both created users in the unfiltered list, got %d users", len(all))
	}
}
