package access

import (
	"testing"

	"github.com/memshield/memshield/internal/models"
)

type captureSink struct {
	events []*models.SecurityEvent
}

func (c *captureSink) Record(event *models.SecurityEvent) {
	c.events = append(c.events, event)
}

func TestController_Check(t *testing.T) {
	c := NewController(nil, nil)

	tests := []struct {
		name           string
		role           models.Role
		classification models.Classification
		perm           Permission
		allowed        bool
	}{
		{"guest reads open", models.RoleGuest, models.ClassificationOpen, PermRead, true},
		{"guest denied confidential", models.RoleGuest, models.ClassificationConfidential, PermRead, false},
		{"guest cannot write", models.RoleGuest, models.ClassificationOpen, PermWrite, false},
		{"user writes confidential", models.RoleUser, models.ClassificationConfidential, PermWrite, true},
		{"user denied secret", models.RoleUser, models.ClassificationSecret, PermRead, false},
		{"user cannot encrypt", models.RoleUser, models.ClassificationConfidential, PermEncrypt, false},
		{"developer encrypts secret", models.RoleDeveloper, models.ClassificationSecret, PermEncrypt, true},
		{"developer denied top secret", models.RoleDeveloper, models.ClassificationTopSecret, PermRead, false},
		{"developer cannot audit", models.RoleDeveloper, models.ClassificationSecret, PermAudit, false},
		{"admin deletes top secret", models.RoleAdmin, models.ClassificationTopSecret, PermDelete, true},
		{"admin manages rules", models.RoleAdmin, models.ClassificationOpen, PermManage, true},
		{"security officer audits top secret", models.RoleSecurityOfficer, models.ClassificationTopSecret, PermAudit, true},
		{"security officer decrypts top secret", models.RoleSecurityOfficer, models.ClassificationTopSecret, PermDecrypt, true},
		{"security officer cannot write", models.RoleSecurityOfficer, models.ClassificationOpen, PermWrite, false},
		{"security officer cannot delete", models.RoleSecurityOfficer, models.ClassificationOpen, PermDelete, false},
		{"unknown role denied", models.Role("intern"), models.ClassificationOpen, PermRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := c.Check("tester", tt.role, tt.classification, "entries", tt.perm)
			if d.Allowed != tt.allowed {
				t.Errorf("expected allowed=%v, got %v (%s)", tt.allowed, d.Allowed, d.Reason)
			}
			if d.Reason == "" {
				t.Error("every decision must carry a reason")
			}
		})
	}
}

func TestController_EmitsAuthorizationEvents(t *testing.T) {
	sink := &captureSink{}
	c := NewController(sink, nil)

	c.Check("alice", models.RoleUser, models.ClassificationOpen, "entries", PermRead)
	c.Check("bob", models.RoleGuest, models.ClassificationSecret, "entries", PermRead)

	if len(sink.events) != 2 {
		t.Fatalf("expected one event per check, got %d", len(sink.events))
	}

	granted, denied := sink.events[0], sink.events[1]
	if granted.Type != models.EventAuthorization || granted.Result != models.ResultSuccess {
		t.Errorf("unexpected granted event: type=%s result=%s", granted.Type, granted.Result)
	}
	if granted.Actor != "alice" || granted.ActorRole != models.RoleUser {
		t.Error("granted event missing actor attribution")
	}
	if denied.Result != models.ResultBlocked {
		t.Errorf("expected denied check to record a blocked result, got %s", denied.Result)
	}
	if denied.Severity != models.SeverityMedium {
		t.Errorf("expected medium severity on denial, got %s", denied.Severity)
	}
	if denied.Action != string(PermRead) {
		t.Errorf("expected the permission as the event action, got %s", denied.Action)
	}
}

func TestDefaultPolicies_CoverAllRoles(t *testing.T) {
	policies := DefaultPolicies()
	for _, role := range []models.Role{
		models.RoleGuest,
		models.RoleUser,
		models.RoleDeveloper,
		models.RoleAdmin,
		models.RoleSecurityOfficer,
	} {
		policy, ok := policies[role]
		if !ok {
			t.Errorf("missing policy for role %s", role)
			continue
		}
		if policy.MaxClassification.Level() == 0 {
			t.Errorf("role %s has an invalid classification ceiling", role)
		}
		if len(policy.Permissions) == 0 {
			t.Errorf("role %s has no permissions", role)
		}
	}
}
