// Package access decides whether an actor role may touch content at a given
// classification. Decisions come from a static policy table and every check
// emits one authorization event.
package access

import (
	"fmt"
	"log/slog"

	"github.com/memshield/memshield/internal/models"
)

// Permission names an operation an actor may perform on a resource class.
type Permission string

const (
	PermRead    Permission = "read"
	PermWrite   Permission = "write"
	PermDelete  Permission = "delete"
	PermEncrypt Permission = "encrypt"
	PermDecrypt Permission = "decrypt"
	PermAudit   Permission = "audit"
	PermManage  Permission = "manage_rules"
)

// Policy binds a role to its classification ceiling and permission set.
type Policy struct {
	Role              models.Role
	MaxClassification models.Classification
	Permissions       []Permission
}

func (p Policy) allows(perm Permission) bool {
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// DefaultPolicies is the built-in role table. Guests see only open content;
// the security officer can audit and decrypt everything but cannot modify
// entries, keeping the audit role separate from the data path.
func DefaultPolicies() map[models.Role]Policy {
	return map[models.Role]Policy{
		models.RoleGuest: {
			Role:              models.RoleGuest,
			MaxClassification: models.ClassificationOpen,
			Permissions:       []Permission{PermRead},
		},
		models.RoleUser: {
			Role:              models.RoleUser,
			MaxClassification: models.ClassificationConfidential,
			Permissions:       []Permission{PermRead, PermWrite},
		},
		models.RoleDeveloper: {
			Role:              models.RoleDeveloper,
			MaxClassification: models.ClassificationSecret,
			Permissions:       []Permission{PermRead, PermWrite, PermEncrypt, PermDecrypt},
		},
		models.RoleAdmin: {
			Role:              models.RoleAdmin,
			MaxClassification: models.ClassificationTopSecret,
			Permissions:       []Permission{PermRead, PermWrite, PermDelete, PermEncrypt, PermDecrypt, PermAudit, PermManage},
		},
		models.RoleSecurityOfficer: {
			Role:              models.RoleSecurityOfficer,
			MaxClassification: models.ClassificationTopSecret,
			Permissions:       []Permission{PermRead, PermEncrypt, PermDecrypt, PermAudit, PermManage},
		},
	}
}

// Sink receives authorization events.
type Sink interface {
	Record(event *models.SecurityEvent)
}

// Controller evaluates access requests against the policy table.
type Controller struct {
	policies map[models.Role]Policy
	audit    Sink
	logger   *slog.Logger
}

func NewController(audit Sink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		policies: DefaultPolicies(),
		audit:    audit,
		logger:   logger,
	}
}

// Decision is the outcome of a single access check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Check evaluates one access request and records it. Unknown roles are
// denied outright rather than defaulting to guest.
func (c *Controller) Check(actor string, role models.Role, classification models.Classification, resource string, perm Permission) Decision {
	policy, ok := c.policies[role]

	var decision Decision
	switch {
	case !ok:
		decision = Decision{Reason: fmt.Sprintf("unknown role %q", role)}
	case classification.Level() > policy.MaxClassification.Level():
		decision = Decision{Reason: fmt.Sprintf("role %s cleared to %s, content is %s", role, policy.MaxClassification, classification)}
	case !policy.allows(perm):
		decision = Decision{Reason: fmt.Sprintf("role %s lacks %s permission", role, perm)}
	default:
		decision = Decision{Allowed: true, Reason: "granted"}
	}

	result := models.ResultSuccess
	severity := models.SeverityLow
	if !decision.Allowed {
		result = models.ResultBlocked
		severity = models.SeverityMedium
		c.logger.Warn("access denied",
			"actor", actor, "role", role,
			"classification", classification,
			"resource", resource, "permission", perm,
			"reason", decision.Reason)
	}
	if c.audit != nil {
		c.audit.Record(&models.SecurityEvent{
			Type:           models.EventAuthorization,
			Actor:          actor,
			ActorRole:      role,
			Classification: classification,
			Details:        decision.Reason,
			Severity:       severity,
			Result:         result,
			Resource:       resource,
			Action:         string(perm),
		})
	}
	return decision
}
