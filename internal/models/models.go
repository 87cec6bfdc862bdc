package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StringArray is an alias for pq.StringArray to handle PostgreSQL arrays
type StringArray = pq.StringArray

// Classification is an ordered data-sensitivity level. Always compare
// classifications via Level(), never by string equality: a scan that matches
// several rules resolves to the highest matched level.
type Classification string

const (
	ClassificationOpen         Classification = "open"
	ClassificationConfidential Classification = "confidential"
	ClassificationSecret       Classification = "secret"
	ClassificationTopSecret    Classification = "top_secret"
)

// Level returns the ordinal rank of a classification. Unknown values rank
// below OPEN so a corrupted record never outranks a real match.
func (c Classification) Level() int {
	switch c {
	case ClassificationOpen:
		return 1
	case ClassificationConfidential:
		return 2
	case ClassificationSecret:
		return 3
	case ClassificationTopSecret:
		return 4
	default:
		return 0
	}
}

// MaxClassification returns the higher-ranked of two classifications.
func MaxClassification(a, b Classification) Classification {
	if b.Level() > a.Level() {
		return b
	}
	return a
}

// RuleFamily partitions detection rules into the three independently
// evaluated families. Each family answers a different question, so matches
// are never deduplicated across families.
type RuleFamily string

const (
	FamilySecret   RuleFamily = "secret"   // hard secrets: always block
	FamilyClient   RuleFamily = "client"   // client/PII data: redact
	FamilyIndustry RuleFamily = "industry" // business-sensitive data: redact + learn
)

// IndustryTopic subdivides the industry family for learning extraction.
type IndustryTopic string

const (
	TopicFinancial            IndustryTopic = "financial"
	TopicStrategy             IndustryTopic = "strategy"
	TopicIntellectualProperty IndustryTopic = "intellectual_property"
	TopicLegal                IndustryTopic = "legal"
)

// RuleAction is what a matching rule demands of the scan pipeline.
type RuleAction string

const (
	ActionBlock   RuleAction = "block"
	ActionWarn    RuleAction = "warn"
	ActionEncrypt RuleAction = "encrypt"
	ActionRedact  RuleAction = "redact"
	ActionAudit   RuleAction = "audit"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Role is an actor role used for access decisions and audit attribution.
type Role string

const (
	RoleGuest           Role = "guest"
	RoleUser            Role = "user"
	RoleDeveloper       Role = "developer"
	RoleAdmin           Role = "admin"
	RoleSecurityOfficer Role = "security_officer"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleUser, RoleDeveloper, RoleAdmin, RoleSecurityOfficer:
		return true
	}
	return false
}

// LearningData is the generalizable signal extracted from content before the
// identifying specifics are redacted. Computed once per scan; the caller
// decides whether to keep it.
type LearningData struct {
	ClientType       string            `json:"client_type,omitempty"`
	BusinessType     string            `json:"business_type,omitempty"`
	FinancialMetrics map[string]string `json:"financial_metrics,omitempty"`
	StrategyElements []string          `json:"strategy_elements,omitempty"`
}

// Empty reports whether no learning signal was extracted.
func (d LearningData) Empty() bool {
	return d.ClientType == "" && d.BusinessType == "" &&
		len(d.FinancialMetrics) == 0 && len(d.StrategyElements) == 0
}

// ScanResult is the verdict for a single content scan.
//
// Invariants: Blocked is true iff at least one secret-family rule matched,
// and Blocked always takes precedence over RedactionApplied (the scan returns
// on the first secret hit without attempting redaction).
type ScanResult struct {
	IsSafe           bool           `json:"is_safe"`
	Blocked          bool           `json:"blocked"`
	Warnings         []string       `json:"warnings,omitempty"`
	DetectedPatterns []string       `json:"detected_patterns,omitempty"`
	Confidence       float64        `json:"confidence"`
	Classification   Classification `json:"classification"`
	SanitizedContent string         `json:"sanitized_content"`
	RedactionApplied bool           `json:"redaction_applied"`
	LearningData     LearningData   `json:"learning_data"`
}

// SecurityScan is the audit record attached to a validated memory entry.
type SecurityScan struct {
	IsSafe           bool      `json:"is_safe"`
	Warnings         []string  `json:"warnings,omitempty"`
	DetectedPatterns []string  `json:"detected_patterns,omitempty"`
	Confidence       float64   `json:"confidence"`
	Timestamp        time.Time `json:"timestamp"`
}

// MemoryEntry is a unit of content submitted for validation before
// persistence. After validation, Content holds the sanitized text and
// SecurityScan records the verdict.
type MemoryEntry struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	Actor        string        `json:"actor" db:"actor"`
	Category     string        `json:"category" db:"category"`
	Content      string        `json:"content" db:"content"`
	Importance   int           `json:"importance" db:"importance"`
	SecurityScan *SecurityScan `json:"security_scan,omitempty" db:"-"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// EventType enumerates auditable operations.
type EventType string

const (
	EventDataAccess           EventType = "data_access"
	EventDataModification     EventType = "data_modification"
	EventAuthentication       EventType = "authentication"
	EventAuthorization        EventType = "authorization"
	EventEncryption           EventType = "encryption"
	EventDecryption           EventType = "decryption"
	EventClassificationChange EventType = "classification_change"
	EventSecurityViolation    EventType = "security_violation"
	EventSystemError          EventType = "system_error"
)

type EventResult string

const (
	ResultSuccess EventResult = "success"
	ResultFailure EventResult = "failure"
	ResultBlocked EventResult = "blocked"
)

// SecurityEvent is one immutable entry in the append-only audit trail. Each
// scan, validation, access check, encrypt and decrypt emits exactly one.
type SecurityEvent struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	Type           EventType      `json:"type" db:"event_type"`
	Actor          string         `json:"actor" db:"actor"`
	ActorRole      Role           `json:"actor_role" db:"actor_role"`
	Classification Classification `json:"classification" db:"classification"`
	Timestamp      time.Time      `json:"timestamp" db:"created_at"`
	Details        string         `json:"details" db:"details"`
	Severity       Severity       `json:"severity" db:"severity"`
	Result         EventResult    `json:"result" db:"result"`
	Resource       string         `json:"resource,omitempty" db:"resource"`
	Action         string         `json:"action,omitempty" db:"action"`
	Metadata       JSONB          `json:"metadata,omitempty" db:"metadata"`
}

// ScanRecord is the persisted outcome of a scan, linked to an entry when the
// scan was part of entry validation.
type ScanRecord struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	EntryID          *uuid.UUID     `json:"entry_id,omitempty" db:"entry_id"`
	Classification   Classification `json:"classification" db:"classification"`
	Blocked          bool           `json:"blocked" db:"blocked"`
	RedactionApplied bool           `json:"redaction_applied" db:"redaction_applied"`
	Confidence       float64        `json:"confidence" db:"confidence"`
	DetectedPatterns StringArray    `json:"detected_patterns" db:"detected_patterns"`
	Warnings         StringArray    `json:"warnings" db:"warnings"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}
