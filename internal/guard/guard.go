// Package guard is the caller-facing scan pipeline: classify, gate on
// secrets, redact with learning extraction, and emit one audit event per
// operation through an injected sink.
package guard

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memshield/memshield/internal/classifier"
	"github.com/memshield/memshield/internal/models"
	"github.com/memshield/memshield/internal/redact"
)

// AuditSink receives one event per scan, validation or vault operation.
// Passing the sink in explicitly keeps the audit trail a first-class output
// instead of a hidden listener.
type AuditSink interface {
	Record(event *models.SecurityEvent)
}

// Scanner composes the classifier, secret gate and redactor in a fixed
// order. Safe for concurrent use: the rule tables are immutable after
// construction and scans share no mutable state.
type Scanner struct {
	classifier *classifier.Classifier
	audit      AuditSink
	logger     *slog.Logger
}

type Option func(*Scanner)

// WithClassifier substitutes the rule tables, mainly for tests and the
// custom-rule engine.
func WithClassifier(c *classifier.Classifier) Option {
	return func(s *Scanner) {
		s.classifier = c
	}
}

func WithAuditSink(sink AuditSink) Option {
	return func(s *Scanner) {
		s.audit = sink
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		classifier: classifier.New(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Per-family confidence increments. The sum saturates at 1.0; like the
// classifier's match-count score this is a monotonic heuristic, not a
// calibrated probability.
const (
	clientConfidence    = 0.2
	financialConfidence = 0.3
	strategyConfidence  = 0.2
)

// ScanContent runs the full pipeline in fixed order: classify, secret gate
// (returns immediately when blocked), client check, financial check,
// strategy check, then redaction if any redaction family matched.
//
// Blocking is solely the secret gate's decision. A high-confidence
// combination of client, financial and strategy matches still redacts
// rather than blocks: business-sensitive knowledge is kept in generalized
// form instead of rejected outright.
func (s *Scanner) ScanContent(content string) *models.ScanResult {
	result := &models.ScanResult{
		IsSafe:           true,
		Classification:   models.ClassificationOpen,
		SanitizedContent: content,
	}

	cls := s.classifier.Classify(content)
	result.Classification = cls.Classification

	if secretRules := cls.RulesIn(models.FamilySecret); len(secretRules) > 0 {
		names := ruleNames(secretRules)
		result.IsSafe = false
		result.Blocked = true
		result.DetectedPatterns = names
		// The warning names rule families, never matched substrings, so the
		// secret cannot leak back through operator logs.
		result.Warnings = []string{
			fmt.Sprintf("SECURITY ALERT: secret material detected - blocked (%s)", strings.Join(names, ", ")),
		}
		result.SanitizedContent = redact.SanitizeSecrets(content)

		s.record(&models.SecurityEvent{
			Type:           models.EventSecurityViolation,
			Classification: result.Classification,
			Details:        fmt.Sprintf("content blocked: %d secret rule(s) matched", len(secretRules)),
			Severity:       highestSeverity(secretRules),
			Result:         models.ResultBlocked,
			Action:         "scan",
		})
		return result
	}

	// A learning summary prepended by an earlier scan describes content this
	// pipeline already redacted. The redaction families evaluate only the
	// body, so the summary's own vocabulary never re-triggers them. Secrets
	// were gated on the full text above, header included.
	header, body := redact.SplitHeader(content)
	if header != "" {
		cls = s.classifier.Classify(body)
		result.Classification = cls.Classification
	}

	if clientRules := cls.RulesIn(models.FamilyClient); len(clientRules) > 0 {
		result.Warnings = append(result.Warnings, "CLIENT DATA WARNING: client information detected - content will be redacted")
		result.DetectedPatterns = append(result.DetectedPatterns, ruleNames(clientRules)...)
		result.Confidence += clientConfidence
		result.LearningData.ClientType, result.LearningData.BusinessType = redact.ExtractClientProfile(body)
		result.RedactionApplied = true
	}

	if financialRules := cls.RulesInTopic(models.TopicFinancial); len(financialRules) > 0 {
		result.Warnings = append(result.Warnings, "FINANCIAL DATA WARNING: financial information detected - content will be redacted")
		result.DetectedPatterns = append(result.DetectedPatterns, ruleNames(financialRules)...)
		result.Confidence += financialConfidence
		result.LearningData.FinancialMetrics = redact.ExtractFinancialMetrics(body)
		result.RedactionApplied = true
	}

	if strategyRules := strategyFamilyRules(cls); len(strategyRules) > 0 {
		result.Warnings = append(result.Warnings, "STRATEGY DATA WARNING: business strategy content detected - content will be redacted")
		result.DetectedPatterns = append(result.DetectedPatterns, ruleNames(strategyRules)...)
		result.Confidence += strategyConfidence
		result.LearningData.StrategyElements = redact.ExtractStrategyElements(body)
		result.RedactionApplied = true
	}

	if result.RedactionApplied {
		// Names and contacts are scrubbed first, then every remaining
		// matched span is stripped outright. The learning header carries the
		// generalizable signal forward, so re-scanning sanitized output
		// finds nothing to redact and the text is a fixed point.
		stripped := s.stripMatches(redact.Scrub(body), cls)
		result.SanitizedContent = redact.Apply(stripped, result.LearningData)
	}

	if result.Confidence > 1.0 {
		result.Confidence = 1.0
	}

	severity := models.SeverityLow
	if result.RedactionApplied {
		severity = models.SeverityMedium
	}
	s.record(&models.SecurityEvent{
		Type:           models.EventDataAccess,
		Classification: result.Classification,
		Details:        fmt.Sprintf("content scanned: classification=%s redacted=%v", result.Classification, result.RedactionApplied),
		Severity:       severity,
		Result:         models.ResultSuccess,
		Action:         "scan",
	})
	return result
}

// ValidateEntry scans an entry's content before persistence. Blocked content
// yields a *BlockedContentError carrying the trigger warnings; otherwise a
// copy of the entry is returned with sanitized content and an attached scan
// record for audit purposes. The full scan result is returned alongside so
// callers can persist it without scanning twice.
func (s *Scanner) ValidateEntry(entry *models.MemoryEntry) (*models.MemoryEntry, *models.ScanResult, error) {
	scan := s.ScanContent(entry.Content)

	if scan.Blocked {
		s.logger.Warn("memory entry blocked",
			"actor", entry.Actor,
			"category", entry.Category,
			"patterns", scan.DetectedPatterns)
		return nil, scan, &BlockedContentError{
			Warnings:  scan.Warnings,
			RuleNames: scan.DetectedPatterns,
		}
	}

	for _, warning := range scan.Warnings {
		s.logger.Warn("memory entry warning", "actor", entry.Actor, "warning", warning)
	}

	validated := *entry
	validated.Content = scan.SanitizedContent
	validated.SecurityScan = &models.SecurityScan{
		IsSafe:           scan.IsSafe,
		Warnings:         scan.Warnings,
		DetectedPatterns: scan.DetectedPatterns,
		Confidence:       scan.Confidence,
		Timestamp:        time.Now().UTC(),
	}
	return &validated, scan, nil
}

func (s *Scanner) record(event *models.SecurityEvent) {
	if s.audit == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.audit.Record(event)
}

// stripMatches replaces the text matched by every redaction-family rule with
// the generic token.
func (s *Scanner) stripMatches(content string, cls *classifier.Result) string {
	stripped := content
	for _, rule := range cls.MatchedRules {
		if rule.Family == models.FamilySecret {
			continue
		}
		stripped = rule.Pattern.ReplaceAllString(stripped, redact.Token)
	}
	return stripped
}

// strategyFamilyRules gathers the industry rules that feed the strategy
// branch: strategy, IP and legal topics all redact with keyword extraction.
func strategyFamilyRules(cls *classifier.Result) []*classifier.Rule {
	var rules []*classifier.Rule
	rules = append(rules, cls.RulesInTopic(models.TopicStrategy)...)
	rules = append(rules, cls.RulesInTopic(models.TopicIntellectualProperty)...)
	rules = append(rules, cls.RulesInTopic(models.TopicLegal)...)
	return rules
}

func ruleNames(rules []*classifier.Rule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.ID
	}
	return names
}

func highestSeverity(rules []*classifier.Rule) models.Severity {
	rank := map[models.Severity]int{
		models.SeverityLow:      1,
		models.SeverityMedium:   2,
		models.SeverityHigh:     3,
		models.SeverityCritical: 4,
	}
	highest := models.SeverityLow
	for _, r := range rules {
		if rank[r.Severity] > rank[highest] {
			highest = r.Severity
		}
	}
	return highest
}
