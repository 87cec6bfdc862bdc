// Package rules manages operator-defined detection rules. Custom rules are
// validated at create time, compiled on load, and merged into the built-in
// tables by declared family.
package rules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/memshield/memshield/internal/classifier"
	"github.com/memshield/memshield/internal/models"
)

// CustomRule is a user-defined detection rule. Pattern is stored as source
// text and compiled when the engine loads.
type CustomRule struct {
	ID             string                `json:"id" db:"id"`
	Name           string                `json:"name" db:"name"`
	Description    string                `json:"description" db:"description"`
	Family         models.RuleFamily     `json:"family" db:"family"`
	Topic          models.IndustryTopic  `json:"topic,omitempty" db:"topic"`
	Pattern        string                `json:"pattern" db:"pattern"`
	Classification models.Classification `json:"classification" db:"classification"`
	Action         models.RuleAction     `json:"action" db:"action"`
	Severity       models.Severity       `json:"severity" db:"severity"`
	Enabled        bool                  `json:"enabled" db:"enabled"`
	Priority       int                   `json:"priority" db:"priority"`
	CreatedBy      string                `json:"created_by" db:"created_by"`
	CreatedAt      time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at" db:"updated_at"`
}

// Store defines the interface for rule persistence.
type Store interface {
	GetRule(ctx context.Context, id string) (*CustomRule, error)
	ListRules(ctx context.Context, enabledOnly bool) ([]*CustomRule, error)
	CreateRule(ctx context.Context, rule *CustomRule) error
	UpdateRule(ctx context.Context, rule *CustomRule) error
	DeleteRule(ctx context.Context, id string) error
}

// Engine loads custom rules, compiles them, and produces the combined rule
// set used to build scanners. Loaded rules are swapped atomically so a
// classifier built mid-reload sees a consistent table.
type Engine struct {
	store Store

	mu       sync.RWMutex
	compiled []*classifier.Rule
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// LoadRules loads and compiles all enabled custom rules.
func (e *Engine) LoadRules(ctx context.Context) error {
	customs, err := e.store.ListRules(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	compiled := make([]*classifier.Rule, 0, len(customs))
	for _, custom := range customs {
		rule, err := Compile(custom)
		if err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", custom.ID, err)
		}
		compiled = append(compiled, rule)
	}

	e.mu.Lock()
	e.compiled = compiled
	e.mu.Unlock()
	return nil
}

// Compile turns a custom rule into a runnable classifier rule.
func Compile(custom *CustomRule) (*classifier.Rule, error) {
	if err := validate(custom); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(custom.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", custom.Pattern, err)
	}
	return &classifier.Rule{
		ID:             custom.ID,
		Name:           custom.Name,
		Family:         custom.Family,
		Topic:          custom.Topic,
		Pattern:        re,
		Classification: custom.Classification,
		Action:         custom.Action,
		Severity:       custom.Severity,
		Description:    custom.Description,
	}, nil
}

// MergedRules returns the built-in tables plus every loaded custom rule.
// The result feeds classifier.NewWithRules.
func (e *Engine) MergedRules() []*classifier.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	defaults := classifier.DefaultRules()
	merged := make([]*classifier.Rule, 0, len(defaults)+len(e.compiled))
	merged = append(merged, defaults...)
	merged = append(merged, e.compiled...)
	return merged
}

func validate(rule *CustomRule) error {
	switch rule.Family {
	case models.FamilySecret, models.FamilyClient, models.FamilyIndustry:
	default:
		return fmt.Errorf("unknown rule family %q", rule.Family)
	}
	if rule.Family == models.FamilyIndustry {
		switch rule.Topic {
		case models.TopicFinancial, models.TopicStrategy, models.TopicIntellectualProperty, models.TopicLegal:
		default:
			return fmt.Errorf("industry rule needs a valid topic, got %q", rule.Topic)
		}
	}
	if rule.Classification.Level() == 0 {
		return fmt.Errorf("unknown classification %q", rule.Classification)
	}
	return ValidatePattern(rule.Pattern)
}

// CreateRule validates and persists a new custom rule, then reloads the
// compiled set if the rule is enabled.
func (e *Engine) CreateRule(ctx context.Context, rule *CustomRule) error {
	if err := validate(rule); err != nil {
		return err
	}
	if err := e.store.CreateRule(ctx, rule); err != nil {
		return err
	}
	if rule.Enabled {
		return e.LoadRules(ctx)
	}
	return nil
}

// UpdateRule validates and persists changes to a rule, then reloads.
func (e *Engine) UpdateRule(ctx context.Context, rule *CustomRule) error {
	if err := validate(rule); err != nil {
		return err
	}
	if err := e.store.UpdateRule(ctx, rule); err != nil {
		return err
	}
	return e.LoadRules(ctx)
}

// DeleteRule deletes a rule and reloads.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	if err := e.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	return e.LoadRules(ctx)
}

// EnableRule enables a rule.
func (e *Engine) EnableRule(ctx context.Context, id string) error {
	return e.setEnabled(ctx, id, true)
}

// DisableRule disables a rule.
func (e *Engine) DisableRule(ctx context.Context, id string) error {
	return e.setEnabled(ctx, id, false)
}

func (e *Engine) setEnabled(ctx context.Context, id string, enabled bool) error {
	rule, err := e.store.GetRule(ctx, id)
	if err != nil {
		return err
	}
	rule.Enabled = enabled
	if err := e.store.UpdateRule(ctx, rule); err != nil {
		return err
	}
	return e.LoadRules(ctx)
}

// TestResult is the outcome of running one rule against sample content.
type TestResult struct {
	Matched bool     `json:"matched"`
	Matches []string `json:"matches,omitempty"`
}

// TestRule runs a rule against sample content without persisting anything.
func (e *Engine) TestRule(rule *CustomRule, content string) (*TestResult, error) {
	compiled, err := Compile(rule)
	if err != nil {
		return nil, err
	}
	matches := compiled.Pattern.FindAllString(content, -1)
	return &TestResult{Matched: len(matches) > 0, Matches: matches}, nil
}

// GetRules returns all rules regardless of enabled state.
func (e *Engine) GetRules(ctx context.Context) ([]*CustomRule, error) {
	return e.store.ListRules(ctx, false)
}

// GetRule returns a single rule by ID.
func (e *Engine) GetRule(ctx context.Context, id string) (*CustomRule, error) {
	return e.store.GetRule(ctx, id)
}

// ValidatePattern validates a regex pattern.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return errors.New("pattern cannot be empty")
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}
