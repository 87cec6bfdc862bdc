package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/memshield/memshield/internal/classifier"
	"github.com/memshield/memshield/internal/models"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	rules map[string]*CustomRule
}

func newMemStore() *memStore {
	return &memStore{rules: make(map[string]*CustomRule)}
}

func (m *memStore) GetRule(_ context.Context, id string) (*CustomRule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	copied := *rule
	return &copied, nil
}

func (m *memStore) ListRules(_ context.Context, enabledOnly bool) ([]*CustomRule, error) {
	var out []*CustomRule
	for _, rule := range m.rules {
		if enabledOnly && !rule.Enabled {
			continue
		}
		copied := *rule
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memStore) CreateRule(_ context.Context, rule *CustomRule) error {
	copied := *rule
	m.rules[rule.ID] = &copied
	return nil
}

func (m *memStore) UpdateRule(_ context.Context, rule *CustomRule) error {
	if _, ok := m.rules[rule.ID]; !ok {
		return ErrRuleNotFound
	}
	copied := *rule
	m.rules[rule.ID] = &copied
	return nil
}

func (m *memStore) DeleteRule(_ context.Context, id string) error {
	if _, ok := m.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

func sampleRule() *CustomRule {
	return &CustomRule{
		ID:             "custom-internal-hostname",
		Name:           "Internal Hostname",
		Family:         models.FamilySecret,
		Pattern:        `\b[a-z0-9-]+\.corp\.internal\b`,
		Classification: models.ClassificationSecret,
		Action:         models.ActionBlock,
		Severity:       models.SeverityHigh,
		Enabled:        true,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CustomRule)
		wantErr bool
	}{
		{"valid secret rule", func(r *CustomRule) {}, false},
		{"unknown family", func(r *CustomRule) { r.Family = "payroll" }, true},
		{"industry without topic", func(r *CustomRule) { r.Family = models.FamilyIndustry; r.Topic = "" }, true},
		{"industry with topic", func(r *CustomRule) { r.Family = models.FamilyIndustry; r.Topic = models.TopicLegal }, false},
		{"unknown classification", func(r *CustomRule) { r.Classification = "ultra" }, true},
		{"empty pattern", func(r *CustomRule) { r.Pattern = "" }, true},
		{"broken regex", func(r *CustomRule) { r.Pattern = "[unclosed" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := sampleRule()
			tt.mutate(rule)
			_, err := Compile(rule)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEngine_LoadAndMerge(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	ctx := context.Background()

	defaults := len(classifier.DefaultRules())
	if got := len(engine.MergedRules()); got != defaults {
		t.Fatalf("expected only the %d built-in rules before load, got %d", defaults, got)
	}

	if err := engine.CreateRule(ctx, sampleRule()); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	merged := engine.MergedRules()
	if len(merged) != defaults+1 {
		t.Fatalf("expected %d rules after create, got %d", defaults+1, len(merged))
	}

	c := classifier.NewWithRules(merged)
	result := c.Classify("deploy to build-agent.corp.internal tonight")
	found := false
	for _, r := range result.MatchedRules {
		if r.ID == "custom-internal-hostname" {
			found = true
		}
	}
	if !found {
		t.Error("expected the custom rule to match through the merged classifier")
	}
	if result.Classification != models.ClassificationSecret {
		t.Errorf("expected secret classification, got %s", result.Classification)
	}
}

func TestEngine_CreateRejectsInvalid(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)

	rule := sampleRule()
	rule.Pattern = "[unclosed"
	if err := engine.CreateRule(context.Background(), rule); err == nil {
		t.Fatal("expected an invalid pattern to be rejected")
	}
	if len(store.rules) != 0 {
		t.Error("invalid rule must not reach the store")
	}
}

func TestEngine_DisabledRulesExcluded(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	ctx := context.Background()

	rule := sampleRule()
	rule.Enabled = false
	if err := engine.CreateRule(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if err := engine.LoadRules(ctx); err != nil {
		t.Fatalf("load rules: %v", err)
	}

	defaults := len(classifier.DefaultRules())
	if got := len(engine.MergedRules()); got != defaults {
		t.Errorf("disabled rule leaked into the merged set: %d rules", got)
	}

	if err := engine.EnableRule(ctx, rule.ID); err != nil {
		t.Fatalf("enable rule: %v", err)
	}
	if got := len(engine.MergedRules()); got != defaults+1 {
		t.Errorf("expected the enabled rule in the merged set, got %d rules", got)
	}

	if err := engine.DisableRule(ctx, rule.ID); err != nil {
		t.Fatalf("disable rule: %v", err)
	}
	if got := len(engine.MergedRules()); got != defaults {
		t.Errorf("expected the disabled rule removed again, got %d rules", got)
	}
}

func TestEngine_DeleteReloads(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	ctx := context.Background()

	if err := engine.CreateRule(ctx, sampleRule()); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if err := engine.DeleteRule(ctx, "custom-internal-hostname"); err != nil {
		t.Fatalf("delete rule: %v", err)
	}

	if got, want := len(engine.MergedRules()), len(classifier.DefaultRules()); got != want {
		t.Errorf("expected %d rules after delete, got %d", want, got)
	}

	if err := engine.DeleteRule(ctx, "missing"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestEngine_TestRule(t *testing.T) {
	engine := NewEngine(newMemStore())

	result, err := engine.TestRule(sampleRule(), "ssh into db-1.corp.internal and web-2.corp.internal")
	if err != nil {
		t.Fatalf("test rule: %v", err)
	}
	if !result.Matched || len(result.Matches) != 2 {
		t.Errorf("expected 2 matches, got %v", result.Matches)
	}

	result, err = engine.TestRule(sampleRule(), "nothing sensitive here")
	if err != nil {
		t.Fatalf("test rule: %v", err)
	}
	if result.Matched {
		t.Error("expected no match")
	}

	bad := sampleRule()
	bad.Pattern = "[unclosed"
	if _, err := engine.TestRule(bad, "content"); err == nil {
		t.Error("expected an error for a broken pattern")
	}
}

func TestValidatePattern(t *testing.T) {
	if err := ValidatePattern(`\bsecret\b`); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePattern(""); err == nil {
		t.Error("expected empty pattern rejected")
	}
	if err := ValidatePattern("[unclosed"); err == nil {
		t.Error("expected broken pattern rejected")
	}
}
