package classifier

import (
	"regexp"

	"github.com/memshield/memshield/internal/models"
)

// Rule is an immutable detection rule. Rules are compiled once at startup and
// passed into the classifier explicitly, never held as hidden module state.
type Rule struct {
	ID             string
	Name           string
	Family         models.RuleFamily
	Topic          models.IndustryTopic // set for industry-family rules only
	Pattern        *regexp.Regexp
	Classification models.Classification
	Action         models.RuleAction
	Severity       models.Severity
	Description    string
}

// Result is the outcome of classifying a piece of content against the rule
// tables. Classification is the maximum-ordinal level among matched rules.
type Result struct {
	Classification models.Classification
	MatchedRules   []*Rule
	TotalMatches   int
	Confidence     float64
}

// RulesIn returns the matched rules belonging to one family.
func (r *Result) RulesIn(family models.RuleFamily) []*Rule {
	var rules []*Rule
	for _, rule := range r.MatchedRules {
		if rule.Family == family {
			rules = append(rules, rule)
		}
	}
	return rules
}

// RulesInTopic returns the matched industry rules with the given topic.
func (r *Result) RulesInTopic(topic models.IndustryTopic) []*Rule {
	var rules []*Rule
	for _, rule := range r.MatchedRules {
		if rule.Family == models.FamilyIndustry && rule.Topic == topic {
			rules = append(rules, rule)
		}
	}
	return rules
}

// HasFamily reports whether any rule of the given family matched.
func (r *Result) HasFamily(family models.RuleFamily) bool {
	for _, rule := range r.MatchedRules {
		if rule.Family == family {
			return true
		}
	}
	return false
}

// Classifier evaluates content against an immutable rule set. Safe for
// concurrent use: Classify is a pure function over the rule tables.
type Classifier struct {
	rules []*Rule
}

// New returns a classifier loaded with the default rule tables.
func New() *Classifier {
	return NewWithRules(DefaultRules())
}

// NewWithRules returns a classifier over an explicit rule set. Tests and the
// custom-rule engine use this to substitute rule tables.
func NewWithRules(rules []*Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Rules returns the loaded rule set.
func (c *Classifier) Rules() []*Rule {
	return c.rules
}

// Classify evaluates every rule across all three families and aggregates the
// highest matched classification. Overlapping matches from different families
// on the same substring are all recorded: each family answers a different
// question, so there is no cross-family deduplication.
//
// Confidence is min(totalMatches/10, 1.0) - a saturating heuristic, not a
// probability. The empty string classifies as OPEN with zero matches.
func (c *Classifier) Classify(content string) *Result {
	result := &Result{
		Classification: models.ClassificationOpen,
	}

	for _, rule := range c.rules {
		matches := rule.Pattern.FindAllStringIndex(content, -1)
		if len(matches) == 0 {
			continue
		}

		result.MatchedRules = append(result.MatchedRules, rule)
		result.TotalMatches += len(matches)
		result.Classification = models.MaxClassification(result.Classification, rule.Classification)
	}

	result.Confidence = saturate(float64(result.TotalMatches) / 10.0)
	return result
}

func saturate(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}
