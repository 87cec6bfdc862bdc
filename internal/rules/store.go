package rules

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrRuleNotFound = errors.New("rule not found")

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ruleColumns = `id, name, description, family, topic, pattern, classification, action, severity, enabled, priority, created_by, created_at, updated_at`

func (s *PostgresStore) GetRule(ctx context.Context, id string) (*CustomRule, error) {
	var rule CustomRule
	err := s.db.GetContext(ctx, &rule, `
		SELECT `+ruleColumns+` FROM custom_rules WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func (s *PostgresStore) ListRules(ctx context.Context, enabledOnly bool) ([]*CustomRule, error) {
	var rules []*CustomRule
	var err error

	if enabledOnly {
		err = s.db.SelectContext(ctx, &rules, `
			SELECT `+ruleColumns+` FROM custom_rules WHERE enabled = true ORDER BY priority DESC, created_at DESC
		`)
	} else {
		err = s.db.SelectContext(ctx, &rules, `
			SELECT `+ruleColumns+` FROM custom_rules ORDER BY priority DESC, created_at DESC
		`)
	}
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *PostgresStore) CreateRule(ctx context.Context, rule *CustomRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_rules (id, name, description, family, topic, pattern, classification, action, severity, enabled, priority, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rule.ID, rule.Name, rule.Description, string(rule.Family), string(rule.Topic), rule.Pattern,
		string(rule.Classification), string(rule.Action), string(rule.Severity),
		rule.Enabled, rule.Priority, rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateRule(ctx context.Context, rule *CustomRule) error {
	rule.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE custom_rules SET
			name = $2, description = $3, family = $4, topic = $5, pattern = $6,
			classification = $7, action = $8, severity = $9, enabled = $10,
			priority = $11, updated_at = $12
		WHERE id = $1
	`, rule.ID, rule.Name, rule.Description, string(rule.Family), string(rule.Topic), rule.Pattern,
		string(rule.Classification), string(rule.Action), string(rule.Severity),
		rule.Enabled, rule.Priority, rule.UpdatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRuleNotFound
	}
	return nil
}
