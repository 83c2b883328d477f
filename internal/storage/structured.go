package storage

import (
	"context"
	"fmt"

	"github.com/hyperjump/kontext/internal/models"
)

const defaultCategory = "general"

// PutConfig inserts or replaces a configuration entry.
func (s *SQLiteStorage) PutConfig(ctx context.Context, entry models.ConfigEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("config key is required")
	}
	if entry.Category == "" {
		entry.Category = defaultCategory
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO config (key, value, description, category) VALUES (?, ?, ?, ?)`,
		entry.Key, entry.Value, entry.Description, entry.Category,
	); err != nil {
		return fmt.Errorf("put config: %w", err)
	}
	if err := s.touch(ctx, tx, models.BackendStructured); err != nil {
		return err
	}
	return tx.Commit()
}

// AddRule inserts a rule and sets its ID.
func (s *SQLiteStorage) AddRule(ctx context.Context, rule *models.Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if rule.Category == "" {
		rule.Category = defaultCategory
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO rules (name, condition, action, category) VALUES (?, ?, ?, ?)`,
		rule.Name, rule.Condition, rule.Action, rule.Category,
	)
	if err != nil {
		return fmt.Errorf("add rule: %w", err)
	}
	if rule.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	if err := s.touch(ctx, tx, models.BackendStructured); err != nil {
		return err
	}
	return tx.Commit()
}

// SearchConfigs returns entries whose key or description contains any keyword. Each entry
// appears once, tagged with the first keyword that matched it.
func (s *SQLiteStorage) SearchConfigs(ctx context.Context, keywords []string, limit int) ([]models.ConfigEntry, error) {
	var out []models.ConfigEntry
	seen := make(map[string]bool)
	for _, kw := range keywords {
		if len(out) >= limit {
			break
		}
		p := likePattern(kw)
		rows, err := s.db.QueryContext(ctx,
			`SELECT key, value, description, category FROM config
			 WHERE key LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'
			 ORDER BY key LIMIT ?`,
			p, p, limit,
		)
		if err != nil {
			return nil, fmt.Errorf("search config: %w", err)
		}
		for rows.Next() {
			var e models.ConfigEntry
			if err := rows.Scan(&e.Key, &e.Value, &e.Description, &e.Category); err != nil {
				rows.Close()
				return nil, err
			}
			if seen[e.Key] {
				continue
			}
			seen[e.Key] = true
			e.MatchKeyword = kw
			out = append(out, e)
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchRules returns rules whose name, condition, or action contains any keyword.
func (s *SQLiteStorage) SearchRules(ctx context.Context, keywords []string, limit int) ([]models.Rule, error) {
	var out []models.Rule
	seen := make(map[int64]bool)
	for _, kw := range keywords {
		if len(out) >= limit {
			break
		}
		p := likePattern(kw)
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, name, condition, action, category FROM rules
			 WHERE name LIKE ? ESCAPE '\' OR condition LIKE ? ESCAPE '\' OR action LIKE ? ESCAPE '\'
			 ORDER BY id LIMIT ?`,
			p, p, p, limit,
		)
		if err != nil {
			return nil, fmt.Errorf("search rules: %w", err)
		}
		for rows.Next() {
			var r models.Rule
			if err := rows.Scan(&r.ID, &r.Name, &r.Condition, &r.Action, &r.Category); err != nil {
				rows.Close()
				return nil, err
			}
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			r.MatchKeyword = kw
			out = append(out, r)
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Lookup extracts keywords from question and returns up to limit records: configs first,
// then rules, each side capped at limit/2+1.
func (s *SQLiteStorage) Lookup(ctx context.Context, question string, limit int) ([]models.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	keywords := ExtractKeywords(question)
	if len(keywords) == 0 {
		return nil, nil
	}
	side := limit/2 + 1
	configs, err := s.SearchConfigs(ctx, keywords, side)
	if err != nil {
		return nil, err
	}
	rules, err := s.SearchRules(ctx, keywords, side)
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(configs)+len(rules))
	for _, c := range configs {
		out = append(out, c)
	}
	for _, r := range rules {
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
