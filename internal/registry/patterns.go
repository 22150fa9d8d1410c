package registry

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sentrywatch/watchdog/internal/classify"
)

// CreatePattern inserts a new pattern. Fails when the locale is unknown
// or (locale, category, type) collides.
func (s *Store) CreatePattern(ctx context.Context, in PatternInput) (Pattern, error) {
	if in.Category == "" || in.PatternType == "" || in.DisplayName == "" {
		return Pattern{}, newErr(KindInvalidInput, "category, pattern_type, and display_name are required", nil)
	}
	if in.RegexSource == nil && in.Recognizer == nil {
		return Pattern{}, newErr(KindInvalidInput, "pattern requires a regex source or a recognizer reference", nil)
	}
	if _, err := s.GetLocale(ctx, in.LocaleID); err != nil {
		return Pattern{}, newErr(KindForeignKeyViolation, "unknown locale", err)
	}

	now := nowISO()
	res, err := s.db.ExecContext(ctx, `INSERT INTO patterns
		(locale_id, category, pattern_type, display_name, regex_source, regex_flags, recognizer, validator,
		 default_class, fp_hints, examples, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		in.LocaleID, in.Category, in.PatternType, in.DisplayName, in.RegexSource, in.RegexFlags,
		in.Recognizer, in.Validator, in.DefaultClass.Rank(), in.FalsePositiveHints, in.Examples, now, now)
	if err != nil {
		return Pattern{}, classifyWriteErr(err, "create pattern")
	}
	id, _ := res.LastInsertId()
	return s.GetPattern(ctx, id)
}

// GetPattern looks up a pattern by id.
func (s *Store) GetPattern(ctx context.Context, id int64) (Pattern, error) {
	row := s.db.QueryRowContext(ctx, patternSelect+` WHERE id = ?`, id)
	return scanPattern(row)
}

// UpdatePattern applies a partial update; omitted fields stay unchanged.
func (s *Store) UpdatePattern(ctx context.Context, id int64, patch PatternPatch) (Pattern, error) {
	current, err := s.GetPattern(ctx, id)
	if err != nil {
		return Pattern{}, err
	}

	category, patternType, displayName := current.Category, current.PatternType, current.DisplayName
	regexSource, regexFlags, recognizer, validator := current.RegexSource, current.RegexFlags, current.Recognizer, current.Validator
	defaultClass := current.DefaultClass
	fpHints, examples := current.FalsePositiveHints, current.Examples
	active := current.Active

	if patch.Category != nil {
		category = *patch.Category
	}
	if patch.PatternType != nil {
		patternType = *patch.PatternType
	}
	if patch.DisplayName != nil {
		displayName = *patch.DisplayName
	}
	if patch.RegexSource != nil {
		regexSource = *patch.RegexSource
	}
	if patch.RegexFlags != nil {
		regexFlags = *patch.RegexFlags
	}
	if patch.Recognizer != nil {
		recognizer = *patch.Recognizer
	}
	if patch.Validator != nil {
		validator = *patch.Validator
	}
	if patch.DefaultClass != nil {
		defaultClass = *patch.DefaultClass
	}
	if patch.FalsePositiveHints != nil {
		fpHints = *patch.FalsePositiveHints
	}
	if patch.Examples != nil {
		examples = *patch.Examples
	}
	if patch.Active != nil {
		active = *patch.Active
	}

	_, err = s.db.ExecContext(ctx, `UPDATE patterns SET
		category = ?, pattern_type = ?, display_name = ?, regex_source = ?, regex_flags = ?,
		recognizer = ?, validator = ?, default_class = ?, fp_hints = ?, examples = ?, active = ?,
		updated_at = ? WHERE id = ?`,
		category, patternType, displayName, regexSource, regexFlags, recognizer, validator,
		defaultClass.Rank(), fpHints, examples, boolInt(active), nowISO(), id)
	if err != nil {
		return Pattern{}, classifyWriteErr(err, "update pattern")
	}
	return s.GetPattern(ctx, id)
}

// DeactivatePattern sets active false; the row is preserved for audit.
func (s *Store) DeactivatePattern(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE patterns SET active = 0, updated_at = ? WHERE id = ?`, nowISO(), id)
	if err != nil {
		return newErr(KindStorageUnavailable, "deactivate pattern", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPatterns filters on locale, category, and active; returns rows in
// id-ascending order.
func (s *Store) ListPatterns(ctx context.Context, filter PatternFilter) ([]Pattern, error) {
	where, args := buildPatternWhere(filter)
	query := patternSelect + where + ` ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newErr(KindStorageUnavailable, "list patterns", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func buildPatternWhere(filter PatternFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.LocaleID != nil {
		clauses = append(clauses, "locale_id = ?")
		args = append(args, *filter.LocaleID)
	}
	if filter.Category != nil {
		clauses = append(clauses, "category = ?")
		args = append(args, *filter.Category)
	}
	if filter.Active != nil {
		clauses = append(clauses, "active = ?")
		args = append(args, boolInt(*filter.Active))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

const patternSelect = `SELECT id, locale_id, category, pattern_type, display_name, regex_source, regex_flags,
	recognizer, validator, default_class, fp_hints, examples, active, created_at, updated_at FROM patterns`

func scanPattern(r rowScanner) (Pattern, error) {
	var p Pattern
	var active, defaultClass int
	var created, updated string
	if err := r.Scan(&p.ID, &p.LocaleID, &p.Category, &p.PatternType, &p.DisplayName, &p.RegexSource,
		&p.RegexFlags, &p.Recognizer, &p.Validator, &defaultClass, &p.FalsePositiveHints, &p.Examples,
		&active, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return Pattern{}, ErrNotFound
		}
		return Pattern{}, newErr(KindStorageUnavailable, "scan pattern", err)
	}
	p.Active = active != 0
	p.DefaultClass = classify.Classification(defaultClass)
	p.CreatedAt = parseISO(created)
	p.UpdatedAt = parseISO(updated)
	return p, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
