package registry

import (
	"context"
	"database/sql"
)

// CreateLocale inserts a new locale scope. Slugs are unique.
func (s *Store) CreateLocale(ctx context.Context, slug, name string, description *string, priority int) (Locale, error) {
	if slug == "" || name == "" {
		return Locale{}, newErr(KindInvalidInput, "locale slug and name are required", nil)
	}
	now := nowISO()
	res, err := s.db.ExecContext(ctx, `INSERT INTO locales (slug, name, description, active, priority, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?, ?)`, slug, name, description, priority, now, now)
	if err != nil {
		return Locale{}, classifyWriteErr(err, "create locale")
	}
	id, _ := res.LastInsertId()
	return s.GetLocale(ctx, id)
}

// GetLocale looks up a locale by id.
func (s *Store) GetLocale(ctx context.Context, id int64) (Locale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, slug, name, description, active, priority, created_at, updated_at
		FROM locales WHERE id = ?`, id)
	return scanLocale(row)
}

// GetLocaleBySlug looks up a locale by its stable slug.
func (s *Store) GetLocaleBySlug(ctx context.Context, slug string) (Locale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, slug, name, description, active, priority, created_at, updated_at
		FROM locales WHERE slug = ?`, slug)
	return scanLocale(row)
}

// ListLocales returns all locales ordered by priority descending, then id.
func (s *Store) ListLocales(ctx context.Context) ([]Locale, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, slug, name, description, active, priority, created_at, updated_at
		FROM locales ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, newErr(KindStorageUnavailable, "list locales", err)
	}
	defer rows.Close()

	var out []Locale
	for rows.Next() {
		l, err := scanLocaleRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocale(row *sql.Row) (Locale, error) {
	return scanLocaleFrom(row)
}

func scanLocaleRows(rows *sql.Rows) (Locale, error) {
	return scanLocaleFrom(rows)
}

func scanLocaleFrom(r rowScanner) (Locale, error) {
	var l Locale
	var active int
	var created, updated string
	if err := r.Scan(&l.ID, &l.Slug, &l.Name, &l.Description, &active, &l.Priority, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return Locale{}, ErrNotFound
		}
		return Locale{}, newErr(KindStorageUnavailable, "scan locale", err)
	}
	l.Active = active != 0
	l.CreatedAt = parseISO(created)
	l.UpdatedAt = parseISO(updated)
	return l, nil
}
