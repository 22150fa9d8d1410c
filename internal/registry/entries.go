package registry

import (
	"context"
	"database/sql"

	"github.com/sentrywatch/watchdog/internal/classify"
)

// CreateEntry transactionally inserts an entry and its variants; a
// duplicate label or duplicate (entry, text) variant fails the whole
// operation.
func (s *Store) CreateEntry(ctx context.Context, in EntryInput, variants []VariantInput) (UserEntry, error) {
	if in.Label == "" || in.PrimaryValue == "" {
		return UserEntry{}, newErr(KindInvalidInput, "label and primary_value are required", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UserEntry{}, newErr(KindStorageUnavailable, "begin create entry tx", err)
	}
	defer tx.Rollback()

	now := nowISO()
	res, err := tx.ExecContext(ctx, `INSERT INTO user_entries
		(label, display_name, primary_value, classification, category, notes, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		in.Label, in.DisplayName, in.PrimaryValue, in.Classification.Rank(), in.Category, in.Notes, now, now)
	if err != nil {
		return UserEntry{}, classifyWriteErr(err, "create entry")
	}
	entryID, _ := res.LastInsertId()

	for _, v := range variants {
		vt := v.Type
		if vt == "" {
			vt = "alias"
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO entry_variants (entry_id, variant_text, variant_type, created_at)
			VALUES (?, ?, ?, ?)`, entryID, v.Text, vt, now); err != nil {
			return UserEntry{}, classifyWriteErr(err, "create entry variant")
		}
	}

	if err := tx.Commit(); err != nil {
		return UserEntry{}, newErr(KindStorageUnavailable, "commit create entry tx", err)
	}
	return s.GetEntry(ctx, entryID)
}

// AddVariant appends an alternate surface form to an existing entry.
// Duplicate (entry, text) fails.
func (s *Store) AddVariant(ctx context.Context, entryID int64, text, variantType string) (EntryVariant, error) {
	if text == "" {
		return EntryVariant{}, newErr(KindInvalidInput, "variant text is required", nil)
	}
	if variantType == "" {
		variantType = "alias"
	}
	now := nowISO()
	res, err := s.db.ExecContext(ctx, `INSERT INTO entry_variants (entry_id, variant_text, variant_type, created_at)
		VALUES (?, ?, ?, ?)`, entryID, text, variantType, now)
	if err != nil {
		return EntryVariant{}, classifyWriteErr(err, "add variant")
	}
	id, _ := res.LastInsertId()
	row := s.db.QueryRowContext(ctx, `SELECT id, entry_id, variant_text, variant_type, created_at
		FROM entry_variants WHERE id = ?`, id)
	return scanVariant(row)
}

// RemoveVariant deletes a single variant by id.
func (s *Store) RemoveVariant(ctx context.Context, variantID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entry_variants WHERE id = ?`, variantID)
	if err != nil {
		return newErr(KindStorageUnavailable, "remove variant", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetEntry looks up an entry by id.
func (s *Store) GetEntry(ctx context.Context, id int64) (UserEntry, error) {
	row := s.db.QueryRowContext(ctx, entrySelect+` WHERE id = ?`, id)
	return scanEntry(row)
}

// ListActiveEntries returns all active entries, used by the scanner to
// rebuild its snapshot.
func (s *Store) ListActiveEntries(ctx context.Context) ([]UserEntry, error) {
	rows, err := s.db.QueryContext(ctx, entrySelect+` WHERE active = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, newErr(KindStorageUnavailable, "list active entries", err)
	}
	defer rows.Close()

	var out []UserEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ListVariants returns all variants for an entry.
func (s *Store) ListVariants(ctx context.Context, entryID int64) ([]EntryVariant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, entry_id, variant_text, variant_type, created_at
		FROM entry_variants WHERE entry_id = ? ORDER BY id ASC`, entryID)
	if err != nil {
		return nil, newErr(KindStorageUnavailable, "list variants", err)
	}
	defer rows.Close()

	var out []EntryVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

const entrySelect = `SELECT id, label, display_name, primary_value, classification, category, notes,
	active, created_at, updated_at FROM user_entries`

func scanEntry(r rowScanner) (UserEntry, error) {
	var e UserEntry
	var active, cls int
	var created, updated string
	if err := r.Scan(&e.ID, &e.Label, &e.DisplayName, &e.PrimaryValue, &cls, &e.Category, &e.Notes,
		&active, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return UserEntry{}, ErrNotFound
		}
		return UserEntry{}, newErr(KindStorageUnavailable, "scan entry", err)
	}
	e.Active = active != 0
	e.Classification = classify.Classification(cls)
	e.CreatedAt = parseISO(created)
	e.UpdatedAt = parseISO(updated)
	return e, nil
}

func scanVariant(r rowScanner) (EntryVariant, error) {
	var v EntryVariant
	var created string
	if err := r.Scan(&v.ID, &v.EntryID, &v.VariantText, &v.VariantType, &created); err != nil {
		if err == sql.ErrNoRows {
			return EntryVariant{}, ErrNotFound
		}
		return EntryVariant{}, newErr(KindStorageUnavailable, "scan variant", err)
	}
	v.CreatedAt = parseISO(created)
	return v, nil
}
