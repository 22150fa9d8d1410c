package registry

// schema is the registry's embedded SQL, following the pack's convention
// of a raw schema string applied with CREATE TABLE IF NOT EXISTS rather
// than a migration framework (see DESIGN.md).
const schema = `
CREATE TABLE IF NOT EXISTS locales (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	slug        TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	description TEXT,
	active      INTEGER NOT NULL DEFAULT 1,
	priority    INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS patterns (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	locale_id        INTEGER NOT NULL REFERENCES locales(id) ON DELETE CASCADE,
	category         TEXT NOT NULL,
	pattern_type     TEXT NOT NULL,
	display_name     TEXT NOT NULL,
	regex_source     TEXT,
	regex_flags      TEXT,
	recognizer       TEXT,
	validator        TEXT,
	default_class    INTEGER NOT NULL,
	fp_hints         TEXT,
	examples         TEXT,
	active           INTEGER NOT NULL DEFAULT 1,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	UNIQUE(locale_id, category, pattern_type)
);
CREATE INDEX IF NOT EXISTS idx_patterns_locale_active ON patterns(locale_id, active);

CREATE TABLE IF NOT EXISTS user_entries (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	label         TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL,
	primary_value TEXT NOT NULL,
	classification INTEGER NOT NULL,
	category      TEXT,
	notes         TEXT,
	active        INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_entries_active ON user_entries(active);

CREATE TABLE IF NOT EXISTS entry_variants (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id     INTEGER NOT NULL REFERENCES user_entries(id) ON DELETE CASCADE,
	variant_text TEXT NOT NULL,
	variant_type TEXT NOT NULL DEFAULT 'alias',
	created_at   TEXT NOT NULL,
	UNIQUE(entry_id, variant_text)
);
CREATE INDEX IF NOT EXISTS idx_entry_variants_entry ON entry_variants(entry_id);

CREATE TABLE IF NOT EXISTS inventory (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	ref_type           TEXT NOT NULL CHECK(ref_type IN ('pattern','user_entry')),
	ref_id             INTEGER NOT NULL,
	ref_label          TEXT NOT NULL,
	storage_location   TEXT NOT NULL,
	storage_type       TEXT NOT NULL CHECK(storage_type IN ('file','session','memory','context')),
	data_form          TEXT NOT NULL CHECK(data_form IN ('verbatim','paraphrased','derived','reference')),
	detector_name      TEXT,
	current_class      INTEGER NOT NULL,
	first_detected_at  TEXT NOT NULL,
	last_verified_at   TEXT NOT NULL,
	active             INTEGER NOT NULL DEFAULT 1,
	deactivated_at     TEXT,
	deactivated_by     TEXT,
	UNIQUE(ref_type, ref_id, storage_location)
);
CREATE INDEX IF NOT EXISTS idx_inventory_active_class ON inventory(active, current_class);

CREATE VIEW IF NOT EXISTS v_posture_input AS
	SELECT current_class AS classification, COUNT(*) AS active_count
	FROM inventory
	WHERE active = 1
	GROUP BY current_class;
`
