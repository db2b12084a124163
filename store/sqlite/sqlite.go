/*
Package sqlite provides the SQLite-backed implementation of billing.TxStore.

APPEND-ONLY ENFORCEMENT:
  The two status-log tables are insert-only:
  - No UPDATE statements on entry_status_log / statement_status_log
  - No DELETE statements on them either
  - Status corrections happen by appending another row

KEY TABLES:
  time_entries:          Worked-hours records, nullable statement link
  statements:            Quarter+department billing documents
  entry_status_log:      Append-only status ledger for entries
  statement_status_log:  Append-only status ledger for statements
  rates:                 Temporal hourly-rate records (validity windows)
  surcharge_rules:       Holiday multiplier windows
  quarters:              Configured billing quarters
  audit_log:             Field-level correction trail for entries
  hour_limits:           Quarterly hour-cap windows

WAL MODE:
  Opened with WAL so readers do not block the single writer.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definition
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/vereinswerk/billing-engine/billing"
)

const (
	dayFormat  = "2006-01-02"
	timeFormat = time.RFC3339
)

// querier is satisfied by both *sql.DB and *sql.Tx, so every query
// method runs unchanged inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements billing.TxStore on SQLite.
type Store struct {
	db *sql.DB
	q  querier
}

// New opens (or creates) the database at dbPath and migrates the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, q: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		entry_date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		duration TEXT NOT NULL,
		department_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		statement_id TEXT,
		label TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_owner
		ON time_entries(owner_id);
	CREATE INDEX IF NOT EXISTS idx_entries_statement
		ON time_entries(statement_id) WHERE statement_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_date
		ON time_entries(entry_date);

	CREATE TABLE IF NOT EXISTS statements (
		id TEXT PRIMARY KEY,
		quarter_id TEXT NOT NULL,
		department_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_statements_owner
		ON statements(owner_id);
	CREATE INDEX IF NOT EXISTS idx_statements_department
		ON statements(department_id);

	-- Append-only status ledgers. seq is the insertion-order tie-break
	-- for rows sharing a timestamp.
	CREATE TABLE IF NOT EXISTS entry_status_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id TEXT NOT NULL,
		status INTEGER NOT NULL,
		actor_id TEXT NOT NULL,
		at TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_entry_status_entity
		ON entry_status_log(entity_id);

	CREATE TABLE IF NOT EXISTS statement_status_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id TEXT NOT NULL,
		status INTEGER NOT NULL,
		actor_id TEXT NOT NULL,
		at TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_statement_status_entity
		ON statement_status_log(entity_id);

	CREATE TABLE IF NOT EXISTS rates (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		department_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_to TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_rates_worker_department
		ON rates(worker_id, department_id, valid_from DESC);

	CREATE TABLE IF NOT EXISTS surcharge_rules (
		id TEXT PRIMARY KEY,
		multiplier TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quarters (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quarters_range
		ON quarters(start_date, end_date);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id TEXT NOT NULL,
		field TEXT NOT NULL,
		old_value TEXT NOT NULL,
		new_value TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		at TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entry
		ON audit_log(entry_id);

	CREATE TABLE IF NOT EXISTS hour_limits (
		id TEXT PRIMARY KEY,
		limit_value TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_to TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (billing.TxStore)
// =============================================================================

// WithTx runs fn against a transactional view of the store. Any error
// from fn rolls the whole transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Store{db: s.db, q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

const entryColumns = `id, entry_date, start_time, end_time, duration, department_id, owner_id, statement_id, label, created_at`

func (s *Store) CreateEntry(ctx context.Context, e billing.TimeEntry) error {
	query := `
		INSERT INTO time_entries
		(id, entry_date, start_time, end_time, duration, department_id, owner_id, statement_id, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		e.ID,
		e.Date.Format(dayFormat),
		e.Start.String(),
		e.End.String(),
		e.Duration.String(),
		e.DepartmentID,
		e.OwnerID,
		nullString(e.StatementID),
		e.Label,
		e.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (s *Store) Entry(ctx context.Context, id string) (*billing.TimeEntry, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) EntriesByIDs(ctx context.Context, ids []string) ([]billing.TimeEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE id IN (` + placeholders + `)
		ORDER BY entry_date ASC, start_time ASC, id ASC`
	return s.queryEntries(ctx, query, args...)
}

func (s *Store) EntriesByOwner(ctx context.Context, ownerID string) ([]billing.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE owner_id = ?
		ORDER BY entry_date ASC, start_time ASC, id ASC`
	return s.queryEntries(ctx, query, ownerID)
}

func (s *Store) EntriesByStatement(ctx context.Context, statementID string) ([]billing.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE statement_id = ?
		ORDER BY entry_date ASC, start_time ASC, id ASC`
	return s.queryEntries(ctx, query, statementID)
}

func (s *Store) EntriesInRange(ctx context.Context, from, to time.Time) ([]billing.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries
		WHERE entry_date >= ? AND entry_date <= ?
		ORDER BY entry_date ASC, start_time ASC, id ASC`
	return s.queryEntries(ctx, query, from.Format(dayFormat), to.Format(dayFormat))
}

func (s *Store) UpdateEntry(ctx context.Context, e billing.TimeEntry) error {
	query := `
		UPDATE time_entries
		SET entry_date = ?, start_time = ?, end_time = ?, duration = ?,
		    department_id = ?, label = ?
		WHERE id = ?
	`
	_, err := s.q.ExecContext(ctx, query,
		e.Date.Format(dayFormat),
		e.Start.String(),
		e.End.String(),
		e.Duration.String(),
		e.DepartmentID,
		e.Label,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return nil
}

func (s *Store) LinkEntry(ctx context.Context, entryID, statementID string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE time_entries SET statement_id = ? WHERE id = ? AND statement_id IS NULL`,
		statementID, entryID)
	if err != nil {
		return fmt.Errorf("failed to link entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to link entry: %w", err)
	}
	if n == 0 {
		return billing.ErrEntryLinked
	}
	return nil
}

func (s *Store) UnlinkEntry(ctx context.Context, entryID string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE time_entries SET statement_id = NULL WHERE id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("failed to unlink entry: %w", err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, entryID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]billing.TimeEntry, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []billing.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*billing.TimeEntry, error) {
	var (
		e           billing.TimeEntry
		date        string
		start, end  string
		duration    string
		statementID sql.NullString
		createdAt   string
	)
	err := row.Scan(&e.ID, &date, &start, &end, &duration,
		&e.DepartmentID, &e.OwnerID, &statementID, &e.Label, &createdAt)
	if err != nil {
		return nil, err
	}

	if e.Date, err = time.Parse(dayFormat, date); err != nil {
		return nil, fmt.Errorf("bad entry date %q: %w", date, err)
	}
	if e.Start, err = billing.ParseTimeOfDay(start); err != nil {
		return nil, err
	}
	if e.End, err = billing.ParseTimeOfDay(end); err != nil {
		return nil, err
	}
	if e.Duration, err = decimal.NewFromString(duration); err != nil {
		return nil, fmt.Errorf("bad duration %q: %w", duration, err)
	}
	e.StatementID = statementID.String
	e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &e, nil
}

// =============================================================================
// STATEMENTS
// =============================================================================

func (s *Store) CreateStatement(ctx context.Context, st billing.Statement) error {
	query := `
		INSERT INTO statements (id, quarter_id, department_id, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		st.ID, st.QuarterID, st.DepartmentID, st.OwnerID,
		st.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to insert statement: %w", err)
	}
	return nil
}

func (s *Store) Statement(ctx context.Context, id string) (*billing.Statement, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, quarter_id, department_id, owner_id, created_at FROM statements WHERE id = ?`, id)
	st, err := scanStatement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) StatementsByOwner(ctx context.Context, ownerID string) ([]billing.Statement, error) {
	return s.queryStatements(ctx,
		`SELECT id, quarter_id, department_id, owner_id, created_at FROM statements
		 WHERE owner_id = ? ORDER BY created_at DESC, id ASC`, ownerID)
}

func (s *Store) StatementsByDepartments(ctx context.Context, departmentIDs []string) ([]billing.Statement, error) {
	if len(departmentIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(departmentIDs)), ",")
	args := make([]any, len(departmentIDs))
	for i, d := range departmentIDs {
		args[i] = d
	}
	query := `SELECT id, quarter_id, department_id, owner_id, created_at FROM statements
		WHERE department_id IN (` + placeholders + `) ORDER BY created_at DESC, id ASC`
	return s.queryStatements(ctx, query, args...)
}

func (s *Store) Statements(ctx context.Context) ([]billing.Statement, error) {
	return s.queryStatements(ctx,
		`SELECT id, quarter_id, department_id, owner_id, created_at FROM statements
		 ORDER BY created_at DESC, id ASC`)
}

func (s *Store) queryStatements(ctx context.Context, query string, args ...any) ([]billing.Statement, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}
	defer rows.Close()

	var statements []billing.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		statements = append(statements, *st)
	}
	return statements, rows.Err()
}

func scanStatement(row scanner) (*billing.Statement, error) {
	var st billing.Statement
	var createdAt string
	if err := row.Scan(&st.ID, &st.QuarterID, &st.DepartmentID, &st.OwnerID, &createdAt); err != nil {
		return nil, err
	}
	st.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &st, nil
}

// =============================================================================
// STATUS LEDGERS (append-only)
// =============================================================================

func (s *Store) AppendEntryStatus(ctx context.Context, e billing.StatusLogEntry) error {
	return s.appendStatus(ctx, "entry_status_log", e)
}

func (s *Store) AppendStatementStatus(ctx context.Context, e billing.StatusLogEntry) error {
	return s.appendStatus(ctx, "statement_status_log", e)
}

func (s *Store) appendStatus(ctx context.Context, table string, e billing.StatusLogEntry) error {
	query := `INSERT INTO ` + table + ` (entity_id, status, actor_id, at, comment)
		VALUES (?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, query,
		e.EntityID, int(e.Status), e.ActorID, e.At.Format(timeFormat), e.Comment)
	if err != nil {
		return fmt.Errorf("failed to append status: %w", err)
	}
	return nil
}

func (s *Store) EntryStatusLog(ctx context.Context, entryID string) ([]billing.StatusLogEntry, error) {
	return s.queryStatusLog(ctx, "entry_status_log", entryID)
}

func (s *Store) StatementStatusLog(ctx context.Context, statementID string) ([]billing.StatusLogEntry, error) {
	return s.queryStatusLog(ctx, "statement_status_log", statementID)
}

func (s *Store) queryStatusLog(ctx context.Context, table, entityID string) ([]billing.StatusLogEntry, error) {
	query := `SELECT seq, entity_id, status, actor_id, at, comment FROM ` + table + `
		WHERE entity_id = ? ORDER BY seq ASC`
	rows, err := s.q.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status log: %w", err)
	}
	defer rows.Close()

	var log []billing.StatusLogEntry
	for rows.Next() {
		var e billing.StatusLogEntry
		var status int
		var at string
		if err := rows.Scan(&e.Seq, &e.EntityID, &status, &e.ActorID, &at, &e.Comment); err != nil {
			return nil, err
		}
		e.Status = billing.Status(status)
		e.At, _ = time.Parse(timeFormat, at)
		log = append(log, e)
	}
	return log, rows.Err()
}

// =============================================================================
// RATES
// =============================================================================

const rateColumns = `id, worker_id, department_id, amount, valid_from, valid_to`

func (s *Store) Rates(ctx context.Context, workerID, departmentID string) ([]billing.RateRecord, error) {
	query := `SELECT ` + rateColumns + ` FROM rates
		WHERE worker_id = ? AND department_id = ?
		ORDER BY valid_from DESC`
	return s.queryRates(ctx, query, workerID, departmentID)
}

func (s *Store) OpenRate(ctx context.Context, workerID, departmentID string) (*billing.RateRecord, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+rateColumns+` FROM rates
		 WHERE worker_id = ? AND department_id = ? AND valid_to IS NULL`,
		workerID, departmentID)
	r, err := scanRate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) OpenRatesByDepartment(ctx context.Context, departmentID string) ([]billing.RateRecord, error) {
	query := `SELECT ` + rateColumns + ` FROM rates
		WHERE department_id = ? AND valid_to IS NULL
		ORDER BY worker_id ASC`
	return s.queryRates(ctx, query, departmentID)
}

func (s *Store) CloseRate(ctx context.Context, rateID string, validTo time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE rates SET valid_to = ? WHERE id = ?`, validTo.Format(dayFormat), rateID)
	if err != nil {
		return fmt.Errorf("failed to close rate: %w", err)
	}
	return nil
}

func (s *Store) InsertRate(ctx context.Context, r billing.RateRecord) error {
	var validTo *string
	if r.ValidTo != nil {
		t := r.ValidTo.Format(dayFormat)
		validTo = &t
	}
	query := `INSERT INTO rates (id, worker_id, department_id, amount, valid_from, valid_to)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, query,
		r.ID, r.WorkerID, r.DepartmentID, r.Amount.String(),
		r.ValidFrom.Format(dayFormat), validTo)
	if err != nil {
		return fmt.Errorf("failed to insert rate: %w", err)
	}
	return nil
}

func (s *Store) queryRates(ctx context.Context, query string, args ...any) ([]billing.RateRecord, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	defer rows.Close()

	var rates []billing.RateRecord
	for rows.Next() {
		r, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, *r)
	}
	return rates, rows.Err()
}

func scanRate(row scanner) (*billing.RateRecord, error) {
	var (
		r         billing.RateRecord
		amount    string
		validFrom string
		validTo   sql.NullString
	)
	if err := row.Scan(&r.ID, &r.WorkerID, &r.DepartmentID, &amount, &validFrom, &validTo); err != nil {
		return nil, err
	}
	var err error
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad rate amount %q: %w", amount, err)
	}
	if r.ValidFrom, err = time.Parse(dayFormat, validFrom); err != nil {
		return nil, fmt.Errorf("bad rate valid_from %q: %w", validFrom, err)
	}
	if validTo.Valid {
		t, err := time.Parse(dayFormat, validTo.String)
		if err != nil {
			return nil, fmt.Errorf("bad rate valid_to %q: %w", validTo.String, err)
		}
		r.ValidTo = &t
	}
	return &r, nil
}

// =============================================================================
// SURCHARGE RULES
// =============================================================================

func (s *Store) SurchargeRules(ctx context.Context) ([]billing.SurchargeRule, error) {
	// Newest validity first; pricing takes the first covering rule.
	query := `SELECT id, multiplier, valid_from, valid_to, created_at FROM surcharge_rules
		ORDER BY valid_from DESC, created_at DESC`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query surcharge rules: %w", err)
	}
	defer rows.Close()

	var rules []billing.SurchargeRule
	for rows.Next() {
		r, err := scanSurchargeRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func (s *Store) SurchargeRule(ctx context.Context, id string) (*billing.SurchargeRule, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, multiplier, valid_from, valid_to, created_at FROM surcharge_rules WHERE id = ?`, id)
	r, err := scanSurchargeRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) SaveSurchargeRule(ctx context.Context, r billing.SurchargeRule) error {
	var validTo *string
	if r.ValidTo != nil {
		t := r.ValidTo.Format(dayFormat)
		validTo = &t
	}
	query := `
		INSERT INTO surcharge_rules (id, multiplier, valid_from, valid_to, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			multiplier = excluded.multiplier,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to
	`
	_, err := s.q.ExecContext(ctx, query,
		r.ID, r.Multiplier.String(), r.ValidFrom.Format(dayFormat), validTo,
		r.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to save surcharge rule: %w", err)
	}
	return nil
}

func (s *Store) DeleteSurchargeRule(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM surcharge_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete surcharge rule: %w", err)
	}
	return nil
}

func scanSurchargeRule(row scanner) (*billing.SurchargeRule, error) {
	var (
		r          billing.SurchargeRule
		multiplier string
		validFrom  string
		validTo    sql.NullString
		createdAt  string
	)
	if err := row.Scan(&r.ID, &multiplier, &validFrom, &validTo, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if r.Multiplier, err = decimal.NewFromString(multiplier); err != nil {
		return nil, fmt.Errorf("bad multiplier %q: %w", multiplier, err)
	}
	if r.ValidFrom, err = time.Parse(dayFormat, validFrom); err != nil {
		return nil, fmt.Errorf("bad rule valid_from %q: %w", validFrom, err)
	}
	if validTo.Valid {
		t, err := time.Parse(dayFormat, validTo.String)
		if err != nil {
			return nil, fmt.Errorf("bad rule valid_to %q: %w", validTo.String, err)
		}
		r.ValidTo = &t
	}
	r.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &r, nil
}

// =============================================================================
// QUARTERS
// =============================================================================

func (s *Store) QuarterContaining(ctx context.Context, date time.Time) (*billing.Quarter, error) {
	d := date.Format(dayFormat)
	row := s.q.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date FROM quarters
		 WHERE start_date <= ? AND end_date >= ?
		 ORDER BY start_date ASC LIMIT 1`, d, d)
	q, err := scanQuarter(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Store) Quarter(ctx context.Context, id string) (*billing.Quarter, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date FROM quarters WHERE id = ?`, id)
	q, err := scanQuarter(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Store) Quarters(ctx context.Context) ([]billing.Quarter, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, start_date, end_date FROM quarters ORDER BY start_date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query quarters: %w", err)
	}
	defer rows.Close()

	var quarters []billing.Quarter
	for rows.Next() {
		q, err := scanQuarter(rows)
		if err != nil {
			return nil, err
		}
		quarters = append(quarters, *q)
	}
	return quarters, rows.Err()
}

func (s *Store) SaveQuarter(ctx context.Context, q billing.Quarter) error {
	query := `
		INSERT INTO quarters (id, name, start_date, end_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			start_date = excluded.start_date,
			end_date = excluded.end_date
	`
	_, err := s.q.ExecContext(ctx, query,
		q.ID, q.Name, q.Start.Format(dayFormat), q.End.Format(dayFormat))
	if err != nil {
		return fmt.Errorf("failed to save quarter: %w", err)
	}
	return nil
}

func scanQuarter(row scanner) (*billing.Quarter, error) {
	var q billing.Quarter
	var start, end string
	if err := row.Scan(&q.ID, &q.Name, &start, &end); err != nil {
		return nil, err
	}
	var err error
	if q.Start, err = time.Parse(dayFormat, start); err != nil {
		return nil, fmt.Errorf("bad quarter start %q: %w", start, err)
	}
	if q.End, err = time.Parse(dayFormat, end); err != nil {
		return nil, fmt.Errorf("bad quarter end %q: %w", end, err)
	}
	return &q, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e billing.AuditLogEntry) error {
	query := `INSERT INTO audit_log (entry_id, field, old_value, new_value, actor_id, at, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, query,
		e.EntryID, e.Field, e.OldValue, e.NewValue, e.ActorID,
		e.At.Format(timeFormat), e.Comment)
	if err != nil {
		return fmt.Errorf("failed to append audit row: %w", err)
	}
	return nil
}

func (s *Store) AuditTrail(ctx context.Context, entryID string) ([]billing.AuditLogEntry, error) {
	query := `SELECT entry_id, field, old_value, new_value, actor_id, at, comment
		FROM audit_log WHERE entry_id = ? ORDER BY id ASC`
	rows, err := s.q.QueryContext(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	var trail []billing.AuditLogEntry
	for rows.Next() {
		var e billing.AuditLogEntry
		var at string
		if err := rows.Scan(&e.EntryID, &e.Field, &e.OldValue, &e.NewValue,
			&e.ActorID, &at, &e.Comment); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(timeFormat, at)
		trail = append(trail, e)
	}
	return trail, rows.Err()
}

// =============================================================================
// HOUR LIMITS
// =============================================================================

func (s *Store) ActiveLimit(ctx context.Context, at time.Time) (*billing.Limit, error) {
	d := at.Format(dayFormat)
	row := s.q.QueryRowContext(ctx,
		`SELECT id, limit_value, valid_from, valid_to FROM hour_limits
		 WHERE valid_from <= ? AND (valid_to IS NULL OR valid_to >= ?)
		 ORDER BY valid_from DESC LIMIT 1`, d, d)

	var (
		l         billing.Limit
		value     string
		validFrom string
		validTo   sql.NullString
	)
	err := row.Scan(&l.ID, &value, &validFrom, &validTo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if l.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("bad limit value %q: %w", value, err)
	}
	if l.ValidFrom, err = time.Parse(dayFormat, validFrom); err != nil {
		return nil, fmt.Errorf("bad limit valid_from %q: %w", validFrom, err)
	}
	if validTo.Valid {
		t, err := time.Parse(dayFormat, validTo.String)
		if err != nil {
			return nil, fmt.Errorf("bad limit valid_to %q: %w", validTo.String, err)
		}
		l.ValidTo = &t
	}
	return &l, nil
}

func (s *Store) SaveLimit(ctx context.Context, l billing.Limit) error {
	var validTo *string
	if l.ValidTo != nil {
		t := l.ValidTo.Format(dayFormat)
		validTo = &t
	}
	query := `
		INSERT INTO hour_limits (id, limit_value, valid_from, valid_to)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			limit_value = excluded.limit_value,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to
	`
	_, err := s.q.ExecContext(ctx, query,
		l.ID, l.Value.String(), l.ValidFrom.Format(dayFormat), validTo)
	if err != nil {
		return fmt.Errorf("failed to save limit: %w", err)
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
