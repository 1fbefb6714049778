package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"rosterparse/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS transactions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  emailId INTEGER NOT NULL,
  sectionIndex INTEGER NOT NULL,
  txType TEXT NOT NULL,
  fieldsJson TEXT NOT NULL,
  fieldsValid INTEGER NOT NULL,
  fieldsFound INTEGER NOT NULL,
  partial INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(emailId, sectionIndex),
  FOREIGN KEY(emailId) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  emailId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS registry_cache (
  npi TEXT PRIMARY KEY,
  name TEXT,
  providerType TEXT,
  found INTEGER NOT NULL,
  verifiedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	var row internal.EmailRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	var row internal.EmailRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE id = ?
`, id).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		var row internal.EmailRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

// ClearEmailProcessing drops previous transactions for an email so a rerun
// replaces rather than duplicates its output.
func (d *DB) ClearEmailProcessing(emailID int) error {
	_, err := d.conn.Exec(`DELETE FROM transactions WHERE emailId = ?`, emailID)
	return err
}

// storedFields is the JSON shape of one transaction's fields at rest.
type storedFields map[internal.Field]storedField

type storedField struct {
	Value      string                    `json:"value,omitempty"`
	Confidence float64                   `json:"confidence"`
	Status     internal.ValidationStatus `json:"status"`
}

func (d *DB) InsertTransaction(emailID int, tx internal.Transaction) (int64, error) {
	fields := make(storedFields, len(tx.Fields))
	for field, fused := range tx.Fields {
		fields[field] = storedField{Value: fused.Value, Confidence: fused.Confidence, Status: fused.Status}
	}
	fieldsJSON, _ := json.Marshal(fields)

	partial := 0
	if tx.Partial {
		partial = 1
	}
	result, err := d.conn.Exec(`
INSERT INTO transactions (emailId, sectionIndex, txType, fieldsJson, fieldsValid, fieldsFound, partial)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, emailID, tx.SectionIndex, string(tx.Type), string(fieldsJSON), tx.FieldsValid, tx.FieldsFound, partial)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) GetExportRows(emailID int) ([]internal.ExportRow, error) {
	rows, err := d.conn.Query(`
SELECT emailId, sectionIndex, fieldsJson, fieldsValid, fieldsFound, partial
FROM transactions WHERE emailId = ? ORDER BY sectionIndex ASC
`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ExportRow
	for rows.Next() {
		var row internal.ExportRow
		var fieldsJSON string
		var partial int
		if err := rows.Scan(&row.EmailID, &row.SectionIndex, &fieldsJSON, &row.FieldsValid, &row.FieldsFound, &partial); err != nil {
			return nil, err
		}
		row.Partial = partial != 0

		var fields storedFields
		_ = json.Unmarshal([]byte(fieldsJSON), &fields)
		row.Values = make(map[internal.Field]string, len(fields))
		row.Confidences = make(map[internal.Field]float64, len(fields))
		row.Statuses = make(map[internal.Field]internal.ValidationStatus, len(fields))
		for field, f := range fields {
			row.Values[field] = f.Value
			row.Confidences[field] = f.Confidence
			row.Statuses[field] = f.Status
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

func (d *DB) InsertRun(traceID string, emailID int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, emailId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, emailID, string(timingsJSON), string(countsJSON))
	return err
}

// AggregateRuns folds the most recent run records into summed timings and
// counts, for the metrics report.
func (d *DB) AggregateRuns(limit int) (int, map[string]float64, map[string]int, error) {
	rows, err := d.conn.Query(`
SELECT timingsJson, countsJson FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return 0, nil, nil, err
	}
	defer rows.Close()

	runs := 0
	timings := map[string]float64{}
	counts := map[string]int{}
	for rows.Next() {
		var timingsJSON, countsJSON string
		if err := rows.Scan(&timingsJSON, &countsJSON); err != nil {
			return 0, nil, nil, err
		}
		var t map[string]float64
		var c map[string]int
		_ = json.Unmarshal([]byte(timingsJSON), &t)
		_ = json.Unmarshal([]byte(countsJSON), &c)
		for k, v := range t {
			timings[k] += v
		}
		for k, v := range c {
			counts[k] += v
		}
		runs++
	}
	return runs, timings, counts, rows.Err()
}

func (d *DB) GetRegistryRecord(npi string) (*internal.RegistryRecord, error) {
	var rec internal.RegistryRecord
	var found int
	err := d.conn.QueryRow(`
SELECT npi, name, providerType, found, verifiedAt FROM registry_cache WHERE npi = ?
`, npi).Scan(&rec.NPI, &rec.Name, &rec.Type, &found, &rec.VerifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Found = found != 0
	return &rec, nil
}

func (d *DB) UpsertRegistryRecord(rec internal.RegistryRecord) error {
	found := 0
	if rec.Found {
		found = 1
	}
	_, err := d.conn.Exec(`
INSERT INTO registry_cache (npi, name, providerType, found, verifiedAt) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(npi) DO UPDATE SET
  name=excluded.name,
  providerType=excluded.providerType,
  found=excluded.found,
  verifiedAt=CURRENT_TIMESTAMP
`, rec.NPI, rec.Name, rec.Type, found)
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}
