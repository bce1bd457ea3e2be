package cache

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS embeddings (
	pos    INTEGER PRIMARY KEY,
	vector BLOB NOT NULL
);
`

// SQLite stores snapshots in a local SQLite database, one row per vector.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) a SQLite-backed store at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// Load reads the full snapshot. An empty database is a clean miss.
func (s *SQLite) Load() (*Snapshot, error) {
	var backend string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'backend'`).Scan(&backend)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT vector FROM embeddings ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	snap := &Snapshot{Backend: backend}
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		vec, err := bytesToVector(blob)
		if err != nil {
			return nil, err
		}
		snap.Vectors = append(snap.Vectors, vec)
	}
	return snap, rows.Err()
}

// Save replaces any previous snapshot in a single transaction.
func (s *SQLite) Save(snap *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM embeddings`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('backend', ?)`, snap.Backend); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO embeddings (pos, vector) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for pos, vec := range snap.Vectors {
		blob, err := vectorToBytes(vec)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(pos, blob); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// vectorToBytes encodes a vector as a little-endian blob with a length
// prefix.
func vectorToBytes(vec []float64) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, int32(len(vec))); err != nil {
		return nil, fmt.Errorf("failed to write vector length: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("failed to write vector values: %w", err)
	}
	return buf.Bytes(), nil
}

func bytesToVector(data []byte) ([]float64, error) {
	buf := bytes.NewReader(data)
	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read vector length: %w", err)
	}
	if length < 0 || int(length)*8 != len(data)-4 {
		return nil, fmt.Errorf("corrupt vector blob: length %d for %d payload bytes", length, len(data)-4)
	}
	vec := make([]float64, length)
	if err := binary.Read(buf, binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("failed to read vector values: %w", err)
	}
	return vec, nil
}
