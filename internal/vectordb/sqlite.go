package vectordb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/diffsec/govern/internal/compliance"
	_ "modernc.org/sqlite"
)

// SQLiteMetaStore stores compliance chunk metadata in SQLite. It survives
// process restarts; resetting it is an explicit admin operation (Clear).
type SQLiteMetaStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteMetaStore creates a new SQLite metadata store.
func NewSQLiteMetaStore(path string) (*SQLiteMetaStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteMetaStore{db: db, path: path}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteMetaStore) init() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			framework TEXT NOT NULL,
			control_id TEXT NOT NULL,
			title TEXT NOT NULL,
			text TEXT NOT NULL,
			position INTEGER NOT NULL,
			metadata TEXT,
			vector_idx INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_framework ON chunks(framework);
		CREATE INDEX IF NOT EXISTS idx_chunks_control_id ON chunks(control_id);
		CREATE INDEX IF NOT EXISTS idx_chunks_vector_idx ON chunks(vector_idx);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	var b strings.Builder
	first := true
	for k, v := range m {
		if !first {
			b.WriteString("\x1f")
		}
		first = false
		b.WriteString(k)
		b.WriteString("\x1e")
		b.WriteString(v)
	}
	return b.String()
}

func decodeMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, "\x1f") {
		kv := strings.SplitN(pair, "\x1e", 2)
		if len(kv) == 2 {
			out[kv[0]] = kv[1]
		}
	}
	return out
}

// Insert adds a chunk to the metadata store at the given vector index.
func (s *SQLiteMetaStore) Insert(c *compliance.Chunk, vectorIdx int) error {
	query := `
		INSERT OR REPLACE INTO chunks
		(id, framework, control_id, title, text, position, metadata, vector_idx)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		c.ID,
		string(c.Framework),
		c.ControlID,
		c.Title,
		c.Text,
		c.Position,
		encodeMetadata(c.Metadata),
		vectorIdx,
	)
	return err
}

const selectColumns = `id, framework, control_id, title, text, position, metadata, vector_idx`

// Get retrieves a chunk by id, along with its vector index.
func (s *SQLiteMetaStore) Get(id string) (*compliance.Chunk, int, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM chunks WHERE id = ?`, id)
	return scanChunk(row)
}

// GetByVectorIdx retrieves a chunk by its vector index.
func (s *SQLiteMetaStore) GetByVectorIdx(vectorIdx int) (*compliance.Chunk, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM chunks WHERE vector_idx = ?`, vectorIdx)
	c, _, err := scanChunk(row)
	return c, err
}

// GetByControlID retrieves all chunks for a control, in position order.
func (s *SQLiteMetaStore) GetByControlID(controlID string) ([]*compliance.Chunk, error) {
	rows, err := s.db.Query(`SELECT `+selectColumns+` FROM chunks WHERE control_id = ? ORDER BY position`, controlID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chunks []*compliance.Chunk
	for rows.Next() {
		c, _, err := scanChunkRows(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetVectorIdxByControlID retrieves vector indices for all chunks of a
// control.
func (s *SQLiteMetaStore) GetVectorIdxByControlID(controlID string) ([]int, error) {
	rows, err := s.db.Query(`SELECT vector_idx FROM chunks WHERE control_id = ? AND vector_idx IS NOT NULL`, controlID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var indices []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}
	return indices, rows.Err()
}

// Delete removes a chunk by id.
func (s *SQLiteMetaStore) Delete(id string) error {
	_, err := s.db.Exec("DELETE FROM chunks WHERE id = ?", id)
	return err
}

// DeleteByControlID removes all chunks for a control and returns the freed
// vector indices.
func (s *SQLiteMetaStore) DeleteByControlID(controlID string) ([]int, error) {
	indices, err := s.GetVectorIdxByControlID(controlID)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec("DELETE FROM chunks WHERE control_id = ?", controlID); err != nil {
		return nil, err
	}
	return indices, nil
}

// Count returns the total number of chunks.
func (s *SQLiteMetaStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&count)
	return count, err
}

// CountByFramework returns the number of chunks for a framework.
func (s *SQLiteMetaStore) CountByFramework(framework compliance.Framework) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE framework = ?", string(framework)).Scan(&count)
	return count, err
}

// Frameworks returns every distinct framework with at least one chunk.
func (s *SQLiteMetaStore) Frameworks() ([]compliance.Framework, error) {
	rows, err := s.db.Query(`SELECT DISTINCT framework FROM chunks ORDER BY framework`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []compliance.Framework
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out = append(out, compliance.Framework(f))
	}
	return out, rows.Err()
}

// FilteredChunkIDs returns the vector indices matching filter.
func (s *SQLiteMetaStore) FilteredChunkIDs(filter *Filter) (map[int]bool, error) {
	if filter == nil {
		return nil, nil
	}

	var conditions []string
	var args []interface{}

	if len(filter.Frameworks) > 0 {
		placeholders := make([]string, len(filter.Frameworks))
		for i, f := range filter.Frameworks {
			placeholders[i] = "?"
			args = append(args, string(f))
		}
		conditions = append(conditions, "framework IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.ControlIDs) > 0 {
		placeholders := make([]string, len(filter.ControlIDs))
		for i, c := range filter.ControlIDs {
			placeholders[i] = "?"
			args = append(args, c)
		}
		conditions = append(conditions, "control_id IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(conditions) == 0 {
		return nil, nil
	}

	query := "SELECT vector_idx FROM chunks WHERE vector_idx IS NOT NULL AND " + strings.Join(conditions, " AND ")
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[int]bool)
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		result[idx] = true
	}
	return result, rows.Err()
}

// Clear removes all data.
func (s *SQLiteMetaStore) Clear() error {
	_, err := s.db.Exec("DELETE FROM chunks")
	return err
}

// Close closes the database connection.
func (s *SQLiteMetaStore) Close() error {
	return s.db.Close()
}

func scanChunk(row *sql.Row) (*compliance.Chunk, int, error) {
	var c compliance.Chunk
	var framework, metadata string
	var vectorIdx sql.NullInt64

	err := row.Scan(&c.ID, &framework, &c.ControlID, &c.Title, &c.Text, &c.Position, &metadata, &vectorIdx)
	if err != nil {
		return nil, 0, err
	}
	c.Framework = compliance.Framework(framework)
	c.Metadata = decodeMetadata(metadata)

	idx := 0
	if vectorIdx.Valid {
		idx = int(vectorIdx.Int64)
	}
	return &c, idx, nil
}

func scanChunkRows(rows *sql.Rows) (*compliance.Chunk, int, error) {
	var c compliance.Chunk
	var framework, metadata string
	var vectorIdx sql.NullInt64

	err := rows.Scan(&c.ID, &framework, &c.ControlID, &c.Title, &c.Text, &c.Position, &metadata, &vectorIdx)
	if err != nil {
		return nil, 0, err
	}
	c.Framework = compliance.Framework(framework)
	c.Metadata = decodeMetadata(metadata)

	idx := 0
	if vectorIdx.Valid {
		idx = int(vectorIdx.Int64)
	}
	return &c, idx, nil
}
