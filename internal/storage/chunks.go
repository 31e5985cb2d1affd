package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// SaveChunks inserts document chunks in a single transaction.
func (s *Store) SaveChunks(chunks []Chunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO chunks (id, content, category, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		metadata := c.Metadata
		if metadata == "" {
			metadata = "{}"
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		// NULL embedding keeps the chunk out of vector scans until embedded.
		var blob any
		if len(c.Embedding) > 0 {
			blob = EncodeVector(c.Embedding)
		}
		if _, err := stmt.Exec(c.ID, c.Content, c.Category, metadata, blob, createdAt.UTC().Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetChunk returns a single chunk by ID.
func (s *Store) GetChunk(id string) (Chunk, error) {
	row := s.db.QueryRow(`
		SELECT id, content, category, metadata, embedding, created_at
		FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return Chunk{}, ErrNotFound
	}
	return c, err
}

// GetChunksByIDs returns chunks matching the given IDs.
func (s *Store) GetChunksByIDs(ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	queryArgs := make([]any, len(ids))
	for i, id := range ids {
		queryArgs[i] = id
	}
	query := `SELECT id, content, category, metadata, embedding, created_at
		FROM chunks WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.Query(query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks by IDs: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// AllChunks returns every chunk, oldest first. Used for keyword index rebuilds.
func (s *Store) AllChunks() ([]Chunk, error) {
	rows, err := s.db.Query(`
		SELECT id, content, category, metadata, embedding, created_at
		FROM chunks ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying all chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of stored chunks.
func (s *Store) CountChunks() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&count)
	return count, err
}

func scanChunk(row rowScanner) (Chunk, error) {
	var c Chunk
	var blob []byte
	var createdAt string
	if err := row.Scan(&c.ID, &c.Content, &c.Category, &c.Metadata, &blob, &createdAt); err != nil {
		return Chunk{}, err
	}
	if len(blob) > 0 {
		embedding, err := DecodeVector(blob)
		if err != nil {
			return Chunk{}, fmt.Errorf("decoding embedding for chunk %s: %w", c.ID, err)
		}
		c.Embedding = embedding
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Chunk{}, fmt.Errorf("parsing created_at for chunk %s: %w", c.ID, err)
	}
	c.CreatedAt = t
	return c, nil
}

// EncodeVector serializes a float32 slice to little-endian bytes.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
