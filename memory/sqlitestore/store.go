// Package sqlitestore is a memory.VectorStore in a single SQLite file.
// Embeddings are stored as little-endian float32 BLOBs and ranked in process,
// which suits tens of thousands of memories per database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/memory"
)

// Store implements memory.VectorStore over database/sql with the pure-Go
// modernc SQLite driver.
type Store struct {
	db *sql.DB
}

// New opens the database at path (":memory:" for a private in-memory
// database) and creates the schema.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required: %w", core.ErrMissingConfiguration)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			relevance_score REAL NOT NULL DEFAULT 0.5,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, m *core.Memory) error {
	if m == nil || m.ID == "" {
		return core.NewValidationError("sqlitestore.Put", "memory ID cannot be empty")
	}
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, conversation_id, content, embedding, metadata, relevance_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			relevance_score = excluded.relevance_score,
			created_at = excluded.created_at
	`, m.ID, m.ConversationID, m.Content, encodeVector(m.Embedding), string(metadata), m.RelevanceScore, m.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*core.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, content, embedding, metadata, relevance_score, created_at
		FROM memories WHERE id = ?
	`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("sqlitestore.Get", "memory", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return m, nil
}

// Query loads the filtered rows and ranks them by cosine similarity.
func (s *Store) Query(ctx context.Context, embedding []float32, limit int, filter core.MemoryFilter) ([]core.ScoredMemory, error) {
	candidates, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	hits := make([]core.ScoredMemory, 0, len(candidates))
	for _, m := range candidates {
		if len(m.Embedding) != len(embedding) {
			continue
		}
		hits = append(hits, core.ScoredMemory{
			Memory: m,
			Score:  memory.Similarity(memory.Cosine(embedding, m.Embedding)),
		})
	}
	memory.SortByScore(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) List(ctx context.Context, filter core.MemoryFilter) ([]*core.Memory, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.ConversationID != "" {
		conds = append(conds, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if filter.ExcludeConversationID != "" {
		conds = append(conds, "conversation_id <> ?")
		args = append(args, filter.ExcludeConversationID)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if !filter.Before.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.Before.UnixNano())
	}
	for k, v := range filter.Metadata {
		conds = append(conds, "json_extract(metadata, ?) = ?")
		args = append(args, "$."+jsonKey(k), v)
	}

	query := `SELECT id, conversation_id, content, embedding, metadata, relevance_score, created_at FROM memories`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	out := []*core.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateRelevance(ctx context.Context, id string, relevance float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET relevance_score = ? WHERE id = ?`, core.Clamp01(relevance), id)
	if err != nil {
		return fmt.Errorf("failed to update relevance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewNotFoundError("sqlitestore.UpdateRelevance", "memory", id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memories: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (*core.Memory, error) {
	var (
		m         core.Memory
		blob      []byte
		metadata  string
		createdAt int64
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Content, &blob, &metadata, &m.RelevanceScore, &createdAt); err != nil {
		return nil, err
	}
	m.Embedding = decodeVector(blob)
	m.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if m.Metadata == nil {
		m.Metadata = map[string]string{}
	}
	return &m, nil
}

// jsonKey quotes a metadata key for a JSON path.
func jsonKey(k string) string {
	return `"` + strings.ReplaceAll(k, `"`, `\"`) + `"`
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
