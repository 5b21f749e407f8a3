// Package pgstore is a memory.VectorStore on PostgreSQL with the pgvector
// extension. Similarity search runs in the database (cosine distance) and
// hybrid search combines it with full-text ranking.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/itsneelabh/gomind-learning/core"
)

// DefaultTable is the table used when Config.Table is empty.
const DefaultTable = "learning_memories"

// Config configures the store.
type Config struct {
	URL       string
	Table     string
	Dimension int
	Logger    core.Logger
}

// Store implements memory.VectorStore and memory.HybridSearcher.
type Store struct {
	pool   *pgxpool.Pool
	table  string
	logger core.Logger
}

// New connects, installs the vector extension and creates the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres URL is required: %w", core.ErrMissingConfiguration)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("pgstore dimension must be positive: %w", core.ErrInvalidConfiguration)
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !validIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q: %w", table, core.ErrInvalidConfiguration)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres URL: %v: %w", err, core.ErrInvalidConfiguration)
	}

	// The extension must exist before the codec can be registered on pool connections
	conn, err := pgx.ConnectConfig(ctx, poolCfg.ConnConfig.Copy())
	if err != nil {
		return nil, core.NewExternalServiceError("pgstore.New", err)
	}
	_, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	_ = conn.Close(ctx)
	if err != nil {
		return nil, core.NewExternalServiceError("pgstore.New", fmt.Errorf("create vector extension: %w", err))
	}

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, core.NewExternalServiceError("pgstore.New", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, core.NewExternalServiceError("pgstore.New", fmt.Errorf("ping: %w", err))
	}

	s := &Store{
		pool:   pool,
		table:  table,
		logger: core.ComponentLogger(cfg.Logger, "learning/memory"),
	}
	if err := s.initSchema(ctx, cfg.Dimension); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context, dimension int) error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%[2]d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			created_at TIMESTAMPTZ NOT NULL,
			content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED
		);
		CREATE INDEX IF NOT EXISTS %[1]s_conversation_idx ON %[1]s (conversation_id, created_at);
		CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx ON %[1]s USING hnsw (embedding vector_cosine_ops);
		CREATE INDEX IF NOT EXISTS %[1]s_tsv_idx ON %[1]s USING GIN (content_tsv);
	`, s.table, dimension)

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return core.NewFrameworkError("pgstore.initSchema", "storage", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, m *core.Memory) error {
	if m == nil || m.ID == "" {
		return core.NewValidationError("pgstore.Put", "memory ID cannot be empty")
	}
	metadata, err := json.Marshal(nonNil(m.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, conversation_id, content, embedding, metadata, relevance_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			conversation_id = EXCLUDED.conversation_id,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			relevance_score = EXCLUDED.relevance_score,
			created_at = EXCLUDED.created_at
	`, s.table)

	_, err = s.pool.Exec(ctx, query, m.ID, m.ConversationID, m.Content,
		pgvector.NewVector(m.Embedding), metadata, m.RelevanceScore, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*core.Memory, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, content, embedding, metadata, relevance_score, created_at
		FROM %s WHERE id = $1
	`, s.table)

	m, err := scanMemory(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NewNotFoundError("pgstore.Get", "memory", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return m, nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, limit int, filter core.MemoryFilter) ([]core.ScoredMemory, error) {
	args := []interface{}{pgvector.NewVector(embedding)}
	where := whereClause(filter, &args)
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, conversation_id, content, embedding, metadata, relevance_score, created_at,
		       GREATEST(0, 1 - (embedding <=> $1)) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1, created_at DESC
		LIMIT $%d
	`, s.table, where, len(args))

	return s.queryScored(ctx, query, args...)
}

// QueryHybrid ranks by textWeight·ts_rank + vectorWeight·cosine. ts_rank
// normalisation 32 maps the rank into [0,1).
func (s *Store) QueryHybrid(ctx context.Context, text string, embedding []float32, limit int, textWeight, vectorWeight float64, filter core.MemoryFilter) ([]core.ScoredMemory, error) {
	args := []interface{}{pgvector.NewVector(embedding), text, textWeight, vectorWeight}
	where := whereClause(filter, &args)
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, conversation_id, content, embedding, metadata, relevance_score, created_at,
		       LEAST(1, $3::float8 * ts_rank(content_tsv, plainto_tsquery('simple', $2), 32)
		              + $4::float8 * GREATEST(0, 1 - (embedding <=> $1))) AS score
		FROM %s
		%s
		ORDER BY score DESC, created_at DESC
		LIMIT $%d
	`, s.table, where, len(args))

	return s.queryScored(ctx, query, args...)
}

func (s *Store) queryScored(ctx context.Context, query string, args ...interface{}) ([]core.ScoredMemory, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer rows.Close()

	var hits []core.ScoredMemory
	for rows.Next() {
		var (
			m        core.Memory
			vec      pgvector.Vector
			metadata []byte
			score    float64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &vec, &metadata, &m.RelevanceScore, &m.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		m.Embedding = vec.Slice()
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		hits = append(hits, core.ScoredMemory{Memory: &m, Score: core.Clamp01(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}
	if hits == nil {
		hits = []core.ScoredMemory{}
	}
	return hits, nil
}

func (s *Store) List(ctx context.Context, filter core.MemoryFilter) ([]*core.Memory, error) {
	var args []interface{}
	where := whereClause(filter, &args)
	query := fmt.Sprintf(`
		SELECT id, conversation_id, content, embedding, metadata, relevance_score, created_at
		FROM %s
		%s
		ORDER BY created_at, id
	`, s.table, where)

	rows, err := s.pool.Query(ctx, query, args...)
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
	query := fmt.Sprintf(`UPDATE %s SET relevance_score = $2 WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id, core.Clamp01(relevance))
	if err != nil {
		return fmt.Errorf("failed to update relevance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("pgstore.UpdateRelevance", "memory", id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table)
	tag, err := s.pool.Exec(ctx, query, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memories: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// whereClause renders filter as SQL, appending its arguments to args.
func whereClause(filter core.MemoryFilter, args *[]interface{}) string {
	var conds []string
	add := func(cond string, v interface{}) {
		*args = append(*args, v)
		conds = append(conds, fmt.Sprintf(cond, len(*args)))
	}

	if filter.ConversationID != "" {
		add("conversation_id = $%d", filter.ConversationID)
	}
	if filter.ExcludeConversationID != "" {
		add("conversation_id <> $%d", filter.ExcludeConversationID)
	}
	if !filter.Since.IsZero() {
		add("created_at >= $%d", filter.Since)
	}
	if !filter.Before.IsZero() {
		add("created_at < $%d", filter.Before)
	}
	if len(filter.Metadata) > 0 {
		b, _ := json.Marshal(filter.Metadata)
		add("metadata @> $%d::jsonb", string(b))
	}

	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}

func scanMemory(row pgx.Row) (*core.Memory, error) {
	var (
		m        core.Memory
		vec      pgvector.Vector
		metadata []byte
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Content, &vec, &metadata, &m.RelevanceScore, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Embedding = vec.Slice()
	if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &m, nil
}

func nonNil(md map[string]string) map[string]string {
	if md == nil {
		return map[string]string{}
	}
	return md
}

func validIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != ""
}
