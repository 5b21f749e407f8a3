package patternstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/itsneelabh/gomind-learning/core"
)

var _ core.PatternRepository = (*RedisRepository)(nil)

// RedisRepository stores records as JSON strings with status index sets:
//
//	{prefix}:pattern:{id}            pattern JSON
//	{prefix}:patterns:{status|all}   set of pattern ids
//	{prefix}:pattern_triggers        hash triggerKey -> pattern id
//	{prefix}:proposal:{id}           proposal JSON
//	{prefix}:proposals:{status|all}  set of proposal ids
//	{prefix}:template:{pattern_id}   template JSON
//	{prefix}:outcome:{pattern_id}    hash {success, total}
//	{prefix}:generation              counter bumped on pattern/template/outcome writes
type RedisRepository struct {
	client *redis.Client
	prefix string
	logger core.Logger
}

// RedisRepositoryConfig configures the Redis repository.
type RedisRepositoryConfig struct {
	// KeyPrefix is the prefix for all keys
	// Default: "gomind:learning"
	KeyPrefix string `json:"key_prefix"`

	Logger core.Logger `json:"-"`
}

// NewRedisRepository creates a repository over an already connected client.
func NewRedisRepository(client *redis.Client, config RedisRepositoryConfig) *RedisRepository {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "gomind:learning"
	}
	return &RedisRepository{
		client: client,
		prefix: config.KeyPrefix,
		logger: core.ComponentLogger(config.Logger, "learning/patternstore"),
	}
}

func (r *RedisRepository) key(parts ...string) string {
	k := r.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (r *RedisRepository) SavePattern(ctx context.Context, p *core.Pattern) error {
	const op = "RedisRepository.SavePattern"
	if err := validatePattern(op, p); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize pattern: %w", err)
	}

	old, err := r.GetPattern(ctx, p.ID)
	if err != nil && !core.IsNotFound(err) {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old != nil {
			pipe.SRem(ctx, r.key("patterns", string(old.Status)), p.ID)
			pipe.HDel(ctx, r.key("pattern_triggers"), triggerKey(old.Type, old.Trigger))
		}
		pipe.Set(ctx, r.key("pattern", p.ID), data, 0)
		pipe.SAdd(ctx, r.key("patterns", "all"), p.ID)
		pipe.SAdd(ctx, r.key("patterns", string(p.Status)), p.ID)
		pipe.HSet(ctx, r.key("pattern_triggers"), triggerKey(p.Type, p.Trigger), p.ID)
		pipe.Incr(ctx, r.key("generation"))
		return nil
	})
	if err != nil {
		r.logger.ErrorWithContext(ctx, "Failed to save pattern", map[string]interface{}{
			"pattern_id": p.ID,
			"error":      err.Error(),
		})
		return core.NewExternalServiceError(op, err)
	}

	r.logger.DebugWithContext(ctx, "Pattern saved", map[string]interface{}{
		"pattern_id": p.ID,
		"status":     string(p.Status),
	})
	return nil
}

func (r *RedisRepository) GetPattern(ctx context.Context, id string) (*core.Pattern, error) {
	var p core.Pattern
	if err := r.getJSON(ctx, "RedisRepository.GetPattern", "pattern", id, r.key("pattern", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPatterns returns patterns with the given status (all when empty), oldest first.
func (r *RedisRepository) ListPatterns(ctx context.Context, status core.PatternStatus) ([]*core.Pattern, error) {
	set := string(status)
	if set == "" {
		set = "all"
	}

	values, err := r.listJSON(ctx, "RedisRepository.ListPatterns", r.key("patterns", set), "pattern")
	if err != nil {
		return nil, err
	}

	out := make([]*core.Pattern, 0, len(values))
	for _, v := range values {
		var p core.Pattern
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			r.logger.WarnWithContext(ctx, "Skipping corrupt pattern record", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		out = append(out, &p)
	}
	sortPatterns(out)
	return out, nil
}

func (r *RedisRepository) FindPattern(ctx context.Context, patternType core.PatternType, trigger string) (*core.Pattern, error) {
	const op = "RedisRepository.FindPattern"

	tk := triggerKey(patternType, trigger)
	id, err := r.client.HGet(ctx, r.key("pattern_triggers"), tk).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, core.NewNotFoundError(op, "pattern", tk)
		}
		return nil, core.NewExternalServiceError(op, err)
	}
	return r.GetPattern(ctx, id)
}

func (r *RedisRepository) SaveProposal(ctx context.Context, p *core.LearningProposal) error {
	const op = "RedisRepository.SaveProposal"
	if p == nil || p.ID == "" {
		return core.NewValidationError(op, "proposal ID cannot be empty")
	}

	exists, err := r.client.Exists(ctx, r.key("pattern", p.PatternID)).Result()
	if err != nil {
		return core.NewExternalServiceError(op, err)
	}
	if exists == 0 {
		return core.NewNotFoundError(op, "pattern", p.PatternID)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize proposal: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key("proposal", p.ID), data, 0)
		pipe.SAdd(ctx, r.key("proposals", "all"), p.ID)
		for _, s := range []core.ProposalStatus{core.ProposalPending, core.ProposalApproved, core.ProposalRejected} {
			if s != p.Status {
				pipe.SRem(ctx, r.key("proposals", string(s)), p.ID)
			}
		}
		pipe.SAdd(ctx, r.key("proposals", string(p.Status)), p.ID)
		return nil
	})
	if err != nil {
		r.logger.ErrorWithContext(ctx, "Failed to save proposal", map[string]interface{}{
			"proposal_id": p.ID,
			"error":       err.Error(),
		})
		return core.NewExternalServiceError(op, err)
	}
	return nil
}

func (r *RedisRepository) GetProposal(ctx context.Context, id string) (*core.LearningProposal, error) {
	var p core.LearningProposal
	if err := r.getJSON(ctx, "RedisRepository.GetProposal", "proposal", id, r.key("proposal", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProposals returns proposals with the given status (all when empty), oldest first.
func (r *RedisRepository) ListProposals(ctx context.Context, status core.ProposalStatus) ([]*core.LearningProposal, error) {
	set := string(status)
	if set == "" {
		set = "all"
	}

	values, err := r.listJSON(ctx, "RedisRepository.ListProposals", r.key("proposals", set), "proposal")
	if err != nil {
		return nil, err
	}

	out := make([]*core.LearningProposal, 0, len(values))
	for _, v := range values {
		var p core.LearningProposal
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			continue
		}
		out = append(out, &p)
	}
	sortProposals(out)
	return out, nil
}

func (r *RedisRepository) SaveTemplate(ctx context.Context, t *core.ResponseTemplate) error {
	const op = "RedisRepository.SaveTemplate"
	if t == nil || t.PatternID == "" {
		return core.NewValidationError(op, "template pattern ID cannot be empty")
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to serialize template: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key("template", t.PatternID), data, 0)
		pipe.Incr(ctx, r.key("generation"))
		return nil
	})
	if err != nil {
		return core.NewExternalServiceError(op, err)
	}
	return nil
}

func (r *RedisRepository) GetTemplate(ctx context.Context, patternID string) (*core.ResponseTemplate, error) {
	var t core.ResponseTemplate
	if err := r.getJSON(ctx, "RedisRepository.GetTemplate", "template", patternID, r.key("template", patternID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *RedisRepository) RecordOutcome(ctx context.Context, patternID string, success bool) error {
	const op = "RedisRepository.RecordOutcome"
	if patternID == "" {
		return core.NewValidationError(op, "pattern ID cannot be empty")
	}

	key := r.key("outcome", patternID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "total", 1)
		if success {
			pipe.HIncrBy(ctx, key, "success", 1)
		}
		pipe.Incr(ctx, r.key("generation"))
		return nil
	})
	if err != nil {
		return core.NewExternalServiceError(op, err)
	}
	return nil
}

// Generation reads the shared write counter, so caches in every process see
// writes made by the others.
func (r *RedisRepository) Generation(ctx context.Context) (int64, error) {
	n, err := r.client.Get(ctx, r.key("generation")).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, core.NewExternalServiceError("RedisRepository.Generation", err)
	}
	return n, nil
}

// SuccessRate is successes/total, or NeutralSuccessRate without data.
func (r *RedisRepository) SuccessRate(ctx context.Context, patternID string) (float64, error) {
	fields, err := r.client.HGetAll(ctx, r.key("outcome", patternID)).Result()
	if err != nil {
		return NeutralSuccessRate, core.NewExternalServiceError("RedisRepository.SuccessRate", err)
	}
	success, _ := strconv.ParseInt(fields["success"], 10, 64)
	total, _ := strconv.ParseInt(fields["total"], 10, 64)
	return rate(success, total), nil
}

func (r *RedisRepository) getJSON(ctx context.Context, op, kind, id, key string, v interface{}) error {
	if id == "" {
		return core.NewValidationError(op, kind+" ID cannot be empty")
	}

	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return core.NewNotFoundError(op, kind, id)
		}
		r.logger.ErrorWithContext(ctx, "Failed to read record", map[string]interface{}{
			"kind":  kind,
			"id":    id,
			"error": err.Error(),
		})
		return core.NewExternalServiceError(op, err)
	}

	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to deserialize %s: %w", kind, err)
	}
	return nil
}

// listJSON loads every record whose id is in the index set. Ids whose
// record has disappeared are skipped.
func (r *RedisRepository) listJSON(ctx context.Context, op, setKey, kind string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, core.NewExternalServiceError(op, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(kind, id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, core.NewExternalServiceError(op, err)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}
