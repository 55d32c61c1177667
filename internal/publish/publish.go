// Package publish pushes the labeled workers and the inference manifest of
// a training run to Redis so that serving processes can read tiers without
// touching the model directory.
//
// Key layout, all under a configurable prefix:
//
//	<prefix>:worker:<id>   hash of features, cluster and tier label
//	<prefix>:workers       set of the worker ids of the last run
//	<prefix>:tiers         hash of tier label to worker count
//	<prefix>:model         inference manifest JSON
//
// Every key of one run is written in a single MULTI/EXEC transaction. Worker
// hashes left over from a previous run are deleted in the same transaction,
// so readers never see workers from two runs.
package publish

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Iron-Ham/workertiers/internal/cluster"
	"github.com/Iron-Ham/workertiers/internal/config"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/logging"
)

// SourceName identifies Redis in DataSourceError values.
const SourceName = "redis"

// WorkerKey returns the hash key of one worker.
func WorkerKey(prefix, workerID string) string {
	return fmt.Sprintf("%s:worker:%s", prefix, workerID)
}

// WorkersKey returns the key of the set of published worker ids.
func WorkersKey(prefix string) string {
	return prefix + ":workers"
}

// TiersKey returns the key of the tier count hash.
func TiersKey(prefix string) string {
	return prefix + ":tiers"
}

// ModelKey returns the key holding the inference manifest.
func ModelKey(prefix string) string {
	return prefix + ":model"
}

// WorkerFields returns the hash fields stored for one labeled worker.
func WorkerFields(w cluster.LabeledWorker, runID string, publishedAt time.Time) map[string]any {
	return map[string]any{
		"worker_id":         w.WorkerID,
		"name":              w.Name,
		"worker_code":       w.WorkerCode,
		"cluster":           w.Cluster,
		"performance_label": w.Label,
		"attendance_rate":   formatFloat(w.AttendanceRate),
		"avg_work_hours":    formatFloat(w.AvgWorkHours),
		"punctuality_score": formatFloat(w.PunctualityScore),
		"consistency_score": formatFloat(w.ConsistencyScore),
		"total_records":     w.TotalRecords,
		"run_id":            runID,
		"published_at":      publishedAt.Unix(),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Publisher writes run results to Redis.
type Publisher struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time
}

// New creates a Publisher over an existing client. A zero ttl keeps keys
// until the next run overwrites them.
func New(client redis.Cmdable, prefix string, ttl time.Duration, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Publisher{client: client, prefix: prefix, ttl: ttl, logger: logger, now: time.Now}
}

// Open connects to the configured Redis server and checks it with PING.
// The returned client must be closed by the caller.
func Open(ctx context.Context, cfg config.PublishConfig, logger *logging.Logger) (*Publisher, *redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil, tierrors.NewValidationError("publishing is disabled").WithField("publish.redis_addr")
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, tierrors.NewDataSourceError("failed to connect to redis", err).
			WithSource(SourceName).
			WithCollection(cfg.RedisAddr)
	}
	return New(client, cfg.KeyPrefix, cfg.TTL(), logger), client, nil
}

// staleWorkers returns the ids in previous that are not in l.
func staleWorkers(previous []string, l cluster.Labeling) []string {
	current := make(map[string]struct{}, len(l.Workers))
	for _, w := range l.Workers {
		current[w.WorkerID] = struct{}{}
	}
	var stale []string
	for _, id := range previous {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	return stale
}

// queue adds the commands of one publication to pipe and returns them.
// stale lists worker ids of the previous run whose hashes are deleted.
func (p *Publisher) queue(ctx context.Context, pipe redis.Pipeliner, l cluster.Labeling, manifest []byte, runID string, stale []string) []redis.Cmder {
	now := p.now()
	var cmds []redis.Cmder

	if len(stale) > 0 {
		keys := make([]string, len(stale))
		for i, id := range stale {
			keys[i] = WorkerKey(p.prefix, id)
		}
		cmds = append(cmds, pipe.Del(ctx, keys...))
	}

	ids := make([]any, 0, len(l.Workers))
	for _, w := range l.Workers {
		ids = append(ids, w.WorkerID)
		key := WorkerKey(p.prefix, w.WorkerID)
		cmds = append(cmds, pipe.HSet(ctx, key, WorkerFields(w, runID, now)))
		if p.ttl > 0 {
			cmds = append(cmds, pipe.Expire(ctx, key, p.ttl))
		}
	}

	tiers := make(map[string]any, len(l.Mapping))
	for label, n := range l.Counts() {
		tiers[label] = n
	}
	tiersKey := TiersKey(p.prefix)
	cmds = append(cmds, pipe.Del(ctx, tiersKey))
	if len(tiers) > 0 {
		cmds = append(cmds, pipe.HSet(ctx, tiersKey, tiers))
	}
	cmds = append(cmds, pipe.Set(ctx, ModelKey(p.prefix), string(manifest), p.ttl))
	if p.ttl > 0 {
		cmds = append(cmds, pipe.Expire(ctx, tiersKey, p.ttl))
	}

	workersKey := WorkersKey(p.prefix)
	cmds = append(cmds, pipe.Del(ctx, workersKey))
	cmds = append(cmds, pipe.SAdd(ctx, workersKey, ids...))
	if p.ttl > 0 {
		cmds = append(cmds, pipe.Expire(ctx, workersKey, p.ttl))
	}
	return cmds
}

// Publish writes every worker hash, the tier counts and the manifest in one
// transaction and returns the number of workers published.
func (p *Publisher) Publish(ctx context.Context, l cluster.Labeling, manifest []byte, runID string) (int, error) {
	if len(l.Workers) == 0 {
		return 0, tierrors.NewValidationError("no labeled workers to publish")
	}

	previous, err := p.client.SMembers(ctx, WorkersKey(p.prefix)).Result()
	if err != nil {
		return 0, tierrors.NewDataSourceError("failed to read published workers", err).
			WithSource(SourceName).
			WithCollection(p.prefix)
	}
	stale := staleWorkers(previous, l)

	pipe := p.client.TxPipeline()
	p.queue(ctx, pipe, l, manifest, runID, stale)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, tierrors.NewDataSourceError("failed to publish results", err).
			WithSource(SourceName).
			WithCollection(p.prefix)
	}

	p.logger.Info("results published",
		"workers", len(l.Workers),
		"removed", len(stale),
		"prefix", p.prefix,
		"ttl", p.ttl.String(),
	)
	return len(l.Workers), nil
}
