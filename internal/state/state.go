package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"storefront/scraper/internal/domain"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// StateManager guards crawl runs and keeps the progress of the latest one.
type StateManager interface {
	// AcquireRun takes the run lock for runID. It returns
	// domain.ErrRunInProgress when another run holds it.
	AcquireRun(ctx context.Context, runID string) (release func(context.Context) error, err error)
	SaveCheckpoint(ctx context.Context, cp domain.Checkpoint) error
	// LastCheckpoint returns nil when no run has been recorded.
	LastCheckpoint(ctx context.Context) (*domain.Checkpoint, error)
}

// releaseScript deletes the lock only while it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// renewScript extends the lock TTL only while it still belongs to the caller.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

type redisStateManager struct {
	redisClient   *redis.Client
	lockKey       string
	checkpointKey string
	lockTTL       time.Duration
	renewEvery    time.Duration
}

func NewRedisStateManager(redisClient *redis.Client, keyPrefix string, lockTTL time.Duration) StateManager {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &redisStateManager{
		redisClient:   redisClient,
		lockKey:       keyPrefix + ":run:lock",
		checkpointKey: keyPrefix + ":run:last",
		lockTTL:       lockTTL,
		renewEvery:    max(lockTTL/3, time.Millisecond),
	}
}

func (s *redisStateManager) AcquireRun(ctx context.Context, runID string) (func(context.Context) error, error) {
	ok, err := s.redisClient.SetNX(ctx, s.lockKey, runID, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		holder, _ := s.redisClient.Get(ctx, s.lockKey).Result()
		log.Warnf("🔒 Run lock held by %s", holder)
		return nil, domain.ErrRunInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go s.keepAlive(runID, stop, done)

	var once sync.Once
	release := func(ctx context.Context) error {
		once.Do(func() { close(stop) })
		<-done
		if err := releaseScript.Run(ctx, s.redisClient, []string{s.lockKey}, runID).Err(); err != nil {
			return fmt.Errorf("failed to release run lock %s: %w", runID, err)
		}
		return nil
	}
	return release, nil
}

// keepAlive pushes the lock expiry forward until stop is closed or the lock
// is lost.
func (s *redisStateManager) keepAlive(runID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.renewEvery)
			n, err := renewScript.Run(ctx, s.redisClient, []string{s.lockKey}, runID, s.lockTTL.Milliseconds()).Int()
			cancel()
			if err != nil {
				log.Warnf("⚠️ Failed to renew run lock %s: %v", runID, err)
				continue
			}
			if n == 0 {
				log.Errorf("❌ Run lock %s lost before the run finished", runID)
				return
			}
		}
	}
}

func (s *redisStateManager) SaveCheckpoint(ctx context.Context, cp domain.Checkpoint) error {
	err := s.redisClient.HSet(ctx, s.checkpointKey, map[string]any{
		"run_id":     cp.RunID,
		"page":       cp.Page,
		"products":   cp.Products,
		"failures":   cp.Failures,
		"finished":   strconv.FormatBool(cp.Finished),
		"error":      cp.Error,
		"updated_at": cp.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for run %s: %w", cp.RunID, err)
	}
	return nil
}

func (s *redisStateManager) LastCheckpoint(ctx context.Context) (*domain.Checkpoint, error) {
	fields, err := s.redisClient.HGetAll(ctx, s.checkpointKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	cp := &domain.Checkpoint{
		RunID: fields["run_id"],
		Error: fields["error"],
	}
	if cp.Page, err = strconv.Atoi(fields["page"]); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint page: %w", err)
	}
	if cp.Products, err = strconv.Atoi(fields["products"]); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint products: %w", err)
	}
	if cp.Failures, err = strconv.Atoi(fields["failures"]); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint failures: %w", err)
	}
	cp.Finished, _ = strconv.ParseBool(fields["finished"])
	if ts := fields["updated_at"]; ts != "" {
		if cp.UpdatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("failed to parse checkpoint time: %w", err)
		}
	}
	return cp, nil
}

// localStateManager keeps the lock and checkpoint in process memory.
type localStateManager struct {
	lock       sync.Mutex
	mu         sync.RWMutex
	checkpoint *domain.Checkpoint
}

func NewLocalStateManager() StateManager {
	return &localStateManager{}
}

func (s *localStateManager) AcquireRun(_ context.Context, runID string) (func(context.Context) error, error) {
	if !s.lock.TryLock() {
		return nil, domain.ErrRunInProgress
	}

	var once sync.Once
	release := func(context.Context) error {
		released := false
		once.Do(func() {
			s.lock.Unlock()
			released = true
		})
		if !released {
			return errors.New("run lock " + runID + " already released")
		}
		return nil
	}
	return release, nil
}

func (s *localStateManager) SaveCheckpoint(_ context.Context, cp domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = &cp
	return nil
}

func (s *localStateManager) LastCheckpoint(context.Context) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.checkpoint == nil {
		return nil, nil
	}
	cp := *s.checkpoint
	return &cp, nil
}
