// Package activity counts messages per guild member and keeps the counts
// synchronized with a durable store.
package activity

import (
	"context"
	"sync"
	"time"

	"grace-bot/internal/storage"

	"go.uber.org/zap"
)

const DefaultMessagesPerLevel = 5

type Store interface {
	LoadActivity(ctx context.Context) (storage.Activity, error)
	SaveActivity(ctx context.Context, activity storage.Activity) error
}

// Progress is the result of counting one message.
type Progress struct {
	Count     int64
	Level     int64
	LeveledUp bool
}

// Tracker is the source of truth for message counts between flushes.
type Tracker struct {
	mu       sync.Mutex
	counts   storage.Activity
	perLevel int64

	// flushMu keeps an older snapshot from committing after a newer one.
	flushMu sync.Mutex
	store   Store
	logger  *zap.Logger
}

func NewTracker(store Store, messagesPerLevel int, logger *zap.Logger) *Tracker {
	if messagesPerLevel <= 0 {
		messagesPerLevel = DefaultMessagesPerLevel
	}
	return &Tracker{
		counts:   make(storage.Activity),
		perLevel: int64(messagesPerLevel),
		store:    store,
		logger:   logger,
	}
}

// Load merges the persisted counts into the tracker. Counts already observed
// in this session win over the stored ones when they are higher.
func (t *Tracker) Load(ctx context.Context) error {
	stored, err := t.store.LoadActivity(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for guildID, members := range stored {
		guild := t.guildLocked(guildID)
		for memberID, count := range members {
			if count > guild[memberID] {
				guild[memberID] = count
			}
		}
	}
	return nil
}

// Increment adds one message for the member and reports the new count.
func (t *Tracker) Increment(guildID, memberID int64) Progress {
	t.mu.Lock()
	guild := t.guildLocked(guildID)
	guild[memberID]++
	count := guild[memberID]
	t.mu.Unlock()

	progress := Progress{Count: count}
	if count > 0 && count%t.perLevel == 0 {
		progress.LeveledUp = true
		progress.Level = count / t.perLevel
	}
	return progress
}

// Observe increments the counter and flushes immediately on a level boundary.
// A flush error is logged; the progress is still returned.
func (t *Tracker) Observe(ctx context.Context, guildID, memberID int64) Progress {
	progress := t.Increment(guildID, memberID)
	if progress.LeveledUp {
		if err := t.Flush(ctx); err != nil {
			t.logger.Error("activity flush failed", zap.Int64("guild_id", guildID), zap.Error(err))
		}
	}
	return progress
}

func (t *Tracker) Count(guildID, memberID int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[guildID][memberID]
}

// Snapshot returns a deep copy of the counters.
func (t *Tracker) Snapshot() storage.Activity {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(storage.Activity, len(t.counts))
	for guildID, members := range t.counts {
		copied := make(map[int64]int64, len(members))
		for memberID, count := range members {
			copied[memberID] = count
		}
		out[guildID] = copied
	}
	return out
}

// Forget drops a guild from memory, used once the guild is gone.
func (t *Tracker) Forget(guildID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, guildID)
}

// Remove forgets a guild and runs purge with flushes held off, so a snapshot
// taken before the removal cannot write the guild back afterwards.
func (t *Tracker) Remove(ctx context.Context, guildID int64, purge func(ctx context.Context, guildID int64) error) error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.Forget(guildID)
	if purge == nil {
		return nil
	}
	return purge(ctx, guildID)
}

// Flush writes the whole map to the store. It is safe to call redundantly.
func (t *Tracker) Flush(ctx context.Context) error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	snapshot := t.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	return t.store.SaveActivity(ctx, snapshot)
}

// Run flushes every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t.logger.Info("activity flush loop started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Flush(ctx); err != nil {
				t.logger.Error("periodic activity flush failed", zap.Error(err))
			}
		}
	}
}

func (t *Tracker) guildLocked(guildID int64) map[int64]int64 {
	guild := t.counts[guildID]
	if guild == nil {
		guild = make(map[int64]int64)
		t.counts[guildID] = guild
	}
	return guild
}
