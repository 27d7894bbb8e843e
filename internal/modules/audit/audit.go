package audit

import (
	"context"
	"time"

	"grace-bot/internal/storage"

	"go.uber.org/zap"
)

type Store interface {
	AddModerationLog(ctx context.Context, log storage.ModerationLog) error
}

// Logger records moderation actions in the store and the process log.
type Logger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewLogger(store Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, now: time.Now}
}

func (l *Logger) Record(ctx context.Context, guildID, actorID, targetID, action, reason string) {
	entry := storage.ModerationLog{
		GuildID:   guildID,
		ActorID:   actorID,
		TargetID:  targetID,
		Action:    action,
		Reason:    reason,
		CreatedAt: l.now(),
	}
	if l.store != nil {
		if err := l.store.AddModerationLog(ctx, entry); err != nil {
			l.logger.Warn("moderation log write failed", zap.String("guild_id", guildID), zap.Error(err))
		}
	}
	l.logger.Info("moderation",
		zap.String("action", action),
		zap.String("guild_id", guildID),
		zap.String("actor_id", actorID),
		zap.String("target_id", targetID),
		zap.String("reason", reason),
	)
}
