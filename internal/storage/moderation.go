package storage

import (
	"context"
	"time"
)

type ModerationLog struct {
	ID        int64
	GuildID   string
	ActorID   string
	TargetID  string
	Action    string
	Reason    string
	CreatedAt time.Time
}

func (s *Store) AddModerationLog(ctx context.Context, log ModerationLog) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO moderation_log (guild_id, actor_id, target_id, action, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), log.GuildID, log.ActorID, log.TargetID, log.Action, log.Reason, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListModerationLogs(ctx context.Context, guildID string, since time.Time) ([]ModerationLog, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, guild_id, actor_id, target_id, action, reason, created_at
		FROM moderation_log
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
	`), guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []ModerationLog
	for rows.Next() {
		var log ModerationLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.ActorID, &log.TargetID, &log.Action, &log.Reason, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// CountModerationActions returns the number of logged actions per action name.
func (s *Store) CountModerationActions(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM moderation_log GROUP BY action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[action] = count
	}
	return counts, rows.Err()
}
