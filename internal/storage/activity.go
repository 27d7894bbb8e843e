package storage

import (
	"context"
	"fmt"
	"sort"
)

// Activity maps guild ID to member ID to message count.
type Activity map[int64]map[int64]int64

func (s *Store) ListGuilds(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id FROM guilds ORDER BY guild_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []int64
	for rows.Next() {
		var guildID int64
		if err := rows.Scan(&guildID); err != nil {
			return nil, err
		}
		guilds = append(guilds, guildID)
	}
	return guilds, rows.Err()
}

// LoadActivity returns every known guild, including guilds without member rows.
func (s *Store) LoadActivity(ctx context.Context) (Activity, error) {
	guilds, err := s.ListGuilds(ctx)
	if err != nil {
		return nil, err
	}
	activity := make(Activity, len(guilds))
	for _, guildID := range guilds {
		activity[guildID] = make(map[int64]int64)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT guild_id, member_id, messages FROM member_activity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var guildID, memberID, messages int64
		if err := rows.Scan(&guildID, &memberID, &messages); err != nil {
			return nil, err
		}
		members := activity[guildID]
		if members == nil {
			members = make(map[int64]int64)
			activity[guildID] = members
		}
		members[memberID] = messages
	}
	return activity, rows.Err()
}

// SaveActivity writes the snapshot in one transaction: unknown guilds are
// inserted, member rows are inserted or updated. Saving the same snapshot
// twice leaves the tables unchanged.
func (s *Store) SaveActivity(ctx context.Context, activity Activity) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	guildStmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO guilds (guild_id) VALUES (?)
		ON CONFLICT (guild_id) DO NOTHING
	`))
	if err != nil {
		return err
	}
	defer guildStmt.Close()

	memberStmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO member_activity (guild_id, member_id, messages)
		VALUES (?, ?, ?)
		ON CONFLICT (guild_id, member_id) DO UPDATE SET
			messages = excluded.messages
	`))
	if err != nil {
		return err
	}
	defer memberStmt.Close()

	for _, guildID := range sortedKeys(activity) {
		if _, err = guildStmt.ExecContext(ctx, guildID); err != nil {
			return fmt.Errorf("save guild %d: %w", guildID, err)
		}
		members := activity[guildID]
		for _, memberID := range sortedKeys(members) {
			if _, err = memberStmt.ExecContext(ctx, guildID, memberID, members[memberID]); err != nil {
				return fmt.Errorf("save member %d in guild %d: %w", memberID, guildID, err)
			}
		}
	}

	return tx.Commit()
}

// DeleteGuild removes the guild; its activity rows go with it.
func (s *Store) DeleteGuild(ctx context.Context, guildID int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM guilds WHERE guild_id = ?`), guildID)
	return err
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
