package analytics

import (
	"context"

	"grace-bot/internal/storage"
)

type ActivitySource interface {
	Snapshot() storage.Activity
}

type ModerationSource interface {
	CountModerationActions(ctx context.Context) (map[string]int, error)
}

type Service struct {
	activity   ActivitySource
	moderation ModerationSource
}

func New(activity ActivitySource, moderation ModerationSource) *Service {
	return &Service{activity: activity, moderation: moderation}
}

type Report struct {
	Guilds   int            `json:"guilds"`
	Members  int            `json:"members"`
	Messages int64          `json:"messages"`
	Actions  map[string]int `json:"moderation_actions"`
}

func (s *Service) Report(ctx context.Context) (Report, error) {
	report := Report{Actions: make(map[string]int)}
	for _, members := range s.activity.Snapshot() {
		report.Guilds++
		for _, count := range members {
			report.Members++
			report.Messages += count
		}
	}

	if s.moderation == nil {
		return report, nil
	}
	actions, err := s.moderation.CountModerationActions(ctx)
	if err != nil {
		return Report{}, err
	}
	for action, count := range actions {
		report.Actions[action] = count
	}
	return report, nil
}
