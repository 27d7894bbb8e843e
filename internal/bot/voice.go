package bot

import (
	"context"

	"grace-bot/internal/i18n"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) handleVoiceState(ctx context.Context, event *discordgo.VoiceStateUpdate) {
	if !b.cfg.Notifications.VoiceEvents || event == nil || event.VoiceState == nil || event.GuildID == "" {
		return
	}

	var before string
	if event.BeforeUpdate != nil {
		before = event.BeforeUpdate.ChannelID
	}
	after := event.ChannelID
	if before == after {
		return
	}

	name := displayName(event.Member, nil)
	if name == "" {
		name = "<@" + event.UserID + ">"
	}

	lang := b.cfg.DefaultLanguage
	var content string
	switch {
	case after == "":
		content = i18n.T(lang, "voice_left", name, before)
	case before == "":
		content = i18n.T(lang, "voice_joined", name, after)
	default:
		content = i18n.T(lang, "voice_moved", name, before, after)
	}

	if err := b.notifier.Send(ctx, event.GuildID, &discordgo.MessageSend{Content: content}); err != nil {
		b.logger.Warn("voice notice not sent", zap.String("guild_id", event.GuildID), zap.Error(err))
	}
}
