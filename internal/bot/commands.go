package bot

import (
	"context"
	"fmt"
	"strings"

	"grace-bot/internal/i18n"
	"grace-bot/internal/moderation"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	retryCustomIDPrefix = "recreate_guild_cmds:"
	maxErrorEmbedRunes  = 4000
)

func guildCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Type:        discordgo.ChatApplicationCommand,
			Name:        moderation.CommandHelp,
			Description: "Show help",
			DescriptionLocalizations: &map[discordgo.Locale]string{
				discordgo.Russian:   "Показать справку",
				discordgo.EnglishUS: "Show help",
			},
		},
		{
			Type:        discordgo.ChatApplicationCommand,
			Name:        moderation.CommandKick,
			Description: "Kick a member from the server",
			DescriptionLocalizations: &map[discordgo.Locale]string{
				discordgo.Russian:   "Выгнать участника с сервера",
				discordgo.EnglishUS: "Kick a member from the server",
			},
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        moderation.OptionUser,
					Description: "Member to kick",
					DescriptionLocalizations: map[discordgo.Locale]string{
						discordgo.Russian:   "Участник",
						discordgo.EnglishUS: "Member to kick",
					},
					Required: true,
				},
			},
		},
		{
			Type:        discordgo.ChatApplicationCommand,
			Name:        moderation.CommandBan,
			Description: "Ban a member from the server",
			DescriptionLocalizations: &map[discordgo.Locale]string{
				discordgo.Russian:   "Забанить участника",
				discordgo.EnglishUS: "Ban a member from the server",
			},
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        moderation.OptionUser,
					Description: "Member to ban",
					DescriptionLocalizations: map[discordgo.Locale]string{
						discordgo.Russian:   "Участник",
						discordgo.EnglishUS: "Member to ban",
					},
					Required: true,
				},
			},
		},
		{
			Type:        discordgo.ChatApplicationCommand,
			Name:        moderation.CommandUnban,
			Description: "Lift a ban by user name",
			DescriptionLocalizations: &map[discordgo.Locale]string{
				discordgo.Russian:   "Разбанить пользователя по имени",
				discordgo.EnglishUS: "Lift a ban by user name",
			},
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        moderation.OptionUserName,
					Description: "Part of the banned user's name",
					DescriptionLocalizations: map[discordgo.Locale]string{
						discordgo.Russian:   "Часть имени пользователя",
						discordgo.EnglishUS: "Part of the banned user's name",
					},
					Required: true,
				},
			},
		},
		{
			Type: discordgo.UserApplicationCommand,
			Name: moderation.CommandKickUser,
		},
		{
			Type: discordgo.UserApplicationCommand,
			Name: moderation.CommandBanUser,
		},
	}
}

// registerGuild overwrites the guild's command set. A guild is registered at
// most once per process unless force is set.
func (b *Bot) registerGuild(ctx context.Context, guildID string, force bool) error {
	b.registeredMu.Lock()
	_, done := b.registered[guildID]
	b.registeredMu.Unlock()
	if done && !force {
		return nil
	}

	if err := b.platform.RegisterCommands(ctx, guildID, guildCommands()); err != nil {
		return fmt.Errorf("register commands in %s: %w", guildID, err)
	}

	b.registeredMu.Lock()
	b.registered[guildID] = struct{}{}
	b.registeredMu.Unlock()
	b.logger.Info("guild commands registered", zap.String("guild_id", guildID))
	return nil
}

func (b *Bot) unregisterGuild(guildID string) {
	b.registeredMu.Lock()
	delete(b.registered, guildID)
	b.registeredMu.Unlock()
}

// reportRegistrationFailure posts the error with a retry button to the
// guild's announcement channel.
func (b *Bot) reportRegistrationFailure(ctx context.Context, guildID string, cause error) {
	lang := b.cfg.DefaultLanguage
	msg := &discordgo.MessageSend{
		Content: i18n.T(lang, "commands_failed"),
		Embeds: []*discordgo.MessageEmbed{
			{
				Description: truncateRunes(cause.Error(), maxErrorEmbedRunes),
				Color:       b.cfg.Notifications.EmbedColors.Error,
			},
		},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    i18n.T(lang, "retry_label"),
						Style:    discordgo.PrimaryButton,
						CustomID: retryCustomIDPrefix + guildID,
					},
				},
			},
		},
	}
	if err := b.notifier.Send(ctx, guildID, msg); err != nil {
		b.logger.Warn("registration failure notice not sent", zap.String("guild_id", guildID), zap.Error(err))
	}
}

func (b *Bot) handleRetry(ctx context.Context, interaction *discordgo.InteractionCreate, guildID string) {
	lang := b.cfg.DefaultLanguage
	err := b.registerGuild(ctx, guildID, true)
	content := i18n.T(lang, "retry_success")
	if err != nil {
		b.logger.Warn("command registration retry failed", zap.String("guild_id", guildID), zap.Error(err))
		content = i18n.T(lang, "retry_failure")
	}

	response := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	}
	if rerr := b.platform.Respond(interaction.Interaction, response); rerr != nil {
		b.logger.Warn("retry response failed", zap.String("guild_id", guildID), zap.Error(rerr))
	}
	if err != nil {
		b.reportRegistrationFailure(ctx, guildID, err)
	}
}

func retryGuildID(customID string) (string, bool) {
	guildID, ok := strings.CutPrefix(customID, retryCustomIDPrefix)
	if !ok || guildID == "" {
		return "", false
	}
	return guildID, true
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
