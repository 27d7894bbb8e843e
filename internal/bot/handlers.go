package bot

import (
	"bytes"
	"context"
	"strconv"

	"grace-bot/internal/i18n"
	"grace-bot/internal/levelcard"
	"grace-bot/internal/moderation"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) handleMessage(ctx context.Context, msg *discordgo.Message) {
	if msg == nil || msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	guildID, err := strconv.ParseInt(msg.GuildID, 10, 64)
	if err != nil {
		return
	}
	memberID, err := strconv.ParseInt(msg.Author.ID, 10, 64)
	if err != nil {
		return
	}

	progress := b.tracker.Observe(ctx, guildID, memberID)
	if !progress.LeveledUp {
		return
	}

	channelID, ok := b.notifier.Preferred(msg.GuildID, msg.ChannelID)
	if !ok {
		return
	}
	send := &discordgo.MessageSend{
		Content: i18n.T(b.cfg.DefaultLanguage, "level_up", msg.Author.ID, progress.Level),
	}
	if b.cfg.Notifications.LevelCards {
		card, err := levelcard.Render(displayName(msg.Member, msg.Author), progress.Level, progress.Count)
		if err != nil {
			b.logger.Warn("level card render failed", zap.Error(err))
		} else {
			send.Files = []*discordgo.File{{
				Name:        levelcard.FileName,
				ContentType: "image/png",
				Reader:      bytes.NewReader(card),
			}}
		}
	}
	if err := b.notifier.SendTo(ctx, msg.GuildID, channelID, send); err != nil {
		b.logger.Warn("level-up notice not sent",
			zap.String("guild_id", msg.GuildID),
			zap.String("member_id", msg.Author.ID),
			zap.Error(err))
	}
}

func (b *Bot) handleInteraction(ctx context.Context, interaction *discordgo.InteractionCreate) {
	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, interaction)
	case discordgo.InteractionMessageComponent:
		if guildID, ok := retryGuildID(interaction.MessageComponentData().CustomID); ok {
			b.handleRetry(ctx, interaction, guildID)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, interaction *discordgo.InteractionCreate) {
	lang := b.cfg.DefaultLanguage
	data := interaction.ApplicationCommandData()

	if data.Name == moderation.CommandHelp {
		b.respond(interaction, &discordgo.InteractionResponseData{
			Content: i18n.T(lang, "help_content"),
			Embeds: []*discordgo.MessageEmbed{{
				Description: i18n.T(lang, "help_embed"),
				Color:       b.cfg.Notifications.EmbedColors.Info,
			}},
		})
		return
	}

	if interaction.GuildID == "" || interaction.Member == nil || interaction.Member.User == nil {
		b.respond(interaction, &discordgo.InteractionResponseData{Content: i18n.T(lang, "unknown_command")})
		return
	}

	reply := b.dispatcher.Handle(ctx, moderation.Invocation{
		GuildID:     interaction.GuildID,
		ActorID:     interaction.Member.User.ID,
		ActorName:   interaction.Member.User.Username,
		Permissions: interaction.Member.Permissions,
		Command:     commandFromData(data),
	})
	b.respond(interaction, &discordgo.InteractionResponseData{Content: reply})
}

// commandFromData resolves the interaction payload into the dispatcher's
// command union. Only context-menu invocations carry a TargetID.
func commandFromData(data discordgo.ApplicationCommandInteractionData) moderation.Command {
	if data.TargetID != "" {
		return moderation.ContextMenuCommand{Name: data.Name, TargetID: data.TargetID}
	}

	cmd := moderation.SlashCommand{Name: data.Name}
	for _, option := range data.Options {
		if option == nil {
			continue
		}
		value, _ := option.Value.(string)
		switch option.Name {
		case moderation.OptionUser:
			cmd.TargetID = value
		case moderation.OptionUserName:
			cmd.Query = value
		}
	}
	return cmd
}

func (b *Bot) respond(interaction *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	err := b.platform.Respond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.logger.Warn("interaction response failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
	}
}

func (b *Bot) handleGuildCreate(ctx context.Context, guild *discordgo.Guild) {
	if guild == nil || guild.Unavailable {
		return
	}
	if err := b.registerGuild(ctx, guild.ID, false); err != nil {
		b.logger.Error("command registration failed", zap.String("guild_id", guild.ID), zap.Error(err))
		b.reportRegistrationFailure(ctx, guild.ID, err)
	}
}

// handleGuildDelete drops everything held for a guild the bot was removed
// from. Outages arrive as unavailable guilds and keep their state.
func (b *Bot) handleGuildDelete(ctx context.Context, guild *discordgo.Guild) {
	if guild == nil || guild.Unavailable {
		return
	}
	b.notifier.Forget(guild.ID)
	b.unregisterGuild(guild.ID)

	guildID, err := strconv.ParseInt(guild.ID, 10, 64)
	if err != nil {
		return
	}
	if err := b.tracker.Remove(ctx, guildID, b.store.DeleteGuild); err != nil {
		b.logger.Error("guild cleanup failed", zap.String("guild_id", guild.ID), zap.Error(err))
		return
	}
	b.logger.Info("guild removed", zap.String("guild_id", guild.ID))
}

func displayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user == nil && member != nil {
		user = member.User
	}
	if user != nil {
		return user.Username
	}
	return ""
}
