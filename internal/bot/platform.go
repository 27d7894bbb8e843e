package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"grace-bot/internal/moderation"
	"grace-bot/internal/notify"

	"github.com/bwmarrin/discordgo"
)

// banPageSize is the maximum page Discord returns for a guild ban listing.
const banPageSize = 1000

// Platform is everything the bot needs from Discord. The production
// implementation wraps a discordgo session.
type Platform interface {
	moderation.Platform
	notify.Platform
	RegisterCommands(ctx context.Context, guildID string, commands []*discordgo.ApplicationCommand) error
	Respond(interaction *discordgo.Interaction, response *discordgo.InteractionResponse) error
}

type discordPlatform struct {
	session *discordgo.Session
}

func (p *discordPlatform) selfID() string {
	if p.session.State == nil || p.session.State.User == nil {
		return ""
	}
	return p.session.State.User.ID
}

func (p *discordPlatform) BotPermissions(ctx context.Context, guildID string) (int64, error) {
	guild, err := p.session.State.Guild(guildID)
	if err != nil {
		guild, err = p.session.Guild(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return 0, fmt.Errorf("fetch guild %s: %w", guildID, err)
		}
	}
	member, err := p.session.State.Member(guildID, p.selfID())
	if err != nil {
		member, err = p.session.GuildMember(guildID, p.selfID(), discordgo.WithContext(ctx))
		if err != nil {
			return 0, fmt.Errorf("fetch bot member in %s: %w", guildID, err)
		}
	}
	return guildPermissions(guild, member), nil
}

func (p *discordPlatform) Kick(ctx context.Context, guildID, userID, reason string) error {
	return moderationError(p.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)))
}

func (p *discordPlatform) Ban(ctx context.Context, guildID, userID, reason string) error {
	return moderationError(p.session.GuildBanCreateWithReason(guildID, userID, reason, 0, discordgo.WithContext(ctx)))
}

func (p *discordPlatform) Unban(ctx context.Context, guildID, userID, reason string) error {
	return moderationError(p.session.GuildBanDelete(guildID, userID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)))
}

func (p *discordPlatform) Bans(ctx context.Context, guildID string) ([]moderation.BannedUser, error) {
	var (
		banned []moderation.BannedUser
		after  string
	)
	for {
		page, err := p.session.GuildBans(guildID, banPageSize, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, moderationError(err)
		}
		for _, ban := range page {
			if ban == nil || ban.User == nil {
				continue
			}
			banned = append(banned, moderation.BannedUser{
				ID:            ban.User.ID,
				Username:      ban.User.Username,
				Discriminator: ban.User.Discriminator,
			})
			after = ban.User.ID
		}
		if len(page) < banPageSize {
			return banned, nil
		}
	}
}

func (p *discordPlatform) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	if guild, err := p.session.State.Guild(guildID); err == nil && len(guild.Channels) > 0 {
		return guild.Channels, nil
	}
	return p.session.GuildChannels(guildID)
}

func (p *discordPlatform) CanSend(_, channelID string) bool {
	perms, err := p.session.State.UserChannelPermissions(p.selfID(), channelID)
	if err != nil {
		return false
	}
	const required = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
	return perms&required == required
}

func (p *discordPlatform) SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
	_, err := p.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	return err
}

func (p *discordPlatform) RegisterCommands(ctx context.Context, guildID string, commands []*discordgo.ApplicationCommand) error {
	_, err := p.session.ApplicationCommandBulkOverwrite(p.selfID(), guildID, commands, discordgo.WithContext(ctx))
	return err
}

func (p *discordPlatform) Respond(interaction *discordgo.Interaction, response *discordgo.InteractionResponse) error {
	return p.session.InteractionRespond(interaction, response)
}

// moderationError classifies REST failures into the dispatcher's taxonomy.
func moderationError(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", moderation.ErrForbidden, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", moderation.ErrTargetNotFound, err)
		}
	}
	return err
}

// guildPermissions folds the @everyone role and the member's roles into a
// guild-level permission set. Owners and administrators get everything.
func guildPermissions(guild *discordgo.Guild, member *discordgo.Member) int64 {
	if guild == nil || member == nil {
		return 0
	}
	if member.User != nil && member.User.ID == guild.OwnerID {
		return discordgo.PermissionAll
	}

	memberRoles := make(map[string]struct{}, len(member.Roles))
	for _, id := range member.Roles {
		memberRoles[id] = struct{}{}
	}

	var perms int64
	for _, role := range guild.Roles {
		if role == nil {
			continue
		}
		if _, ok := memberRoles[role.ID]; ok || role.ID == guild.ID {
			perms |= role.Permissions
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return discordgo.PermissionAll
	}
	return perms
}
