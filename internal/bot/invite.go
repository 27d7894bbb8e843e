package bot

import (
	"strconv"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/oauth2"
)

const authorizeURL = "https://discord.com/oauth2/authorize"

// InvitePermissions are requested when the bot is added to a guild.
const InvitePermissions int64 = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionEmbedLinks |
	discordgo.PermissionAttachFiles |
	discordgo.PermissionKickMembers |
	discordgo.PermissionBanMembers

// InviteURL builds the OAuth2 authorization link that adds the bot with
// its slash and context-menu commands.
func InviteURL(applicationID string) string {
	conf := &oauth2.Config{
		ClientID: applicationID,
		Endpoint: oauth2.Endpoint{AuthURL: authorizeURL},
		Scopes:   []string{"bot", "applications.commands"},
	}
	return conf.AuthCodeURL("", oauth2.SetAuthURLParam("permissions", strconv.FormatInt(InvitePermissions, 10)))
}
