package moderation

import "github.com/bwmarrin/discordgo"

// Command is either a SlashCommand or a ContextMenuCommand.
type Command interface {
	CommandName() string
}

// SlashCommand is a chat-input command. TargetID is set for kick and ban,
// Query for unban.
type SlashCommand struct {
	Name     string
	TargetID string
	Query    string
}

func (c SlashCommand) CommandName() string { return c.Name }

// ContextMenuCommand is a user context-menu command aimed at TargetID.
type ContextMenuCommand struct {
	Name     string
	TargetID string
}

func (c ContextMenuCommand) CommandName() string { return c.Name }

type Action string

const (
	ActionKick  Action = "kick"
	ActionBan   Action = "ban"
	ActionUnban Action = "unban"
)

// Command names as registered with Discord.
const (
	CommandHelp     = "help"
	CommandKick     = "kick"
	CommandBan      = "ban"
	CommandUnban    = "unban"
	CommandKickUser = "Kick User"
	CommandBanUser  = "Ban User"
	OptionUser      = "user"
	OptionUserName  = "user_name"
)

func ActionFor(name string) (Action, bool) {
	switch name {
	case CommandKick, CommandKickUser:
		return ActionKick, true
	case CommandBan, CommandBanUser:
		return ActionBan, true
	case CommandUnban:
		return ActionUnban, true
	default:
		return "", false
	}
}

// Permission is the permission both the invoking member and the bot need.
func (a Action) Permission() int64 {
	if a == ActionKick {
		return discordgo.PermissionKickMembers
	}
	return discordgo.PermissionBanMembers
}

func targetID(cmd Command) string {
	switch c := cmd.(type) {
	case SlashCommand:
		return c.TargetID
	case ContextMenuCommand:
		return c.TargetID
	default:
		return ""
	}
}

func query(cmd Command) string {
	if c, ok := cmd.(SlashCommand); ok {
		return c.Query
	}
	return ""
}
