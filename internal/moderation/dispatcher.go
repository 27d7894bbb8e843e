// Package moderation turns kick, ban and unban commands into platform calls
// after checking the invoking member's and the bot's permissions.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"grace-bot/internal/i18n"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var (
	ErrUnknownCommand       = errors.New("unknown command")
	ErrPermissionDenied     = errors.New("invoking member lacks permission")
	ErrMissingBotPermission = errors.New("bot lacks permission")
	ErrForbidden            = errors.New("forbidden by platform")
	ErrTargetNotFound       = errors.New("target not found")
	ErrAmbiguousTarget      = errors.New("ambiguous target")
)

type BannedUser struct {
	ID            string
	Username      string
	Discriminator string
}

// Display is the string unban queries are matched against.
func (u BannedUser) Display() string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// Platform performs moderation calls against the chat platform. Errors
// that the platform refused wrap ErrForbidden; unknown users wrap
// ErrTargetNotFound.
type Platform interface {
	BotPermissions(ctx context.Context, guildID string) (int64, error)
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
	Unban(ctx context.Context, guildID, userID, reason string) error
	Bans(ctx context.Context, guildID string) ([]BannedUser, error)
}

type Recorder interface {
	Record(ctx context.Context, guildID, actorID, targetID, action, reason string)
}

type Invocation struct {
	GuildID     string
	ActorID     string
	ActorName   string
	Permissions int64
	Command     Command
}

type Result struct {
	Action   Action
	TargetID string
}

type Dispatcher struct {
	platform Platform
	recorder Recorder
	logger   *zap.Logger
	lang     string
}

func NewDispatcher(platform Platform, recorder Recorder, logger *zap.Logger, lang string) *Dispatcher {
	return &Dispatcher{platform: platform, recorder: recorder, logger: logger, lang: lang}
}

// Handle executes the invocation and returns the reply for the invoking user.
func (d *Dispatcher) Handle(ctx context.Context, inv Invocation) string {
	result, err := d.Execute(ctx, inv)
	return d.reply(inv, result, err)
}

func (d *Dispatcher) Execute(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Command == nil {
		return Result{}, ErrUnknownCommand
	}
	name := inv.Command.CommandName()
	action, ok := ActionFor(name)
	if !ok {
		return Result{}, ErrUnknownCommand
	}
	result := Result{Action: action}

	required := action.Permission()
	if !hasPermission(inv.Permissions, required) {
		return result, ErrPermissionDenied
	}

	botPerms, err := d.platform.BotPermissions(ctx, inv.GuildID)
	if err != nil {
		d.logger.Error("resolve bot permissions", zap.String("guild_id", inv.GuildID), zap.Error(err))
		return result, err
	}
	if !hasPermission(botPerms, required) {
		return result, ErrMissingBotPermission
	}

	reason := fmt.Sprintf("%s %s command", inv.ActorName, name)

	switch action {
	case ActionUnban:
		target, err := d.resolveBanned(ctx, inv.GuildID, query(inv.Command))
		if err != nil {
			return result, err
		}
		result.TargetID = target.ID
		err = d.platform.Unban(ctx, inv.GuildID, target.ID, reason)
		if err != nil {
			return result, d.platformError(inv, result, err)
		}
	default:
		target := targetID(inv.Command)
		if _, err := strconv.ParseUint(target, 10, 64); err != nil {
			return result, ErrTargetNotFound
		}
		result.TargetID = target
		if action == ActionKick {
			err = d.platform.Kick(ctx, inv.GuildID, target, reason)
		} else {
			err = d.platform.Ban(ctx, inv.GuildID, target, reason)
		}
		if err != nil {
			return result, d.platformError(inv, result, err)
		}
	}

	if d.recorder != nil {
		d.recorder.Record(ctx, inv.GuildID, inv.ActorID, result.TargetID, string(action), reason)
	}
	return result, nil
}

// resolveBanned finds the single ban entry whose display string contains q.
// Matching is case-sensitive.
func (d *Dispatcher) resolveBanned(ctx context.Context, guildID, q string) (BannedUser, error) {
	if q == "" {
		return BannedUser{}, ErrTargetNotFound
	}
	bans, err := d.platform.Bans(ctx, guildID)
	if err != nil {
		d.logger.Error("list bans", zap.String("guild_id", guildID), zap.Error(err))
		return BannedUser{}, err
	}

	var match *BannedUser
	for i := range bans {
		if !strings.Contains(bans[i].Display(), q) {
			continue
		}
		if match != nil {
			return BannedUser{}, ErrAmbiguousTarget
		}
		match = &bans[i]
	}
	if match == nil {
		return BannedUser{}, ErrTargetNotFound
	}
	return *match, nil
}

func (d *Dispatcher) platformError(inv Invocation, result Result, err error) error {
	if errors.Is(err, ErrForbidden) || errors.Is(err, ErrTargetNotFound) {
		return err
	}
	d.logger.Error("moderation action failed",
		zap.String("action", string(result.Action)),
		zap.String("guild_id", inv.GuildID),
		zap.String("target_id", result.TargetID),
		zap.Error(err),
	)
	return fmt.Errorf("%s %s: %w", result.Action, result.TargetID, err)
}

func (d *Dispatcher) reply(inv Invocation, result Result, err error) string {
	switch {
	case err == nil:
		switch result.Action {
		case ActionKick:
			return i18n.T(d.lang, "kicked", result.TargetID)
		case ActionBan:
			return i18n.T(d.lang, "banned", result.TargetID)
		default:
			return i18n.T(d.lang, "unbanned", result.TargetID)
		}
	case errors.Is(err, ErrUnknownCommand):
		return i18n.T(d.lang, "unknown_command")
	case errors.Is(err, ErrPermissionDenied):
		return i18n.T(d.lang, "user_needs_permission", i18n.T(d.lang, "permission_"+permissionKey(result.Action)))
	case errors.Is(err, ErrMissingBotPermission):
		return i18n.T(d.lang, "bot_needs_"+permissionKey(result.Action))
	case errors.Is(err, ErrForbidden):
		return i18n.T(d.lang, "forbidden_"+string(result.Action))
	case errors.Is(err, ErrAmbiguousTarget):
		return i18n.T(d.lang, "unban_ambiguous", query(inv.Command))
	case errors.Is(err, ErrTargetNotFound):
		if result.Action == ActionUnban {
			return i18n.T(d.lang, "unban_not_found", query(inv.Command))
		}
		return i18n.T(d.lang, "member_not_found")
	default:
		return i18n.T(d.lang, "generic_failure")
	}
}

func permissionKey(action Action) string {
	if action == ActionKick {
		return "kick"
	}
	return "ban"
}

func hasPermission(perms, required int64) bool {
	return perms&discordgo.PermissionAdministrator != 0 || perms&required == required
}
