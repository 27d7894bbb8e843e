package bot

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"grace-bot/internal/config"
	"grace-bot/internal/i18n"
	"grace-bot/internal/levelcard"
	"grace-bot/internal/moderation"
	"grace-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	channelID string
	msg       *discordgo.MessageSend
}

type fakePlatform struct {
	mu sync.Mutex

	botPerms int64
	bans     []moderation.BannedUser
	kicked   []string
	banned   []string
	unbanned []string

	channels  []*discordgo.Channel
	sendable  map[string]bool
	sent      []sentMessage
	responses []*discordgo.InteractionResponse

	registerErr   error
	registerCalls []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		botPerms: discordgo.PermissionKickMembers | discordgo.PermissionBanMembers,
		channels: []*discordgo.Channel{
			{ID: "general", Type: discordgo.ChannelTypeGuildText, Position: 0},
			{ID: "spam", Type: discordgo.ChannelTypeGuildText, Position: 1},
		},
		sendable: map[string]bool{"general": true, "spam": true},
	}
}

func (f *fakePlatform) BotPermissions(context.Context, string) (int64, error) {
	return f.botPerms, nil
}

func (f *fakePlatform) Kick(_ context.Context, _, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicked = append(f.kicked, userID)
	return nil
}

func (f *fakePlatform) Ban(_ context.Context, _, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned = append(f.banned, userID)
	return nil
}

func (f *fakePlatform) Unban(_ context.Context, _, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbanned = append(f.unbanned, userID)
	return nil
}

func (f *fakePlatform) Bans(context.Context, string) ([]moderation.BannedUser, error) {
	return f.bans, nil
}

func (f *fakePlatform) GuildChannels(string) ([]*discordgo.Channel, error) {
	return f.channels, nil
}

func (f *fakePlatform) CanSend(_, channelID string) bool {
	return f.sendable[channelID]
}

func (f *fakePlatform) SendMessage(_ context.Context, channelID string, msg *discordgo.MessageSend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channelID: channelID, msg: msg})
	return nil
}

func (f *fakePlatform) RegisterCommands(_ context.Context, guildID string, _ []*discordgo.ApplicationCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls = append(f.registerCalls, guildID)
	return f.registerErr
}

func (f *fakePlatform) Respond(_ *discordgo.Interaction, response *discordgo.InteractionResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response)
	return nil
}

func newTestBot(t *testing.T, platform Platform, configure ...func(*config.Config)) *Bot {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "grace.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())

	cfg := config.DefaultConfig()
	for _, fn := range configure {
		fn(&cfg)
	}
	return newBot(cfg, zap.NewNop(), store, platform)
}

func message(guildID, channelID, authorID string) *discordgo.Message {
	return &discordgo.Message{
		GuildID:   guildID,
		ChannelID: channelID,
		Author:    &discordgo.User{ID: authorID, Username: "anna"},
	}
}

func commandInteraction(data discordgo.ApplicationCommandInteractionData, perms int64) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "1",
		Member: &discordgo.Member{
			User:        &discordgo.User{ID: "9", Username: "mod"},
			Permissions: perms,
		},
		Data: data,
	}}
}

func TestLevelUpAnnouncement(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform)
	ctx := context.Background()

	for range 4 {
		b.handleMessage(ctx, message("1", "spam", "42"))
	}
	assert.Empty(t, platform.sent)

	b.handleMessage(ctx, message("1", "spam", "42"))
	require.Len(t, platform.sent, 1)
	assert.Equal(t, "spam", platform.sent[0].channelID)
	assert.Equal(t, i18n.T(i18n.English, "level_up", "42", int64(1)), platform.sent[0].msg.Content)
	assert.Empty(t, platform.sent[0].msg.Files)

	stored, err := b.store.LoadActivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Activity{1: {42: 5}}, stored)
}

func TestLevelUpFallsBackToResolvedChannel(t *testing.T) {
	platform := newFakePlatform()
	platform.sendable["spam"] = false
	b := newTestBot(t, platform, func(cfg *config.Config) { cfg.Activity.MessagesPerLevel = 1 })

	b.handleMessage(context.Background(), message("1", "spam", "42"))
	require.Len(t, platform.sent, 1)
	assert.Equal(t, "general", platform.sent[0].channelID)
}

func TestLevelUpAttachesCard(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform, func(cfg *config.Config) {
		cfg.Activity.MessagesPerLevel = 1
		cfg.Notifications.LevelCards = true
	})

	b.handleMessage(context.Background(), message("1", "general", "42"))
	require.Len(t, platform.sent, 1)
	require.Len(t, platform.sent[0].msg.Files, 1)
	assert.Equal(t, levelcard.FileName, platform.sent[0].msg.Files[0].Name)
	assert.Equal(t, "image/png", platform.sent[0].msg.Files[0].ContentType)
}

func TestIgnoredMessages(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform, func(cfg *config.Config) { cfg.Activity.MessagesPerLevel = 1 })
	ctx := context.Background()

	botMsg := message("1", "general", "42")
	botMsg.Author.Bot = true
	b.handleMessage(ctx, botMsg)
	b.handleMessage(ctx, message("", "dm", "42"))
	b.handleMessage(ctx, &discordgo.Message{GuildID: "1"})

	assert.Empty(t, platform.sent)
	assert.Empty(t, b.tracker.Snapshot())
}

func TestVoiceNotices(t *testing.T) {
	member := &discordgo.Member{Nick: "Anna", User: &discordgo.User{ID: "42", Username: "anna"}}
	tests := []struct {
		name   string
		before string
		after  string
		want   string
	}{
		{name: "joined", after: "v1", want: i18n.T(i18n.English, "voice_joined", "Anna", "v1")},
		{name: "left", before: "v1", want: i18n.T(i18n.English, "voice_left", "Anna", "v1")},
		{name: "moved", before: "v1", after: "v2", want: i18n.T(i18n.English, "voice_moved", "Anna", "v1", "v2")},
		{name: "same channel", before: "v1", after: "v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := newFakePlatform()
			b := newTestBot(t, platform)

			event := &discordgo.VoiceStateUpdate{
				VoiceState: &discordgo.VoiceState{GuildID: "1", UserID: "42", ChannelID: tt.after, Member: member},
			}
			if tt.before != "" {
				event.BeforeUpdate = &discordgo.VoiceState{GuildID: "1", UserID: "42", ChannelID: tt.before}
			}
			b.handleVoiceState(context.Background(), event)

			if tt.want == "" {
				assert.Empty(t, platform.sent)
				return
			}
			require.Len(t, platform.sent, 1)
			assert.Equal(t, "general", platform.sent[0].channelID)
			assert.Equal(t, tt.want, platform.sent[0].msg.Content)
		})
	}
}

func TestVoiceNoticesDisabled(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform, func(cfg *config.Config) { cfg.Notifications.VoiceEvents = false })

	b.handleVoiceState(context.Background(), &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{GuildID: "1", UserID: "42", ChannelID: "v1"},
	})
	assert.Empty(t, platform.sent)
}

func TestHelpCommand(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform)

	b.handleInteraction(context.Background(), commandInteraction(discordgo.ApplicationCommandInteractionData{
		Name: moderation.CommandHelp,
	}, 0))

	require.Len(t, platform.responses, 1)
	data := platform.responses[0].Data
	assert.Equal(t, "Hello", data.Content)
	require.Len(t, data.Embeds, 1)
	assert.Equal(t, "Ahhh!", data.Embeds[0].Description)
}

func TestKickSlashCommand(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform)
	ctx := context.Background()

	b.handleInteraction(ctx, commandInteraction(discordgo.ApplicationCommandInteractionData{
		Name:    moderation.CommandKick,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: moderation.OptionUser, Type: discordgo.ApplicationCommandOptionUser, Value: "42"},
		},
	}, discordgo.PermissionKickMembers))

	assert.Equal(t, []string{"42"}, platform.kicked)
	require.Len(t, platform.responses, 1)
	assert.Equal(t, i18n.T(i18n.English, "kicked", "42"), platform.responses[0].Data.Content)

	logs, err := b.store.ListModerationLogs(ctx, "1", time.Time{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "kick", logs[0].Action)
	assert.Equal(t, "9", logs[0].ActorID)
}

func TestKickWithoutPermission(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform)

	b.handleInteraction(context.Background(), commandInteraction(discordgo.ApplicationCommandInteractionData{
		Name:    moderation.CommandKick,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: moderation.OptionUser, Type: discordgo.ApplicationCommandOptionUser, Value: "42"},
		},
	}, discordgo.PermissionSendMessages))

	assert.Empty(t, platform.kicked)
	require.Len(t, platform.responses, 1)
	assert.Equal(t,
		i18n.T(i18n.English, "user_needs_permission", i18n.T(i18n.English, "permission_kick")),
		platform.responses[0].Data.Content)
}

func TestBanContextMenu(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform)

	b.handleInteraction(context.Background(), commandInteraction(discordgo.ApplicationCommandInteractionData{
		Name:     moderation.CommandBanUser,
		TargetID: "77",
	}, discordgo.PermissionBanMembers))

	assert.Equal(t, []string{"77"}, platform.banned)
	require.Len(t, platform.responses, 1)
	assert.Equal(t, i18n.T(i18n.English, "banned", "77"), platform.responses[0].Data.Content)
}

func TestUnbanByName(t *testing.T) {
	platform := newFakePlatform()
	platform.bans = []moderation.BannedUser{
		{ID: "7", Username: "anna"},
		{ID: "8", Username: "bob", Discriminator: "1234"},
	}
	b := newTestBot(t, platform)

	b.handleInteraction(context.Background(), commandInteraction(discordgo.ApplicationCommandInteractionData{
		Name:    moderation.CommandUnban,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: moderation.OptionUserName, Type: discordgo.ApplicationCommandOptionString, Value: "b#12"},
		},
	}, discordgo.PermissionBanMembers))

	assert.Equal(t, []string{"8"}, platform.unbanned)
	require.Len(t, platform.responses, 1)
	assert.Equal(t, i18n.T(i18n.English, "unbanned", "8"), platform.responses[0].Data.Content)
}

func TestRegistrationFailureOffersRetry(t *testing.T) {
	platform := newFakePlatform()
	platform.registerErr = errors.New("missing access")
	b := newTestBot(t, platform)
	ctx := context.Background()

	b.handleGuildCreate(ctx, &discordgo.Guild{ID: "1"})
	require.Len(t, platform.sent, 1)
	notice := platform.sent[0].msg
	assert.Equal(t, i18n.T(i18n.English, "commands_failed"), notice.Content)
	require.Len(t, notice.Embeds, 1)
	assert.Contains(t, notice.Embeds[0].Description, "missing access")
	require.Len(t, notice.Components, 1)
	row, ok := notice.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 1)
	button, ok := row.Components[0].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, "recreate_guild_cmds:1", button.CustomID)

	platform.registerErr = nil
	b.handleInteraction(ctx, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "1",
		Data:    discordgo.MessageComponentInteractionData{CustomID: button.CustomID},
	}})

	assert.Equal(t, []string{"1", "1"}, platform.registerCalls)
	require.Len(t, platform.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, platform.responses[0].Type)
	assert.Equal(t, i18n.T(i18n.English, "retry_success"), platform.responses[0].Data.Content)
	assert.Empty(t, platform.responses[0].Data.Components)
	assert.Len(t, platform.sent, 1)
}

func TestRetryFailurePostsNewNotice(t *testing.T) {
	platform := newFakePlatform()
	platform.registerErr = errors.New("missing access")
	b := newTestBot(t, platform)

	b.handleInteraction(context.Background(), &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "1",
		Data:    discordgo.MessageComponentInteractionData{CustomID: "recreate_guild_cmds:1"},
	}})

	require.Len(t, platform.responses, 1)
	assert.Equal(t, i18n.T(i18n.English, "retry_failure"), platform.responses[0].Data.Content)
	assert.Len(t, platform.sent, 1)
}

func TestGuildCreateRegistersOnce(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform)
	ctx := context.Background()

	b.handleGuildCreate(ctx, &discordgo.Guild{ID: "1"})
	b.handleGuildCreate(ctx, &discordgo.Guild{ID: "1"})
	b.handleGuildCreate(ctx, &discordgo.Guild{ID: "2", Unavailable: true})

	assert.Equal(t, []string{"1"}, platform.registerCalls)
	assert.Empty(t, platform.sent)
}

func TestGuildDeleteForgetsGuild(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform, func(cfg *config.Config) { cfg.Activity.MessagesPerLevel = 1 })
	ctx := context.Background()

	b.handleGuildCreate(ctx, &discordgo.Guild{ID: "1"})
	b.handleMessage(ctx, message("1", "general", "42"))
	b.handleMessage(ctx, message("2", "general", "42"))

	b.handleGuildDelete(ctx, &discordgo.Guild{ID: "2", Unavailable: true})
	assert.Equal(t, int64(1), b.tracker.Count(2, 42))

	b.handleGuildDelete(ctx, &discordgo.Guild{ID: "1"})
	assert.Equal(t, int64(0), b.tracker.Count(1, 42))

	stored, err := b.store.LoadActivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Activity{2: {42: 1}}, stored)

	b.handleGuildCreate(ctx, &discordgo.Guild{ID: "1"})
	assert.Equal(t, []string{"1", "1"}, platform.registerCalls)
}

func TestReport(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform)
	ctx := context.Background()

	b.handleMessage(ctx, message("1", "general", "42"))
	b.handleMessage(ctx, message("1", "general", "43"))

	report, err := b.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Guilds)
	assert.Equal(t, 2, report.Members)
	assert.Equal(t, int64(2), report.Messages)
}

func TestCommandFromData(t *testing.T) {
	cmd := commandFromData(discordgo.ApplicationCommandInteractionData{
		Name:     moderation.CommandKickUser,
		TargetID: "42",
	})
	assert.Equal(t, moderation.ContextMenuCommand{Name: moderation.CommandKickUser, TargetID: "42"}, cmd)

	cmd = commandFromData(discordgo.ApplicationCommandInteractionData{
		Name:    moderation.CommandUnban,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: moderation.OptionUserName, Type: discordgo.ApplicationCommandOptionString, Value: "ann"},
		},
	})
	assert.Equal(t, moderation.SlashCommand{Name: moderation.CommandUnban, Query: "ann"}, cmd)

	// The user option fills TargetID on the slash variant, not the payload's.
	cmd = commandFromData(discordgo.ApplicationCommandInteractionData{
		Name: moderation.CommandKick,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: moderation.OptionUser, Type: discordgo.ApplicationCommandOptionUser, Value: "42"},
		},
	})
	assert.Equal(t, moderation.SlashCommand{Name: moderation.CommandKick, TargetID: "42"}, cmd)
}

func TestGuildCommandsPayload(t *testing.T) {
	commands := guildCommands()
	byName := make(map[string]*discordgo.ApplicationCommand, len(commands))
	for _, cmd := range commands {
		byName[cmd.Name] = cmd
	}
	require.Len(t, byName, 6)

	assert.Empty(t, byName[moderation.CommandHelp].Options)
	for _, name := range []string{moderation.CommandKick, moderation.CommandBan} {
		require.Len(t, byName[name].Options, 1)
		assert.Equal(t, discordgo.ApplicationCommandOptionUser, byName[name].Options[0].Type)
		assert.Equal(t, moderation.OptionUser, byName[name].Options[0].Name)
		assert.True(t, byName[name].Options[0].Required)
	}
	require.Len(t, byName[moderation.CommandUnban].Options, 1)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, byName[moderation.CommandUnban].Options[0].Type)
	assert.Equal(t, moderation.OptionUserName, byName[moderation.CommandUnban].Options[0].Name)

	for _, name := range []string{moderation.CommandKickUser, moderation.CommandBanUser} {
		assert.Equal(t, discordgo.UserApplicationCommand, byName[name].Type)
		assert.Empty(t, byName[name].Description)
	}
}

func TestGuildPermissions(t *testing.T) {
	guild := &discordgo.Guild{
		ID:      "1",
		OwnerID: "100",
		Roles: []*discordgo.Role{
			{ID: "1", Permissions: discordgo.PermissionSendMessages},
			{ID: "mods", Permissions: discordgo.PermissionKickMembers},
			{ID: "admins", Permissions: discordgo.PermissionAdministrator},
		},
	}

	member := &discordgo.Member{User: &discordgo.User{ID: "5"}, Roles: []string{"mods"}}
	assert.Equal(t, int64(discordgo.PermissionSendMessages|discordgo.PermissionKickMembers), guildPermissions(guild, member))

	admin := &discordgo.Member{User: &discordgo.User{ID: "6"}, Roles: []string{"admins"}}
	assert.Equal(t, int64(discordgo.PermissionAll), guildPermissions(guild, admin))

	owner := &discordgo.Member{User: &discordgo.User{ID: "100"}}
	assert.Equal(t, int64(discordgo.PermissionAll), guildPermissions(guild, owner))

	assert.Zero(t, guildPermissions(nil, member))
}

func TestModerationError(t *testing.T) {
	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden, Status: "403 Forbidden"}}
	assert.ErrorIs(t, moderationError(forbidden), moderation.ErrForbidden)

	missing := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound, Status: "404 Not Found"}}
	assert.ErrorIs(t, moderationError(missing), moderation.ErrTargetNotFound)

	other := errors.New("connection reset")
	assert.Equal(t, other, moderationError(other))
	assert.NoError(t, moderationError(nil))
}

func TestInviteURL(t *testing.T) {
	raw := InviteURL("123456")
	require.True(t, strings.HasPrefix(raw, authorizeURL+"?"))

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, "123456", query.Get("client_id"))
	assert.Equal(t, "bot applications.commands", query.Get("scope"))
	assert.Equal(t, strconv.FormatInt(InvitePermissions, 10), query.Get("permissions"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, "hé", truncateRunes("héllo", 2))
	assert.Len(t, []rune(truncateRunes(strings.Repeat("я", 5000), maxErrorEmbedRunes)), maxErrorEmbedRunes)
}

func TestRetryGuildID(t *testing.T) {
	guildID, ok := retryGuildID("recreate_guild_cmds:55")
	require.True(t, ok)
	assert.Equal(t, "55", guildID)

	_, ok = retryGuildID("recreate_guild_cmds:")
	assert.False(t, ok)
	_, ok = retryGuildID("other:55")
	assert.False(t, ok)
}

func TestCloseStopsTasksAndFlushes(t *testing.T) {
	platform := newFakePlatform()
	b := newTestBot(t, platform)
	ctx := context.Background()

	b.startTasks()
	stopped := make(chan struct{})
	b.Go(func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	})

	b.handleMessage(ctx, message("1", "general", "42"))
	require.NoError(t, b.Close(ctx))

	select {
	case <-stopped:
	default:
		t.Fatal("background task still running after Close")
	}
	stored, err := b.store.LoadActivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Activity{1: {42: 1}}, stored)
}
