package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"grace-bot/internal/activity"
	"grace-bot/internal/analytics"
	"grace-bot/internal/config"
	"grace-bot/internal/moderation"
	"grace-bot/internal/modules/audit"
	"grace-bot/internal/notify"
	"grace-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const handlerTimeout = 15 * time.Second

// Bot owns the gateway session and every component the event handlers
// touch. It is built once in main and torn down with Close.
type Bot struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *storage.Store
	session  *discordgo.Session
	platform Platform

	tracker    *activity.Tracker
	notifier   *notify.Notifier
	dispatcher *moderation.Dispatcher
	analytics  *analytics.Service

	registeredMu sync.Mutex
	registered   map[string]struct{}

	tasks  *pool.ContextPool
	cancel context.CancelFunc
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates

	b := newBot(cfg, logger, store, &discordPlatform{session: session})
	b.session = session
	return b, nil
}

func newBot(cfg config.Config, logger *zap.Logger, store *storage.Store, platform Platform) *Bot {
	tracker := activity.NewTracker(store, cfg.Activity.MessagesPerLevel, logger)
	return &Bot{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		platform:   platform,
		tracker:    tracker,
		notifier:   notify.New(platform, logger),
		dispatcher: moderation.NewDispatcher(platform, audit.NewLogger(store, logger), logger, cfg.DefaultLanguage),
		analytics:  analytics.New(tracker, store),
		registered: make(map[string]struct{}),
	}
}

// Start restores persisted activity, opens the gateway and launches the
// periodic flush.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.tracker.Load(ctx); err != nil {
		return fmt.Errorf("load activity: %w", err)
	}

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onGuildDelete)
	b.session.AddHandler(b.onChannelDelete)
	b.session.AddHandler(b.onVoiceStateUpdate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway session: %w", err)
	}

	b.startTasks()
	b.Go(func(ctx context.Context) error {
		b.tracker.Run(ctx, b.cfg.Activity.FlushInterval())
		return nil
	})
	return nil
}

func (b *Bot) startTasks() {
	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.tasks = pool.New().WithContext(runCtx)
}

// Go runs task in the bot's background pool until Close is called.
func (b *Bot) Go(task func(ctx context.Context) error) {
	b.tasks.Go(task)
}

// Report returns the activity and moderation totals.
func (b *Bot) Report(ctx context.Context) (analytics.Report, error) {
	return b.analytics.Report(ctx)
}

// Close stops background tasks, disconnects and writes the final snapshot.
func (b *Bot) Close(ctx context.Context) error {
	var errs []error
	if b.cancel != nil {
		b.cancel()
		done := make(chan error, 1)
		go func() { done <- b.tasks.Wait() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("background tasks: %w", err))
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("background tasks: %w", ctx.Err()))
		}
	}

	if b.session != nil {
		if err := b.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
	}

	if err := b.tracker.Flush(ctx); err != nil {
		b.logger.Error("final activity flush failed", zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	appID := b.cfg.ApplicationID
	if appID == "" && event.User != nil {
		appID = event.User.ID
	}
	fields := []zap.Field{zap.Int("guilds", len(event.Guilds))}
	if event.User != nil {
		fields = append(fields, zap.String("user", event.User.Username))
	}
	if appID != "" {
		fields = append(fields, zap.String("invite_url", InviteURL(appID)))
	}
	b.logger.Info("discord ready", fields...)
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, msg *discordgo.MessageCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	b.handleMessage(ctx, msg.Message)
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, interaction *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	b.handleInteraction(ctx, interaction)
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, event *discordgo.GuildCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	b.handleGuildCreate(ctx, event.Guild)
}

func (b *Bot) onGuildDelete(_ *discordgo.Session, event *discordgo.GuildDelete) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	b.handleGuildDelete(ctx, event.Guild)
}

func (b *Bot) onChannelDelete(_ *discordgo.Session, event *discordgo.ChannelDelete) {
	if event.Channel == nil {
		return
	}
	b.notifier.ForgetChannel(event.Channel.ID)
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	b.handleVoiceState(ctx, event)
}
