// Package notify picks a text channel per guild for bot announcements and
// sends messages through it.
package notify

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var ErrNoChannel = errors.New("no sendable text channel")

type Platform interface {
	GuildChannels(guildID string) ([]*discordgo.Channel, error)
	CanSend(guildID, channelID string) bool
	SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) error
}

type Notifier struct {
	platform Platform
	logger   *zap.Logger

	mu       sync.Mutex
	channels map[string]string
}

func New(platform Platform, logger *zap.Logger) *Notifier {
	return &Notifier{
		platform: platform,
		logger:   logger,
		channels: make(map[string]string),
	}
}

// ResolveChannel returns the cached announcement channel for the guild or
// the first text channel, by position, the bot may post in.
func (n *Notifier) ResolveChannel(guildID string) (string, bool) {
	n.mu.Lock()
	cached, ok := n.channels[guildID]
	n.mu.Unlock()
	if ok {
		return cached, true
	}

	channels, err := n.platform.GuildChannels(guildID)
	if err != nil {
		n.logger.Warn("list guild channels", zap.String("guild_id", guildID), zap.Error(err))
		return "", false
	}

	text := make([]*discordgo.Channel, 0, len(channels))
	for _, channel := range channels {
		if channel != nil && channel.Type == discordgo.ChannelTypeGuildText {
			text = append(text, channel)
		}
	}
	sort.SliceStable(text, func(i, j int) bool { return text[i].Position < text[j].Position })

	for _, channel := range text {
		if !n.platform.CanSend(guildID, channel.ID) {
			continue
		}
		n.mu.Lock()
		n.channels[guildID] = channel.ID
		n.mu.Unlock()
		return channel.ID, true
	}

	n.logger.Warn("no accessible text channel", zap.String("guild_id", guildID))
	return "", false
}

// Preferred returns channelID when the bot can post there, otherwise the
// guild's announcement channel.
func (n *Notifier) Preferred(guildID, channelID string) (string, bool) {
	if channelID != "" && n.platform.CanSend(guildID, channelID) {
		return channelID, true
	}
	return n.ResolveChannel(guildID)
}

// Send posts msg to the guild's announcement channel. A failed send drops
// the cached channel so the next call rescans.
func (n *Notifier) Send(ctx context.Context, guildID string, msg *discordgo.MessageSend) error {
	channelID, ok := n.ResolveChannel(guildID)
	if !ok {
		return ErrNoChannel
	}
	return n.SendTo(ctx, guildID, channelID, msg)
}

func (n *Notifier) SendTo(ctx context.Context, guildID, channelID string, msg *discordgo.MessageSend) error {
	if err := n.platform.SendMessage(ctx, channelID, msg); err != nil {
		n.ForgetChannel(channelID)
		n.logger.Warn("send notification", zap.String("guild_id", guildID), zap.String("channel_id", channelID), zap.Error(err))
		return err
	}
	return nil
}

func (n *Notifier) Forget(guildID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.channels, guildID)
}

// ForgetChannel drops every cache entry pointing at channelID.
func (n *Notifier) ForgetChannel(channelID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for guildID, cached := range n.channels {
		if cached == channelID {
			delete(n.channels, guildID)
		}
	}
}
