// Package discord is the Discord platform layer for heckler. It owns
// the discordgo.Session lifecycle, joins the watched voice channel
// while non-bot members are present, feeds received audio into the
// voice session and plays clips and cue files back into the channel.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/hecklerbot/heckler/internal/config"
	"github.com/hecklerbot/heckler/internal/voice"
)

// Bot owns the Discord gateway connection. It reacts to voice state
// updates by joining or leaving the watched channel and by playing
// transition cues.
type Bot struct {
	session  *discordgo.Session
	vsession *voice.Session
	player   *Player

	guildID      string
	channelID    string
	logChannelID string
	dataDir      string
	randF        func() float64

	mu         sync.Mutex
	vc         *discordgo.VoiceConnection
	cancelRecv context.CancelFunc
	runCtx     context.Context

	closeOnce sync.Once
}

// New creates a Bot, connects to the Discord gateway, and registers the
// voice state handler. The bot does not join the voice channel until a
// non-bot member is present in it.
func New(cfg *config.Config, player *Player, vsession *voice.Session) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers

	b := &Bot{
		session:      session,
		vsession:     vsession,
		player:       player,
		guildID:      cfg.GuildID,
		channelID:    cfg.ChannelID,
		logChannelID: cfg.LogChannelID,
		dataDir:      cfg.DataDirectory,
		randF:        rand.Float64,
	}

	session.AddHandler(b.handleReady)
	session.AddHandler(b.handleVoiceStateUpdate)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// Run drives the playback queue and blocks until ctx is cancelled. The
// gateway connection itself runs on discordgo's own goroutines.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()

	b.player.Run(ctx)
	return ctx.Err()
}

// ReportPlay posts a playback report to the configured log channel.
// It satisfies the reaction engine's reporter hook and is a no-op when
// no log channel is configured.
func (b *Bot) ReportPlay(message string) {
	if b.logChannelID == "" {
		return
	}
	if _, err := b.session.ChannelMessageSend(b.logChannelID, message); err != nil {
		slog.Warn("post to log channel failed", "channel", b.logChannelID, "error", err)
	}
}

// Close leaves the voice channel and disconnects from the gateway.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.leave()
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}

func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("connected to discord", "user", r.User.Username)
	b.managePresence()
}

func (b *Bot) handleVoiceStateUpdate(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != b.guildID || vsu.UserID == s.State.User.ID {
		return
	}

	b.managePresence()

	cur := memberState{
		InChannel: vsu.ChannelID == b.channelID,
		SelfMute:  vsu.SelfMute,
		SelfDeaf:  vsu.SelfDeaf,
	}
	var old *memberState
	if vsu.BeforeUpdate != nil {
		old = &memberState{
			InChannel: vsu.BeforeUpdate.ChannelID == b.channelID,
			SelfMute:  vsu.BeforeUpdate.SelfMute,
			SelfDeaf:  vsu.BeforeUpdate.SelfDeaf,
		}
	}

	if old != nil && old.InChannel && !cur.InChannel {
		b.vsession.HandleDisconnect(vsu.UserID)
		return
	}

	cue := transitionCue(old, cur)
	if cue == "" {
		return
	}
	b.playCue(cue)

	if cue == "hello" {
		count := b.vsession.IncrementJoin(vsu.UserID)
		if b.randF() < rejoinChance(count) {
			slog.Info("greeting a repeat visitor", "user", vsu.UserID, "joins", count)
			b.playCue("rejoin")
		}
	}
}

// managePresence joins the watched channel when a non-bot member is in
// it and leaves when the bot would be alone.
func (b *Bot) managePresence() {
	if b.humanCount() == 0 {
		b.leave()
		b.vsession.ResetJoins()
		return
	}
	if err := b.join(); err != nil {
		slog.Error("join voice channel failed", "channel", b.channelID, "error", err)
	}
}

// humanCount counts non-bot members currently in the watched channel.
func (b *Bot) humanCount() int {
	guild, err := b.session.State.Guild(b.guildID)
	if err != nil {
		slog.Warn("guild state unavailable", "guild", b.guildID, "error", err)
		return 0
	}
	count := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != b.channelID || vs.UserID == b.session.State.User.ID {
			continue
		}
		member, err := b.session.State.Member(b.guildID, vs.UserID)
		if err == nil && member.User != nil && member.User.Bot {
			continue
		}
		count++
	}
	return count
}

func (b *Bot) join() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.vc != nil {
		return nil
	}

	vc, err := b.session.ChannelVoiceJoin(b.guildID, b.channelID, false, false)
	if err != nil {
		return fmt.Errorf("discord: join channel %s: %w", b.channelID, err)
	}
	vc.AddHandler(speakingHandler(b.vsession))

	parent := b.runCtx
	if parent == nil {
		parent = context.Background()
	}
	recvCtx, cancel := context.WithCancel(parent)
	go receive(recvCtx, vc, b.vsession)

	b.vc = vc
	b.cancelRecv = cancel
	b.player.Attach(vc)
	slog.Info("joined voice channel", "channel", b.channelID)
	return nil
}

func (b *Bot) leave() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.vc == nil {
		return
	}

	b.player.Detach()
	b.cancelRecv()
	if err := b.vc.Disconnect(); err != nil {
		slog.Warn("voice disconnect failed", "error", err)
	}
	b.vc = nil
	b.cancelRecv = nil
	slog.Info("left voice channel", "channel", b.channelID)
}

// playCue enqueues the cue file for the given event if one exists in
// the data directory. Cue files are optional.
func (b *Bot) playCue(cue string) {
	path := cuePath(b.dataDir, cue)
	if path == "" {
		return
	}
	b.player.Enqueue(path)
}
