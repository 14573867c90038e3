package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/foxseedlab/rokuonkun/internal/audio"
	"github.com/foxseedlab/rokuonkun/internal/config"
	"github.com/foxseedlab/rokuonkun/internal/discord"
	"github.com/foxseedlab/rokuonkun/internal/identity"
	"github.com/foxseedlab/rokuonkun/internal/metrics"
	"github.com/foxseedlab/rokuonkun/internal/repository"
	"github.com/foxseedlab/rokuonkun/internal/transcriber"
	"github.com/foxseedlab/rokuonkun/internal/webhook"
)

const (
	CommandRecord         = "record"
	CommandStop           = "stop"
	CommandRefreshPlayers = "refresh-players"
)

// SlashCommandDefinitions is the command surface the manager answers to.
func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{
			Name:        CommandRecord,
			Description: "Start recording the voice channel you are in",
			Options: []discord.SlashCommandOption{
				{Name: "label", Description: "Optional session label, e.g. the scenario name", Required: false},
			},
		},
		{
			Name:        CommandStop,
			Description: "Stop the running recording session",
		},
		{
			Name:        CommandRefreshPlayers,
			Description: "Reload the player map for this server",
		},
	}
}

type activeSession struct {
	session       *Session
	sink          *Sink
	voice         discord.VoiceConnection
	textChannelID string
	cancelTimer   context.CancelFunc
}

// Manager owns the per-guild session lifecycle: at most one active session
// per guild, started and stopped through slash commands, voice-state changes,
// the max-duration timer or process shutdown. All stop paths converge on one
// idempotent teardown.
type Manager struct {
	cfg        *config.Config
	client     discord.Client
	identities identity.Provider
	converter  audio.Converter
	adapter    *transcriber.Adapter
	repo       repository.Repository
	hook       webhook.Sender
	metrics    *metrics.Metrics
	now        func() time.Time

	maxSessionDuration time.Duration
	warningWindow      time.Duration

	eventWG sync.WaitGroup

	mu       sync.Mutex
	active   map[string]*activeSession
	starting map[string]struct{}
}

// NewManager wires the orchestrator. adapter is nil when transcription is
// disabled; repo and hook are nil-tolerant and treated as best-effort.
func NewManager(
	cfg *config.Config,
	client discord.Client,
	identities identity.Provider,
	converter audio.Converter,
	adapter *transcriber.Adapter,
	repo repository.Repository,
	hook webhook.Sender,
	m *metrics.Metrics,
) *Manager {
	return &Manager{
		cfg:        cfg,
		client:     client,
		identities: identities,
		converter:  converter,
		adapter:    adapter,
		repo:       repo,
		hook:       hook,
		metrics:    m,
		now:        time.Now,

		maxSessionDuration: time.Duration(cfg.MaxSessionDurationMin) * time.Minute,
		warningWindow:      time.Duration(cfg.SessionWarningWindowMin) * time.Minute,

		active:   make(map[string]*activeSession),
		starting: make(map[string]struct{}),
	}
}

// Register binds the manager to the Discord client's event streams.
func (m *Manager) Register() {
	m.client.RegisterSlashCommandHandler(m.HandleSlashCommand)
	m.client.RegisterVoiceStateUpdateHandler(m.HandleVoiceStateUpdate)
}

func (m *Manager) HandleSlashCommand(ev discord.SlashCommandEvent) {
	ctx := context.Background()

	var reply string
	switch ev.CommandName {
	case CommandRecord:
		reply = m.StartSession(ctx, ev.GuildID, ev.ChannelID, ev.UserID, ev.Options["label"])
	case CommandStop:
		reply, _ = m.stop(ctx, ev.GuildID, "", false)
	case CommandRefreshPlayers:
		reply = m.RefreshPlayers(ev.GuildID)
	default:
		return
	}

	if ev.RespondEphemeral != nil {
		if err := ev.RespondEphemeral(reply); err != nil {
			slog.Warn("failed to respond to slash command", "error", err, "command", ev.CommandName, "guild_id", ev.GuildID)
		}
	}
}

// HandleVoiceStateUpdate stops the guild's session when the bot itself is
// removed from the voice channel (kick, channel delete, region move gone
// wrong). User joins and leaves are ignored; the session follows the channel,
// not its members.
func (m *Manager) HandleVoiceStateUpdate(ev discord.VoiceStateEvent) {
	if ev.AfterChannelID != "" {
		return
	}
	botID, err := m.client.GetBotUserID()
	if err != nil || ev.UserID != botID {
		return
	}
	if reply, stopped := m.stop(context.Background(), ev.GuildID, "voice connection lost", true); stopped {
		slog.Info("session stopped after bot left voice channel", "guild_id", ev.GuildID, "detail", reply)
	}
}

// StartSession begins a session for the guild and returns the user-facing
// reply. The caller must be in a voice channel; one session per guild.
func (m *Manager) StartSession(ctx context.Context, guildID, textChannelID, userID, label string) string {
	voiceChannelID, err := m.client.GetUserVoiceChannelID(guildID, userID)
	if err != nil || voiceChannelID == "" {
		return msgJoinVoiceFirst
	}

	// Reserve the guild slot, then run the disk/database/voice setup
	// unlocked so sessions in other guilds keep making progress.
	m.mu.Lock()
	_, running := m.active[guildID]
	_, pending := m.starting[guildID]
	if running || pending {
		m.mu.Unlock()
		return msgAlreadyRecording
	}
	m.starting[guildID] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.starting, guildID)
		m.mu.Unlock()
	}()

	mode := CoerceMode(m.cfg.SessionMode)
	if mode == ModeTranscribing && m.adapter == nil {
		slog.Warn("transcribing mode requested but no transcription backend is wired; recording audio only", "guild_id", guildID)
		mode = ModeRecordOnly
	}

	sess := New(guildID, mode, label, m.now())
	if err := ApplyPaths(sess, m.cfg.LogsDir, m.cfg.AudioSessionsSubdir); err != nil {
		slog.Error("failed to create session directory", "error", err, "guild_id", guildID)
		return msgStartFailed(err)
	}
	m.populatePlayers(sess)
	if err := sess.SaveMeta(); err != nil {
		slog.Error("failed to write initial session meta", "error", err, "session_id", sess.SessionID)
	}

	if m.repo != nil {
		if _, err := m.repo.CreateSession(ctx, repository.CreateSessionInput{
			SessionID: sess.SessionID,
			GuildID:   sess.GuildID,
			Mode:      string(sess.Mode),
			Label:     sess.Label,
			BaseDir:   sess.BaseDir,
			StartedAt: sess.StartedAt,
		}); err != nil {
			slog.Warn("failed to index session in database", "error", err, "session_id", sess.SessionID)
		}
	}

	sink := NewSink(SinkConfig{
		Session: sess,
		Buffer: BufferConfig{
			SilenceThreshold: time.Duration(m.cfg.SilenceThresholdSec * float64(time.Second)),
			QueueLimit:       m.cfg.SpeakerQueueLimit,
			MaxSpeakers:      m.cfg.MaxSpeakers,
		},
		ArchiveAudio: m.cfg.ArchiveAudio,
		AudioFormat:  m.cfg.AudioFormat,
		EventSource:  m.cfg.TranscribeBackend,
	}, m.converter, m.adapter, m.metrics, m.recordEvent)
	if err := sink.Start(); err != nil {
		slog.Error("failed to start ingestion sink", "error", err, "session_id", sess.SessionID)
		m.abortStartedSession(ctx, sess)
		return msgStartFailed(err)
	}

	voice, err := m.client.JoinVoiceChannel(guildID, voiceChannelID)
	if err != nil {
		slog.Error("failed to join voice channel", "error", err, "guild_id", guildID, "channel_id", voiceChannelID)
		if _, cerr := sink.Cleanup(ctx); cerr != nil {
			slog.Error("sink cleanup after failed join reported errors", "error", cerr, "session_id", sess.SessionID)
		}
		m.abortStartedSession(ctx, sess)
		return msgStartFailed(err)
	}
	go voice.ReceiveAudio(sink.Write)

	m.mu.Lock()
	m.active[guildID] = &activeSession{
		session:       sess,
		sink:          sink,
		voice:         voice,
		textChannelID: textChannelID,
		cancelTimer:   m.startSessionTimer(guildID, textChannelID),
	}
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SessionsStarted.Inc()
		m.metrics.ActiveSessions.Inc()
	}
	slog.Info("session started", "session_id", sess.SessionID, "guild_id", guildID, "mode", sess.Mode, "label", label)
	return msgSessionStarted(sess.SessionID, sess.Mode)
}

// StopSession ends the guild's session. Safe to call when no session is
// running and safe to call twice; only the first call tears down.
func (m *Manager) StopSession(ctx context.Context, guildID, reason string) string {
	reply, _ := m.stop(ctx, guildID, reason, false)
	return reply
}

func (m *Manager) stop(ctx context.Context, guildID, reason string, announce bool) (string, bool) {
	m.mu.Lock()
	as, ok := m.active[guildID]
	if !ok {
		m.mu.Unlock()
		return msgNotRecording, false
	}
	delete(m.active, guildID)
	m.mu.Unlock()

	as.cancelTimer()
	if err := as.voice.Disconnect(); err != nil {
		slog.Warn("voice disconnect failed", "error", err, "guild_id", guildID)
	}

	as.session.Finalize(m.now())
	if err := as.session.SaveMeta(); err != nil {
		slog.Error("failed to finalize session meta", "error", err, "session_id", as.session.SessionID)
	}

	res, err := as.sink.Cleanup(ctx)
	if err != nil {
		slog.Error("sink cleanup reported errors", "error", err, "session_id", as.session.SessionID)
	}

	if m.repo != nil && as.session.EndedAt != nil {
		if err := m.repo.UpdateSessionCompleted(ctx, repository.CompleteSessionInput{
			SessionID: as.session.SessionID,
			EndedAt:   *as.session.EndedAt,
		}); err != nil {
			slog.Warn("failed to mark session completed in database", "error", err, "session_id", as.session.SessionID)
		}
	}
	m.postTranscript(ctx, as)
	m.notifyWebhook(ctx, as.session, res)

	if m.metrics != nil {
		m.metrics.SessionsFinished.Inc()
		m.metrics.ActiveSessions.Dec()
	}
	slog.Info("session stopped",
		"session_id", as.session.SessionID, "guild_id", guildID, "reason", reason,
		"bytes_archived", res.BytesArchived, "events", res.EventCount, "dropped_frames", as.sink.DroppedFrames())

	reply := msgSessionStopped(as.session.SessionID, reason)
	if announce && as.textChannelID != "" {
		if err := m.client.SendChannelMessage(as.textChannelID, reply); err != nil {
			slog.Warn("failed to announce session stop", "error", err, "channel_id", as.textChannelID)
		}
	}
	return reply, true
}

// RefreshPlayers re-reads the guild's player map, applies it to the active
// session (if any) and writes resolved display names back to the provider so
// the map file fills itself in over time.
func (m *Manager) RefreshPlayers(guildID string) string {
	m.mu.Lock()
	as, ok := m.active[guildID]
	m.mu.Unlock()
	if !ok {
		return msgPlayersRefreshed
	}

	m.populatePlayers(as.session)
	if err := as.session.SaveMeta(); err != nil {
		slog.Error("failed to persist refreshed player map", "error", err, "session_id", as.session.SessionID)
	}
	m.persistIdentities(as.session)
	return msgPlayersRefreshed
}

// Shutdown stops every active session. Each guild tears down independently;
// one failure never blocks the others.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	guildIDs := make([]string, 0, len(m.active))
	for guildID := range m.active {
		guildIDs = append(guildIDs, guildID)
	}
	m.mu.Unlock()

	for _, guildID := range guildIDs {
		m.stop(ctx, guildID, "bot shutting down", true)
	}
}

// RecoverOrphans closes out sessions left in running state by a previous
// crash: their meta files get an end timestamp and the index rows are marked
// completed. Called once at startup, before connecting to Discord.
func (m *Manager) RecoverOrphans(ctx context.Context) {
	if m.repo == nil {
		return
	}
	rows, err := m.repo.ListRunningSessions(ctx)
	if err != nil {
		slog.Warn("could not list orphaned sessions", "error", err)
		return
	}

	for _, row := range rows {
		endedAt := m.now().UTC()
		metaPath := filepath.Join(row.BaseDir, metaFileName)
		if sess, err := LoadMeta(metaPath); err == nil {
			if sess.EndedAt == nil {
				sess.Finalize(endedAt)
				if err := sess.SaveMeta(); err != nil {
					slog.Warn("could not finalize orphaned session meta", "error", err, "session_id", row.SessionID)
				}
			}
			if sess.EndedAt != nil {
				endedAt = *sess.EndedAt
			}
		}
		if err := m.repo.UpdateSessionCompleted(ctx, repository.CompleteSessionInput{
			SessionID: row.SessionID,
			EndedAt:   endedAt,
		}); err != nil {
			slog.Warn("could not mark orphaned session completed", "error", err, "session_id", row.SessionID)
			continue
		}
		slog.Info("recovered orphaned session", "session_id", row.SessionID, "guild_id", row.GuildID)
	}
}

// HasActiveSession reports whether the guild currently records.
func (m *Manager) HasActiveSession(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[guildID]
	return ok
}

// abortStartedSession closes out the bookkeeping of a session that failed
// between its database row and going live.
func (m *Manager) abortStartedSession(ctx context.Context, sess *Session) {
	sess.Finalize(m.now())
	if err := sess.SaveMeta(); err != nil {
		slog.Warn("failed to finalize aborted session meta", "error", err, "session_id", sess.SessionID)
	}
	if m.repo == nil {
		return
	}
	if err := m.repo.UpdateSessionCompleted(ctx, repository.CompleteSessionInput{
		SessionID: sess.SessionID,
		EndedAt:   *sess.EndedAt,
	}); err != nil {
		slog.Warn("failed to close aborted session row", "error", err, "session_id", sess.SessionID)
	}
}

func (m *Manager) populatePlayers(sess *Session) {
	m.applyIdentities(sess)

	members, err := m.client.ListGuildMembers(sess.GuildID)
	if err != nil {
		slog.Warn("could not list guild members for player names", "error", err, "guild_id", sess.GuildID)
		return
	}
	for _, member := range members {
		info, ok := sess.Players[member.UserID]
		if !ok || info.Player != "" {
			continue
		}
		if member.DisplayName != "" {
			info.Player = member.DisplayName
		} else {
			info.Player = member.Username
		}
	}
}

func (m *Manager) applyIdentities(sess *Session) {
	if m.identities == nil {
		return
	}
	for userID, id := range m.identities.PlayerMap(sess.GuildID) {
		sess.AddOrUpdatePlayer(userID, id.Player, id.Character)
	}
}

func (m *Manager) persistIdentities(sess *Session) {
	if m.identities == nil || len(sess.Players) == 0 {
		return
	}
	entries := make(map[string]identity.PlayerIdentity, len(sess.Players))
	for userID, p := range sess.Players {
		if p.Player == "" && p.Character == "" {
			continue
		}
		entries[userID] = identity.PlayerIdentity{Player: p.Player, Character: p.Character}
	}
	if len(entries) == 0 {
		return
	}
	if err := m.identities.Update(sess.GuildID, entries); err != nil {
		slog.Warn("could not persist player map", "error", err, "guild_id", sess.GuildID)
	}
}

// recordEvent indexes one transcript event, off the sink's run loop so a slow
// database can never stall audio ingestion.
func (m *Manager) recordEvent(ev TranscriptionEvent) {
	if m.repo == nil {
		return
	}
	m.eventWG.Add(1)
	go func() {
		defer m.eventWG.Done()
		m.insertEvent(ev)
	}()
}

func (m *Manager) insertEvent(ev TranscriptionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.InsertTranscriptEvent(ctx, repository.InsertTranscriptEventInput{
		SessionID:   ev.SessionID,
		GuildID:     ev.GuildID,
		UserID:      ev.UserID,
		Player:      ev.Player,
		Character:   ev.Character,
		EventSource: ev.EventSource,
		StartedAt:   ev.StartedAt,
		EndedAt:     ev.EndedAt,
		Text:        ev.Text,
		IsNoise:     ev.IsNoise,
		ErrorText:   ev.ErrorText,
	}); err != nil {
		slog.Warn("failed to index transcript event", "error", err, "session_id", ev.SessionID)
	}
}

// postTranscript uploads a readable transcript of the finished session to the
// channel the recording was started from. Best-effort, transcribing mode only.
func (m *Manager) postTranscript(ctx context.Context, as *activeSession) {
	if m.repo == nil || as.textChannelID == "" || as.session.Mode != ModeTranscribing {
		return
	}

	// In-flight event inserts must land before the transcript is read back.
	m.eventWG.Wait()

	events, err := m.repo.ListTranscriptEventsBySessionID(ctx, as.session.SessionID)
	if err != nil {
		slog.Warn("could not load transcript events for posting", "error", err, "session_id", as.session.SessionID)
		return
	}
	body := renderTranscript(as.session, events)
	if body == "" {
		return
	}

	if err := m.client.SendChannelMessageWithFile(discord.FileMessage{
		ChannelID: as.textChannelID,
		Content:   msgTranscriptFile(as.session.SessionID),
		Filename:  fmt.Sprintf("transcript_%s.txt", as.session.SessionID),
		FileBody:  []byte(body),
	}); err != nil {
		slog.Warn("failed to post transcript file", "error", err, "session_id", as.session.SessionID)
	}
}

func (m *Manager) notifyWebhook(ctx context.Context, sess *Session, res CleanupResult) {
	if m.hook == nil || sess.EndedAt == nil {
		return
	}

	players := make([]string, 0, len(sess.Players))
	for _, p := range sess.Players {
		if p.Player != "" {
			players = append(players, p.Player)
		}
	}

	payload := webhook.SessionArchivePayload{
		SessionID:    sess.SessionID,
		GuildID:      sess.GuildID,
		Mode:         string(sess.Mode),
		Label:        sess.Label,
		StartedAt:    sess.StartedAt.Format(time.RFC3339),
		EndedAt:      sess.EndedAt.Format(time.RFC3339),
		BaseDir:      sess.BaseDir,
		MetaPath:     sess.MetaPath,
		PlayerCount:  len(sess.Players),
		AudioFormat:  m.cfg.AudioFormat,
		EventLogPath: res.EventLogPath,
		Players:      players,
	}
	if err := m.hook.SendSessionArchive(ctx, payload); err != nil {
		slog.Warn("session webhook delivery failed", "error", err, "session_id", sess.SessionID)
	}
}

func (m *Manager) startSessionTimer(guildID, textChannelID string) context.CancelFunc {
	maxDur := m.maxSessionDuration
	if maxDur <= 0 {
		return func() {}
	}
	warnWindow := m.warningWindow

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if warnWindow > 0 && warnWindow < maxDur {
			select {
			case <-ctx.Done():
				return
			case <-time.After(maxDur - warnWindow):
			}
			if textChannelID != "" {
				if err := m.client.SendChannelMessage(textChannelID, msgSessionWarning(int(warnWindow.Minutes()))); err != nil {
					slog.Warn("failed to send session time warning", "error", err, "guild_id", guildID)
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(warnWindow):
			}
		} else {
			select {
			case <-ctx.Done():
				return
			case <-time.After(maxDur):
			}
		}
		m.stop(context.Background(), guildID, "time limit reached", true)
	}()
	return cancel
}
