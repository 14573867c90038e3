package identity

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	internalidentity "github.com/foxseedlab/rokuonkun/internal/identity"
	"gopkg.in/yaml.v3"
)

type playerMapFile struct {
	Players map[string]playerEntry `yaml:"players"`
}

type playerEntry struct {
	Player    string `yaml:"player"`
	Character string `yaml:"character,omitempty"`
}

// YAMLProvider reads per-guild player maps from <dir>/guild_<id>.yaml. The
// file is re-read on every lookup so table owners can edit it between
// sessions and pick it up with /refresh-players, without restarting the bot.
type YAMLProvider struct {
	dir string
	mu  sync.Mutex
}

func NewYAMLProvider(dir string) internalidentity.Provider {
	return &YAMLProvider{dir: dir}
}

func (p *YAMLProvider) PlayerMap(guildID string) map[string]internalidentity.PlayerIdentity {
	if p.dir == "" {
		return nil
	}

	raw, err := os.ReadFile(p.filePath(guildID))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not read player map", "error", err, "guild_id", guildID)
		}
		return nil
	}

	var doc playerMapFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		slog.Warn("player map is not valid yaml; ignoring it", "error", err, "guild_id", guildID)
		return nil
	}

	out := make(map[string]internalidentity.PlayerIdentity, len(doc.Players))
	for userID, entry := range doc.Players {
		if userID == "" {
			continue
		}
		out[userID] = internalidentity.PlayerIdentity{
			Player:    entry.Player,
			Character: entry.Character,
		}
	}
	return out
}

// Update merges entries into the guild's player map file. Existing users not
// mentioned in entries are kept.
func (p *YAMLProvider) Update(guildID string, entries map[string]internalidentity.PlayerIdentity) error {
	if p.dir == "" {
		return fmt.Errorf("player map directory is not configured")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	merged := p.PlayerMap(guildID)
	if merged == nil {
		merged = make(map[string]internalidentity.PlayerIdentity)
	}
	for userID, id := range entries {
		if userID == "" {
			continue
		}
		merged[userID] = id
	}

	doc := playerMapFile{Players: make(map[string]playerEntry, len(merged))}
	for userID, id := range merged {
		doc.Players[userID] = playerEntry{Player: id.Player, Character: id.Character}
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.filePath(guildID), raw, 0o644)
}

func (p *YAMLProvider) filePath(guildID string) string {
	return filepath.Join(p.dir, fmt.Sprintf("guild_%s.yaml", guildID))
}
