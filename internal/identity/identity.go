package identity

// PlayerIdentity maps a voice participant to the person behind the account
// and the character they play at the table.
type PlayerIdentity struct {
	Player    string
	Character string
}

// Provider supplies per-guild player maps. Implementations persist the map
// externally (YAML files, etc.); the session engine only reads snapshots.
type Provider interface {
	PlayerMap(guildID string) map[string]PlayerIdentity
	Update(guildID string, entries map[string]PlayerIdentity) error
}
