package config

// Config represents the persistent chatrelay configuration stored as
// config.toml in the .chatrelay/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	Relay   RelayConfig   `toml:"relay"`
	Client  ClientConfig  `toml:"client"`
}

// StorageConfig holds the relay's persistence settings. When both are empty
// the relay falls back to an in-memory store.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresURL string `toml:"postgres_url,omitempty"`
}

// RelayConfig holds relay server settings. The API key is deliberately NOT
// part of the file config; it comes from the CHATRELAY_API_KEY (or
// OPENAI_API_KEY) environment variable so it never lands on disk.
type RelayConfig struct {
	Listen    string `toml:"listen,omitempty"`
	Upstream  string `toml:"upstream,omitempty"`
	Model     string `toml:"model,omitempty"`
	StaticDir string `toml:"static_dir,omitempty"`
}

// ClientConfig holds settings for the chat client command.
// Target is a full URL (scheme + host + port) of a running relay.
type ClientConfig struct {
	Target string `toml:"target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_url": {
		get: func(c *Config) string { return c.Storage.PostgresURL },
		set: func(c *Config, v string) error { c.Storage.PostgresURL = v; return nil },
	},
	"relay.listen": {
		get: func(c *Config) string { return c.Relay.Listen },
		set: func(c *Config, v string) error { c.Relay.Listen = v; return nil },
	},
	"relay.upstream": {
		get: func(c *Config) string { return c.Relay.Upstream },
		set: func(c *Config, v string) error { c.Relay.Upstream = v; return nil },
	},
	"relay.model": {
		get: func(c *Config) string { return c.Relay.Model },
		set: func(c *Config, v string) error { c.Relay.Model = v; return nil },
	},
	"relay.static_dir": {
		get: func(c *Config) string { return c.Relay.StaticDir },
		set: func(c *Config, v string) error { c.Relay.StaticDir = v; return nil },
	},
	"client.target": {
		get: func(c *Config) string { return c.Client.Target },
		set: func(c *Config, v string) error { c.Client.Target = v; return nil },
	},
}
