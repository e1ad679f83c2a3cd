package config

// NewDefaultConfig returns a Config populated with the defaults used when no
// config file exists or a field is unset.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			Listen:   ":8080",
			Upstream: "https://api.openai.com",
			Model:    "gpt-4o-mini",
		},
		Client: ClientConfig{
			Target: "http://localhost:8080",
		},
	}
}
