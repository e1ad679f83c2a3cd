package relay

// Config holds the relay server's runtime settings.
type Config struct {
	// ListenAddr is the address the HTTP server binds, e.g. ":8080".
	ListenAddr string

	// UpstreamURL is the base URL of the OpenAI-compatible completion API,
	// e.g. "https://api.openai.com".
	UpstreamURL string

	// Model is the model name sent on every upstream completion request.
	Model string

	// APIKey is the fallback upstream credential, used when the client does
	// not send its own Authorization header.
	APIKey string

	// StaticDir, when non-empty, is served at the web root for a browser
	// frontend.
	StaticDir string
}
