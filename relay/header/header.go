// Package header provides header filtering for the chatrelay server.
//
// The relay sits between a browser (or the chat CLI) and an upstream
// completion API:
//
//	Client <--> Relay <--> Upstream completion API
//
// and each leg negotiates compression, hops, and encoding independently, so
// hop-by-hop and transport-managed headers must not cross the relay.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Handler manages headers between relay connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest is the set of request headers (client --> relay --> upstream)
// that are not forwarded to the upstream completion API.
var skipRequest = map[string]struct{}{
	// Hop-by-hop: only meaningful for a single transport-level connection.
	"Connection": {},

	// Host is rewritten by Go's http.Transport to match the upstream URL.
	"Host": {},

	// Stripped so Go's http.Transport adds its own "Accept-Encoding: gzip"
	// and transparently decompresses the upstream response.
	"Accept-Encoding": {},

	// The relay builds its own upstream JSON body; the client's length and
	// type describe the relay-endpoint body, not the upstream one.
	"Content-Length": {},
	"Content-Type":   {},
}

// skipResponse is the set of upstream response headers (client <-- relay <-- upstream)
// that are not copied back to the downstream client.
var skipResponse = map[string]struct{}{
	// Hop-by-hop: only meaningful for a single transport-level connection.
	"Connection": {},

	// fasthttp manages chunked transfer encoding for the client-facing
	// response independently.
	"Transfer-Encoding": {},

	// The relay always reads a decompressed body (Go's http.Transport strips
	// Content-Encoding after auto-decompression). Forwarding a stale value
	// would claim an encoding the body no longer has.
	"Content-Encoding": {},

	// The upstream Content-Length reflects the possibly-compressed upstream
	// body; after decompression and the relay's appended terminal frame the
	// length changes. Let fasthttp compute the final value.
	"Content-Length": {},
}

// SetUpstreamRequestHeaders copies request headers from the Fiber context to
// the outgoing http.Request, filtering headers the relay should not forward.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, skip := skipRequest[k]; !skip {
			req.Header.Set(k, string(value))
		}
	})
}

// SetClientResponseHeaders copies response headers from the upstream
// http.Response to the Fiber context, filtering headers the relay should not
// forward back down to the client.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[k]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}
