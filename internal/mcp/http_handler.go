package mcp

import (
	"log/slog"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewHTTPHandler serves server over streamable HTTP. Idle sessions are closed
// after sessionTimeout.
func NewHTTPHandler(server *sdkmcp.Server, sessionTimeout time.Duration, logger *slog.Logger) http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return server },
		&sdkmcp.StreamableHTTPOptions{
			SessionTimeout: sessionTimeout,
			Logger:         logger,
		},
	)
}
