package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxLoggedPayload bounds logged params and results; metric histories can run
// to thousands of points.
const maxLoggedPayload = 2048

// trafficLoggingMiddleware logs every MCP message at debug level. It costs
// nothing unless debug logging is enabled.
func trafficLoggingMiddleware(logger *slog.Logger, direction string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
				return next(ctx, method, req)
			}

			log := logger.With("direction", direction, "method", method, "session_id", sessionID(req))
			log.Debug("mcp request", "params", formatPayload(req.GetParams()))

			start := time.Now()
			result, err := next(ctx, method, req)
			if strings.HasPrefix(method, "notifications/") {
				return result, err
			}

			elapsed := time.Since(start)
			if err != nil {
				log.Debug("mcp response", "duration", elapsed, "error", err)
			} else {
				log.Debug("mcp response", "duration", elapsed, "result", formatPayload(result))
			}
			return result, err
		}
	}
}

func sessionID(req sdkmcp.Request) string {
	switch session := req.GetSession().(type) {
	case *sdkmcp.ServerSession:
		if session != nil {
			return session.ID()
		}
	case *sdkmcp.ClientSession:
		if session != nil {
			return session.ID()
		}
	}
	return ""
}

func formatPayload(payload any) string {
	if payload == nil {
		return "<nil>"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%T", payload)
	}
	if len(data) > maxLoggedPayload {
		return fmt.Sprintf("%s...(%d bytes)", data[:maxLoggedPayload], len(data))
	}
	return string(data)
}
