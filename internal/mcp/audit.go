package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// ToolUsage counts calls to one tool.
type ToolUsage struct {
	Tool          string        `json:"tool"`
	Calls         int64         `json:"calls"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
}

// AuditLog records every tool call and resource read. Arguments are never
// logged: analyze_maternal_risk carries patient vitals.
type AuditLog struct {
	logger *logrus.Logger

	mu    sync.Mutex
	usage map[string]*ToolUsage
}

// NewAuditLog creates an AuditLog.
func NewAuditLog(logger *logrus.Logger) *AuditLog {
	return &AuditLog{
		logger: logger,
		usage:  make(map[string]*ToolUsage),
	}
}

// Middleware returns receiving middleware for an mcp.Server.
func (a *AuditLog) Middleware() mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)

			switch r := req.(type) {
			case *mcp.CallToolRequest:
				isError := err != nil
				if res, ok := result.(*mcp.CallToolResult); ok && res != nil && res.IsError {
					isError = true
				}
				var tool string
				if r.Params != nil {
					tool = r.Params.Name
				}
				a.recordTool(sessionID(req), tool, time.Since(start), isError, err)
			case *mcp.ReadResourceRequest:
				var uri string
				if r.Params != nil {
					uri = r.Params.URI
				}
				a.entry(sessionID(req), method, time.Since(start)).
					WithField("uri", uri).
					WithField("success", err == nil).
					Info("MCP resource read")
			}
			return result, err
		}
	}
}

func (a *AuditLog) entry(session, method string, d time.Duration) *logrus.Entry {
	return a.logger.WithFields(logrus.Fields{
		"session_id":  session,
		"method":      method,
		"duration_ms": d.Milliseconds(),
	})
}

func (a *AuditLog) recordTool(session, tool string, d time.Duration, isError bool, err error) {
	a.mu.Lock()
	u, ok := a.usage[tool]
	if !ok {
		u = &ToolUsage{Tool: tool}
		a.usage[tool] = u
	}
	u.Calls++
	u.TotalDuration += d
	if isError {
		u.Errors++
	}
	a.mu.Unlock()

	entry := a.entry(session, "tools/call", d).WithFields(logrus.Fields{
		"tool":     tool,
		"is_error": isError,
	})
	if err != nil {
		entry.WithError(err).Warn("MCP tool call failed")
		return
	}
	entry.Info("MCP tool call")
}

// Usage returns per-tool counters sorted by tool name.
func (a *AuditLog) Usage() []ToolUsage {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]ToolUsage, 0, len(a.usage))
	for _, u := range a.usage {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
	return out
}

func sessionID(req mcp.Request) string {
	if s := req.GetSession(); s != nil {
		return s.ID()
	}
	return ""
}
