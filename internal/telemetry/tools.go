package telemetry

import (
	"context"
	"time"

	"github.com/exergy/luxos-mcp/internal/safety"
	"github.com/exergy/luxos-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TelemetryTools returns the read-only tool registrations backed by the
// poller's cached snapshot. Neither tool touches the device.
func TelemetryTools(poller *Poller, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		toolMinerStatus(poller, audit),
		toolMinerProfiles(poller, audit),
	}
}

func toolMinerStatus(poller *Poller, audit *safety.AuditLogger) tools.Registration {
	const toolName = "miner_status"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Get the full cached miner snapshot: hashrate, power draw, temperatures, fans, pools, active profile, and derived values like efficiency. Served from the last poll, never from a live device round trip."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		params := map[string]any{}

		snap, fresh := poller.Snapshot()
		if snap.FetchedAt.IsZero() {
			tools.LogAudit(audit, toolName, params, "error: no snapshot", start)
			return tools.ErrorResult("no snapshot collected yet; the miner may be unreachable"), nil
		}

		// A failed last poll means the data below is last-known-good,
		// not current. Surface that to the caller.
		snap.Online = fresh

		tools.LogAudit(audit, toolName, params, "ok", start)
		return tools.JSONResult(snap), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolMinerProfiles(poller *Poller, audit *safety.AuditLogger) tools.Registration {
	const toolName = "miner_profiles"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("List the overclocking profiles the device offers, with frequency, voltage, expected hashrate, and rated wattage per profile."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		params := map[string]any{}

		profiles := poller.Profiles()
		if profiles == nil {
			tools.LogAudit(audit, toolName, params, "error: no profiles", start)
			return tools.ErrorResult("profile list not available yet; the miner may be unreachable"), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return tools.JSONResult(profiles), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
