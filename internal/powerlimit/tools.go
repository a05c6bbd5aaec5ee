package powerlimit

import (
	"context"
	"fmt"
	"time"

	"github.com/exergy/luxos-mcp/internal/safety"
	"github.com/exergy/luxos-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// PowerLimitTools returns the tool registrations for the adaptive power-limit
// loop. Setting a limit changes profiles on the device; reading status does
// not touch it.
func PowerLimitTools(ctrl *Controller, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		toolSetPowerLimit(ctrl, audit),
		toolPowerLimitStatus(ctrl, audit),
	}
}

func toolSetPowerLimit(ctrl *Controller, audit *safety.AuditLogger) tools.Registration {
	const toolName = "miner_set_power_limit"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Set an adaptive power limit in watts. The server picks the highest profile that fits, then steps the profile up or down until measured wall draw settles just below the limit."),
		mcp.WithNumber("watts",
			mcp.Required(),
			mcp.Description("Target power ceiling in watts for the installed hardware"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		watts := req.GetFloat("watts", 0)
		params := map[string]any{"watts": watts}

		if err := ctrl.SetTarget(ctx, watts); err != nil {
			tools.LogAudit(audit, toolName, params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return mcp.NewToolResultText(fmt.Sprintf(
			"power limit set to %.0f W; control loop started and will converge over the next few minutes", watts)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolPowerLimitStatus(ctrl *Controller, audit *safety.AuditLogger) tools.Registration {
	const toolName = "miner_power_limit_status"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Get the state of the adaptive power-limit loop: target, tolerance band, measured draw, active profile, and scaling diagnostics."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		params := map[string]any{}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return tools.JSONResult(ctrl.Diagnostics()), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
