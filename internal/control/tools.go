package control

import (
	"context"
	"fmt"
	"time"

	"github.com/exergy/luxos-mcp/internal/safety"
	"github.com/exergy/luxos-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DestructiveTools lists control tools that interrupt hashing long enough to
// cost real revenue. They require a confirmation token.
var DestructiveTools = []string{
	"miner_reboot",
	"miner_reset",
}

// ControlTools returns the tool registrations for the miner's write
// operations, wired to the provided Manager, profile Filter,
// ConfirmationTracker, and AuditLogger.
func ControlTools(
	mgr Manager,
	filter *safety.Filter,
	confirm *safety.ConfirmationTracker,
	audit *safety.AuditLogger,
) []tools.Registration {
	return []tools.Registration{
		toolSetProfile(mgr, filter, audit),
		toolSetATM(mgr, audit),
		toolSleep(mgr, audit),
		toolWake(mgr, audit),
		toolReboot(mgr, confirm, audit),
		toolReset(mgr, confirm, audit),
		toolSetPowerTarget(mgr, audit),
	}
}

// ---------------------------------------------------------------------------
// Profile and tuning tools
// ---------------------------------------------------------------------------

func toolSetProfile(mgr Manager, filter *safety.Filter, audit *safety.AuditLogger) tools.Registration {
	const toolName = "miner_set_profile"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Switch the miner to a named overclocking profile. Use miner_profiles to list what the device offers."),
		mcp.WithString("profile",
			mcp.Required(),
			mcp.Description("Profile name exactly as reported by the device"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		profile := req.GetString("profile", "")
		params := map[string]any{"profile": profile}

		if !filter.IsAllowed(profile) {
			tools.LogAudit(audit, toolName, params, "denied", start)
			return tools.ErrorResult(fmt.Sprintf("profile %q is not allowed", profile)), nil
		}

		if err := mgr.SetProfile(ctx, profile); err != nil {
			tools.LogAudit(audit, toolName, params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return mcp.NewToolResultText(fmt.Sprintf("profile switched to %q", profile)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolSetATM(mgr Manager, audit *safety.AuditLogger) tools.Registration {
	const toolName = "miner_set_atm"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Enable or disable the firmware's Advanced Thermal Management autotuner. Disable it before driving profiles manually."),
		mcp.WithBoolean("enabled",
			mcp.Required(),
			mcp.Description("true to enable ATM, false to disable"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		enabled := req.GetBool("enabled", false)
		params := map[string]any{"enabled": enabled}

		if err := mgr.SetATM(ctx, enabled); err != nil {
			tools.LogAudit(audit, toolName, params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return mcp.NewToolResultText(fmt.Sprintf("ATM set to %v", enabled)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolSetPowerTarget(mgr Manager, audit *safety.AuditLogger) tools.Registration {
	const toolName = "miner_set_power_target"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Hand a wattage target to the firmware's native power tuner. Requires recent LuxOS firmware; prefer miner_set_power_limit on hardware where this command fails."),
		mcp.WithNumber("watts",
			mcp.Required(),
			mcp.Description("Power target in watts"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		watts := req.GetInt("watts", 0)
		params := map[string]any{"watts": watts}

		if err := mgr.SetPowerTarget(ctx, watts); err != nil {
			tools.LogAudit(audit, toolName, params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return mcp.NewToolResultText(fmt.Sprintf("power target set to %d W", watts)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// ---------------------------------------------------------------------------
// Curtailment tools
// ---------------------------------------------------------------------------

func toolSleep(mgr Manager, audit *safety.AuditLogger) tools.Registration {
	const toolName = "miner_sleep"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Curtail the miner: hashing stops and fans spin down. Use miner_wake to resume."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		params := map[string]any{}

		if err := mgr.Sleep(ctx); err != nil {
			tools.LogAudit(audit, toolName, params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return mcp.NewToolResultText("miner curtailed to sleep"), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolWake(mgr Manager, audit *safety.AuditLogger) tools.Registration {
	const toolName = "miner_wake"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Wake a curtailed miner back to hashing in safe mode."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		params := map[string]any{}

		if err := mgr.Wake(ctx); err != nil {
			tools.LogAudit(audit, toolName, params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return mcp.NewToolResultText("miner waking up in safe mode"), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// ---------------------------------------------------------------------------
// Restart tools
// ---------------------------------------------------------------------------

func toolReboot(mgr Manager, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) tools.Registration {
	const toolName = "miner_reboot"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Reboot the whole miner. Hashing stops for several minutes. Requires confirmation."),
		mcp.WithString("confirmation_token",
			mcp.Description("Confirmation token returned by a prior call to this tool"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		token := req.GetString("confirmation_token", "")
		params := map[string]any{}

		if !confirm.Confirm(token) {
			desc := "This will reboot the miner. Hashing stops until the device is back up, typically several minutes."
			return tools.ConfirmPrompt(confirm, toolName, "miner", desc), nil
		}

		if err := mgr.Reboot(ctx); err != nil {
			tools.LogAudit(audit, toolName, params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return mcp.NewToolResultText("miner is rebooting"), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolReset(mgr Manager, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) tools.Registration {
	const toolName = "miner_reset"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Restart the mining application without a full reboot. Hashing stops briefly. Requires confirmation."),
		mcp.WithString("confirmation_token",
			mcp.Description("Confirmation token returned by a prior call to this tool"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		token := req.GetString("confirmation_token", "")
		params := map[string]any{}

		if !confirm.Confirm(token) {
			desc := "This will restart the mining application. Hashing stops until it reconnects to the pool."
			return tools.ConfirmPrompt(confirm, toolName, "miner", desc), nil
		}

		if err := mgr.Reset(ctx); err != nil {
			tools.LogAudit(audit, toolName, params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		tools.LogAudit(audit, toolName, params, "ok", start)
		return mcp.NewToolResultText("mining application is restarting"), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
