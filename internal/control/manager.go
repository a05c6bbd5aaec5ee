// Package control issues the miner's session-scoped write commands. Every
// write runs logon, command, logoff as one sequence; the session ID is never
// held between calls.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/exergy/luxos-mcp/internal/luxos"
	"go.uber.org/zap"
)

// luxosLogoffTimeout bounds the best-effort logoff call.
const luxosLogoffTimeout = 5 * time.Second

// ErrSessionBusy is returned when another client already holds the device's
// single write session. LuxOS allows one session at a time; stomping on a
// foreign one would log its owner out mid-operation.
var ErrSessionBusy = errors.New("control: another session is active on the device")

// WakeModeSafe ramps hashboards back up gradually after curtailment.
const WakeModeSafe = "safe"

// Manager is the write-side counterpart to the telemetry collector.
type Manager interface {
	SetProfile(ctx context.Context, name string) error
	SetATM(ctx context.Context, enabled bool) error
	Sleep(ctx context.Context) error
	Wake(ctx context.Context) error
	Reboot(ctx context.Context) error
	Reset(ctx context.Context) error
	SetPowerTarget(ctx context.Context, watts int) error
}

// Compile-time interface check.
var _ Manager = (*SessionManager)(nil)

// SessionManager implements Manager over the LuxOS command client.
type SessionManager struct {
	client luxos.Client
	log    *zap.Logger
}

// NewSessionManager constructs a SessionManager. Panics on nil dependencies.
func NewSessionManager(client luxos.Client, log *zap.Logger) *SessionManager {
	if client == nil {
		panic("luxos client must not be nil")
	}
	if log == nil {
		panic("logger must not be nil")
	}
	return &SessionManager{client: client, log: log}
}

// sessionResponse is the envelope shared by the session and logon commands.
type sessionResponse struct {
	Session []luxos.Session `json:"SESSION"`
}

// currentSession returns the device's active session ID, "" when nobody is
// logged on.
func (m *SessionManager) currentSession(ctx context.Context) (string, error) {
	data, err := m.client.Exec(ctx, luxos.CmdSession, "")
	if err != nil {
		return "", err
	}
	var resp sessionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("control: parse session response: %w", err)
	}
	if len(resp.Session) == 0 {
		return "", nil
	}
	return resp.Session[0].SessionID, nil
}

// logon opens a fresh write session and returns its ID. A session already
// held by someone else yields ErrSessionBusy.
func (m *SessionManager) logon(ctx context.Context) (string, error) {
	existing, err := m.currentSession(ctx)
	if err != nil {
		return "", fmt.Errorf("control: check session: %w", err)
	}
	if existing != "" {
		m.log.Warn("device session already held", zap.String("session_id", existing))
		return "", ErrSessionBusy
	}

	data, err := m.client.Exec(ctx, luxos.CmdLogon, "")
	if err != nil {
		return "", fmt.Errorf("control: logon: %w", err)
	}
	var resp sessionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("control: parse logon response: %w", err)
	}
	if len(resp.Session) == 0 || resp.Session[0].SessionID == "" {
		return "", fmt.Errorf("control: logon returned no session ID")
	}
	return resp.Session[0].SessionID, nil
}

// logoff releases the session. Failure is logged but not returned; the
// device expires stale sessions on its own.
func (m *SessionManager) logoff(sessionID string) {
	// The parent context may already be done; the logoff still has to go
	// out or the device stays locked until its session timeout.
	ctx, cancel := context.WithTimeout(context.Background(), luxosLogoffTimeout)
	defer cancel()

	if _, err := m.client.Exec(ctx, luxos.CmdLogoff, sessionID); err != nil {
		m.log.Warn("logoff failed, session will expire on its own",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// withSession runs one write command inside a logon/logoff pair. The session
// ID is prepended to the command's parameter string.
func (m *SessionManager) withSession(ctx context.Context, command, parameter string) error {
	sessionID, err := m.logon(ctx)
	if err != nil {
		return err
	}
	defer m.logoff(sessionID)

	full := sessionID
	if parameter != "" {
		full = sessionID + "," + parameter
	}

	if _, err := m.client.Exec(ctx, command, full); err != nil {
		return fmt.Errorf("control: %s: %w", command, err)
	}

	m.log.Info("write command executed",
		zap.String("command", command),
		zap.String("parameter", parameter))
	return nil
}

// SetProfile switches the active mining profile. Board 0 addresses all
// boards on current firmware.
func (m *SessionManager) SetProfile(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("control: profile name is required")
	}
	return m.withSession(ctx, luxos.CmdProfileSet, "0,"+name)
}

// SetATM enables or disables Advanced Thermal Management, the firmware's own
// profile autotuner. Disable it before driving profiles externally.
func (m *SessionManager) SetATM(ctx context.Context, enabled bool) error {
	return m.withSession(ctx, luxos.CmdATMSet, fmt.Sprintf("enabled=%t", enabled))
}

// Sleep curtails the miner: hashing stops, fans spin down.
func (m *SessionManager) Sleep(ctx context.Context) error {
	return m.withSession(ctx, luxos.CmdCurtail, "sleep")
}

// Wake brings a curtailed miner back to hashing in safe mode.
func (m *SessionManager) Wake(ctx context.Context) error {
	return m.withSession(ctx, luxos.CmdCurtail, "wakeup,mode="+WakeModeSafe)
}

// Reboot power-cycles the whole device.
func (m *SessionManager) Reboot(ctx context.Context) error {
	return m.withSession(ctx, luxos.CmdRebootDevice, "")
}

// Reset restarts the mining application without a full reboot.
func (m *SessionManager) Reset(ctx context.Context) error {
	return m.withSession(ctx, luxos.CmdResetMiner, "")
}

// SetPowerTarget hands a wattage target to the firmware's native power
// tuner. Only newer firmware supports it; older builds answer STATUS "E".
func (m *SessionManager) SetPowerTarget(ctx context.Context, watts int) error {
	if watts <= 0 {
		return fmt.Errorf("control: power target must be positive, got %d", watts)
	}
	return m.withSession(ctx, luxos.CmdPowerTargetSet, fmt.Sprintf("power=%d", watts))
}
