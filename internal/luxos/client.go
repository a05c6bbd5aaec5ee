// Package luxos provides an HTTP client for the LuxOS miner command API.
// Every interaction is a JSON POST of {"command": ..., "parameter": ...} to
// the device's /api endpoint; responses carry a STATUS envelope plus a
// command-specific payload array.
package luxos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Command names understood by the LuxOS API.
const (
	CmdVersion        = "version"
	CmdSummary        = "summary"
	CmdPower          = "power"
	CmdTemps          = "temps"
	CmdFans           = "fans"
	CmdPools          = "pools"
	CmdProfiles       = "profiles"
	CmdATM            = "atm"
	CmdConfig         = "config"
	CmdDevs           = "devs"
	CmdDevDetails     = "devdetails"
	CmdTempCtrl       = "tempctrl"
	CmdLimits         = "limits"
	CmdSession        = "session"
	CmdLogon          = "logon"
	CmdLogoff         = "logoff"
	CmdProfileSet     = "profileset"
	CmdATMSet         = "atmset"
	CmdCurtail        = "curtail"
	CmdRebootDevice   = "rebootdevice"
	CmdResetMiner     = "resetminer"
	CmdPowerTargetSet = "powertargetset"
)

const defaultTimeout = 10 * time.Second

// APIError is returned when the device answers a command with STATUS "E".
type APIError struct {
	Command string
	Msg     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("luxos: command %q failed: %s", e.Command, e.Msg)
}

// ErrUnreachable wraps transport-level failures (refused connection,
// timeout). Callers use it to distinguish "device offline" from a command
// the device rejected.
var ErrUnreachable = errors.New("luxos: device unreachable")

// Client issues a single LuxOS command and returns the raw response body.
// Implementations must report device-side command errors (STATUS "E") as
// *APIError and transport failures wrapped in ErrUnreachable.
type Client interface {
	Exec(ctx context.Context, command, parameter string) ([]byte, error)
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// HTTPClient implements Client against a miner's local HTTP API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient constructs an HTTPClient for the miner at host:port.
// A non-positive timeout falls back to 10 seconds.
func NewHTTPClient(host string, port int, timeout time.Duration) (*HTTPClient, error) {
	if host == "" {
		return nil, fmt.Errorf("luxos: host is required")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("luxos: invalid port %d", port)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    fmt.Sprintf("http://%s/api", net.JoinHostPort(host, fmt.Sprint(port))),
	}, nil
}

// commandRequest is the JSON body shape for a LuxOS API call.
type commandRequest struct {
	Command   string `json:"command"`
	Parameter string `json:"parameter,omitempty"`
}

// statusEnvelope is the portion of every response needed for error checking.
type statusEnvelope struct {
	Status []ResponseStatus `json:"STATUS"`
}

// Exec posts the command and returns the raw response bytes. The parameter
// may be empty. Exec returns an error if:
//   - the HTTP request cannot be created or sent (wrapped in ErrUnreachable)
//   - the server responds with a non-2xx status code
//   - the response body cannot be decoded as JSON
//   - the response STATUS envelope reports code "E"
func (c *HTTPClient) Exec(ctx context.Context, command, parameter string) ([]byte, error) {
	body, err := json.Marshal(commandRequest{Command: command, Parameter: parameter})
	if err != nil {
		return nil, fmt.Errorf("luxos: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("luxos: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("luxos: command %q: unexpected HTTP status %d", command, resp.StatusCode)
	}

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("luxos: read response: %w", err)
	}

	var env statusEnvelope
	if err := json.Unmarshal(raw.Bytes(), &env); err != nil {
		return nil, fmt.Errorf("luxos: decode response: %w", err)
	}
	for _, st := range env.Status {
		if st.Code == "E" {
			msg := st.Msg
			if msg == "" {
				msg = "unknown API error"
			}
			return nil, &APIError{Command: command, Msg: msg}
		}
	}

	return raw.Bytes(), nil
}
