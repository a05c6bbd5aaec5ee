package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/exergy/luxos-mcp/internal/luxos"
	"go.uber.org/zap"
)

// Response envelopes for the read commands. Each payload is an array keyed
// by the command's upper-case name; single-object commands still arrive as
// one-element arrays.
type (
	versionResponse    struct{ Version []luxos.Version `json:"VERSION"` }
	summaryResponse    struct{ Summary []luxos.Summary `json:"SUMMARY"` }
	powerResponse      struct{ Power []luxos.Power `json:"POWER"` }
	tempsResponse      struct{ Temps []luxos.TempReading `json:"TEMPS"` }
	poolsResponse      struct{ Pools []luxos.Pool `json:"POOLS"` }
	profilesResponse   struct{ Profiles []luxos.Profile `json:"PROFILES"` }
	atmResponse        struct{ ATM []luxos.ATM `json:"ATM"` }
	configResponse     struct{ Config []luxos.MinerConfig `json:"CONFIG"` }
	devsResponse       struct{ Devs []luxos.Dev `json:"DEVS"` }
	devDetailsResponse struct{ DevDetails []luxos.DevDetail `json:"DEVDETAILS"` }
	tempCtrlResponse   struct{ TempCtrl []luxos.TempCtrl `json:"TEMPCTRL"` }
	limitsResponse     struct{ Limits []luxos.Limits `json:"LIMITS"` }

	fansResponse struct {
		Fans    []luxos.Fan     `json:"FANS"`
		FanCtrl []luxos.FanCtrl `json:"FANCTRL"`
	}
)

// Collector builds Snapshots by issuing every read command against the
// device. A failed command leaves its section absent rather than failing
// the whole pass; the snapshot is only marked offline when nothing could be
// fetched at all.
type Collector struct {
	client luxos.Client
	log    *zap.Logger
}

// NewCollector returns a Collector using the given client. The logger must
// not be nil; pass zap.NewNop() to silence it.
func NewCollector(client luxos.Client, log *zap.Logger) *Collector {
	if client == nil {
		panic("luxos client must not be nil")
	}
	if log == nil {
		panic("logger must not be nil")
	}
	return &Collector{client: client, log: log}
}

// Collect performs one full read pass and returns the resulting Snapshot.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	snap := Snapshot{FetchedAt: time.Now()}
	fetched := 0

	section := func(name string, fetch func() error) {
		if err := fetch(); err != nil {
			c.log.Warn("telemetry fetch failed",
				zap.String("section", name),
				zap.Error(err))
			return
		}
		fetched++
	}

	section(luxos.CmdVersion, func() error {
		v, err := c.fetchVersion(ctx)
		if err != nil {
			return err
		}
		snap.Version, snap.HasVersion = v, true
		return nil
	})
	section(luxos.CmdSummary, func() error {
		v, err := c.fetchSummary(ctx)
		if err != nil {
			return err
		}
		snap.Summary, snap.HasSummary = v, true
		return nil
	})
	section(luxos.CmdPower, func() error {
		v, err := c.fetchPower(ctx)
		if err != nil {
			return err
		}
		snap.Power, snap.HasPower = v, true
		return nil
	})
	section(luxos.CmdTemps, func() error {
		v, err := c.fetchTemps(ctx)
		if err != nil {
			return err
		}
		snap.Temps, snap.HasTemps = v, true
		return nil
	})
	section(luxos.CmdFans, func() error {
		fans, ctrl, err := c.fetchFans(ctx)
		if err != nil {
			return err
		}
		snap.Fans, snap.FanCtrl, snap.HasFans = fans, ctrl, true
		return nil
	})
	section(luxos.CmdPools, func() error {
		v, err := c.fetchPools(ctx)
		if err != nil {
			return err
		}
		snap.Pools, snap.HasPools = v, true
		return nil
	})
	section(luxos.CmdProfiles, func() error {
		v, err := c.fetchProfiles(ctx)
		if err != nil {
			return err
		}
		snap.Profiles, snap.HasProfiles = v, true
		return nil
	})
	section(luxos.CmdATM, func() error {
		v, err := c.fetchATM(ctx)
		if err != nil {
			return err
		}
		snap.ATM, snap.HasATM = v, true
		return nil
	})
	section(luxos.CmdConfig, func() error {
		v, err := c.fetchConfig(ctx)
		if err != nil {
			return err
		}
		snap.Config, snap.HasConfig = v, true
		return nil
	})
	section(luxos.CmdDevs, func() error {
		v, err := c.fetchDevs(ctx)
		if err != nil {
			return err
		}
		snap.Devs, snap.HasDevs = v, true
		return nil
	})
	section(luxos.CmdDevDetails, func() error {
		v, err := c.fetchDevDetails(ctx)
		if err != nil {
			return err
		}
		snap.DevDetails, snap.HasDevDetails = v, true
		return nil
	})
	section(luxos.CmdTempCtrl, func() error {
		v, err := c.fetchTempCtrl(ctx)
		if err != nil {
			return err
		}
		snap.TempCtrl, snap.HasTempCtrl = v, true
		return nil
	})
	section(luxos.CmdLimits, func() error {
		v, err := c.fetchLimits(ctx)
		if err != nil {
			return err
		}
		snap.Limits, snap.HasLimits = v, true
		return nil
	})

	snap.Online = fetched > 0
	snap.computeDerived()
	return snap
}

// exec runs one read command and unmarshals the response into out.
func (c *Collector) exec(ctx context.Context, command string, out any) error {
	data, err := c.client.Exec(ctx, command, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s response: %w", command, err)
	}
	return nil
}

func (c *Collector) fetchVersion(ctx context.Context) (luxos.Version, error) {
	var resp versionResponse
	if err := c.exec(ctx, luxos.CmdVersion, &resp); err != nil {
		return luxos.Version{}, err
	}
	if len(resp.Version) == 0 {
		return luxos.Version{}, fmt.Errorf("version: empty payload")
	}
	return resp.Version[0], nil
}

func (c *Collector) fetchSummary(ctx context.Context) (luxos.Summary, error) {
	var resp summaryResponse
	if err := c.exec(ctx, luxos.CmdSummary, &resp); err != nil {
		return luxos.Summary{}, err
	}
	if len(resp.Summary) == 0 {
		return luxos.Summary{}, fmt.Errorf("summary: empty payload")
	}
	return resp.Summary[0], nil
}

func (c *Collector) fetchPower(ctx context.Context) (luxos.Power, error) {
	var resp powerResponse
	if err := c.exec(ctx, luxos.CmdPower, &resp); err != nil {
		return luxos.Power{}, err
	}
	if len(resp.Power) == 0 {
		return luxos.Power{}, fmt.Errorf("power: empty payload")
	}
	return resp.Power[0], nil
}

func (c *Collector) fetchTemps(ctx context.Context) ([]luxos.TempReading, error) {
	var resp tempsResponse
	if err := c.exec(ctx, luxos.CmdTemps, &resp); err != nil {
		return nil, err
	}
	return resp.Temps, nil
}

func (c *Collector) fetchFans(ctx context.Context) ([]luxos.Fan, luxos.FanCtrl, error) {
	var resp fansResponse
	if err := c.exec(ctx, luxos.CmdFans, &resp); err != nil {
		return nil, luxos.FanCtrl{}, err
	}
	var ctrl luxos.FanCtrl
	if len(resp.FanCtrl) > 0 {
		ctrl = resp.FanCtrl[0]
	}
	return resp.Fans, ctrl, nil
}

func (c *Collector) fetchPools(ctx context.Context) ([]luxos.Pool, error) {
	var resp poolsResponse
	if err := c.exec(ctx, luxos.CmdPools, &resp); err != nil {
		return nil, err
	}
	return resp.Pools, nil
}

func (c *Collector) fetchProfiles(ctx context.Context) ([]luxos.Profile, error) {
	var resp profilesResponse
	if err := c.exec(ctx, luxos.CmdProfiles, &resp); err != nil {
		return nil, err
	}
	return resp.Profiles, nil
}

func (c *Collector) fetchATM(ctx context.Context) (luxos.ATM, error) {
	var resp atmResponse
	if err := c.exec(ctx, luxos.CmdATM, &resp); err != nil {
		return luxos.ATM{}, err
	}
	if len(resp.ATM) == 0 {
		return luxos.ATM{}, fmt.Errorf("atm: empty payload")
	}
	return resp.ATM[0], nil
}

func (c *Collector) fetchConfig(ctx context.Context) (luxos.MinerConfig, error) {
	var resp configResponse
	if err := c.exec(ctx, luxos.CmdConfig, &resp); err != nil {
		return luxos.MinerConfig{}, err
	}
	if len(resp.Config) == 0 {
		return luxos.MinerConfig{}, fmt.Errorf("config: empty payload")
	}
	return resp.Config[0], nil
}

func (c *Collector) fetchDevs(ctx context.Context) ([]luxos.Dev, error) {
	var resp devsResponse
	if err := c.exec(ctx, luxos.CmdDevs, &resp); err != nil {
		return nil, err
	}
	return resp.Devs, nil
}

func (c *Collector) fetchDevDetails(ctx context.Context) ([]luxos.DevDetail, error) {
	var resp devDetailsResponse
	if err := c.exec(ctx, luxos.CmdDevDetails, &resp); err != nil {
		return nil, err
	}
	return resp.DevDetails, nil
}

func (c *Collector) fetchTempCtrl(ctx context.Context) (luxos.TempCtrl, error) {
	var resp tempCtrlResponse
	if err := c.exec(ctx, luxos.CmdTempCtrl, &resp); err != nil {
		return luxos.TempCtrl{}, err
	}
	if len(resp.TempCtrl) == 0 {
		return luxos.TempCtrl{}, fmt.Errorf("tempctrl: empty payload")
	}
	return resp.TempCtrl[0], nil
}

func (c *Collector) fetchLimits(ctx context.Context) (luxos.Limits, error) {
	var resp limitsResponse
	if err := c.exec(ctx, luxos.CmdLimits, &resp); err != nil {
		return luxos.Limits{}, err
	}
	if len(resp.Limits) == 0 {
		return luxos.Limits{}, fmt.Errorf("limits: empty payload")
	}
	return resp.Limits[0], nil
}
