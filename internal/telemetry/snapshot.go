// Package telemetry maintains a cached view of the miner's read-only state.
// A Collector fetches every read command in one pass, tolerating per-field
// failures, and a Poller refreshes the resulting Snapshot on a fixed
// interval while keeping the last known-good copy available.
package telemetry

import (
	"time"

	"github.com/exergy/luxos-mcp/internal/luxos"
)

// Snapshot is one complete observation of the miner. Each fetched section
// carries a presence flag; a false flag means that command failed during the
// collection pass and the zero value must not be trusted.
type Snapshot struct {
	Online    bool      `json:"online"`
	FetchedAt time.Time `json:"fetched_at"`

	Version    luxos.Version `json:"version,omitempty"`
	HasVersion bool          `json:"has_version"`

	Summary    luxos.Summary `json:"summary,omitempty"`
	HasSummary bool          `json:"has_summary"`

	Power    luxos.Power `json:"power,omitempty"`
	HasPower bool        `json:"has_power"`

	Temps    []luxos.TempReading `json:"temps,omitempty"`
	HasTemps bool                `json:"has_temps"`

	Fans    []luxos.Fan   `json:"fans,omitempty"`
	FanCtrl luxos.FanCtrl `json:"fanctrl,omitempty"`
	HasFans bool          `json:"has_fans"`

	Pools    []luxos.Pool `json:"pools,omitempty"`
	HasPools bool         `json:"has_pools"`

	Profiles    []luxos.Profile `json:"profiles,omitempty"`
	HasProfiles bool            `json:"has_profiles"`

	ATM    luxos.ATM `json:"atm,omitempty"`
	HasATM bool      `json:"has_atm"`

	Config    luxos.MinerConfig `json:"config,omitempty"`
	HasConfig bool              `json:"has_config"`

	Devs    []luxos.Dev `json:"devs,omitempty"`
	HasDevs bool        `json:"has_devs"`

	DevDetails    []luxos.DevDetail `json:"devdetails,omitempty"`
	HasDevDetails bool              `json:"has_devdetails"`

	TempCtrl    luxos.TempCtrl `json:"tempctrl,omitempty"`
	HasTempCtrl bool           `json:"has_tempctrl"`

	Limits    luxos.Limits `json:"limits,omitempty"`
	HasLimits bool         `json:"has_limits"`

	// Derived values, computed from the sections above after each pass.
	BoardCount      int     `json:"board_count"`
	Efficiency      float64 `json:"efficiency_w_per_th,omitempty"`
	HasEfficiency   bool    `json:"has_efficiency"`
	MaxBoardTemp    float64 `json:"max_board_temp,omitempty"`
	HasMaxBoardTemp bool    `json:"has_max_board_temp"`
	FanSpeedAvg     float64 `json:"fan_speed_avg,omitempty"`
	FanRPMAvg       float64 `json:"fan_rpm_avg,omitempty"`
	ActivePoolURL   string  `json:"active_pool_url,omitempty"`
	ActivePoolUser  string  `json:"active_pool_user,omitempty"`
	PoolConnected   bool    `json:"pool_connected"`
}

// ActualPower returns the measured wall draw in watts, or 0 when no power
// reading is present in this snapshot.
func (s Snapshot) ActualPower() float64 {
	if !s.HasPower {
		return 0
	}
	return s.Power.Watts
}

// CurrentProfileName returns the active profile name, or "" when the config
// section is absent.
func (s Snapshot) CurrentProfileName() string {
	if !s.HasConfig {
		return ""
	}
	return s.Config.Profile
}

// Curtailed reports whether the miner is sleeping. CurtailMode "None" means
// actively mining.
func (s Snapshot) Curtailed() bool {
	return s.HasConfig && s.Config.CurtailMode != "" && s.Config.CurtailMode != "None"
}

// computeDerived fills the derived fields from the fetched sections.
func (s *Snapshot) computeDerived() {
	if s.HasDevs {
		s.BoardCount = len(s.Devs)
	}

	// Efficiency in W/TH; summary hashrates are GH/s.
	if s.HasPower && s.HasSummary {
		ths := s.Summary.GHS5s / 1000
		if ths > 0 && s.Power.Watts > 0 {
			s.Efficiency = s.Power.Watts / ths
			s.HasEfficiency = true
		}
	}

	if s.HasTemps {
		max, ok := maxBoardTemp(s.Temps)
		if ok {
			s.MaxBoardTemp = max
			s.HasMaxBoardTemp = true
		}
	}

	if s.HasFans && len(s.Fans) > 0 {
		var speed, rpm float64
		for _, f := range s.Fans {
			speed += f.Speed
			rpm += f.RPM
		}
		s.FanSpeedAvg = speed / float64(len(s.Fans))
		s.FanRPMAvg = rpm / float64(len(s.Fans))
	}

	if s.HasPools && len(s.Pools) > 0 {
		active := activePool(s.Pools)
		s.ActivePoolURL = active.StratumURL
		s.ActivePoolUser = active.User
		s.PoolConnected = active.Status == "Alive"
	}
}

// maxBoardTemp returns the hottest reported sensor value across all boards.
func maxBoardTemp(temps []luxos.TempReading) (float64, bool) {
	var max float64
	found := false
	for _, t := range temps {
		for _, v := range []*float64{t.TopLeft, t.TopRight, t.BottomLeft, t.BottomRight, t.Board, t.Chip} {
			if v == nil {
				continue
			}
			if !found || *v > max {
				max = *v
				found = true
			}
		}
	}
	return max, found
}

// activePool returns the first pool with a live stratum connection, falling
// back to the first configured pool.
func activePool(pools []luxos.Pool) luxos.Pool {
	for _, p := range pools {
		if p.Status == "Alive" && p.StratumActive {
			return p
		}
	}
	return pools[0]
}
