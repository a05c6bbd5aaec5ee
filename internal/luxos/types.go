package luxos

// Response field names on the LuxOS API preserve the firmware's own key
// spelling, including embedded spaces ("Profile Name", "GHS 5s").

// ResponseStatus is one entry of the STATUS array present in every LuxOS
// API response envelope. Code "E" indicates a command error.
type ResponseStatus struct {
	Code        string `json:"STATUS"`
	When        int64  `json:"When"`
	Msg         string `json:"Msg"`
	Description string `json:"Description"`
}

// Version describes the firmware and miner model, from the "version" command.
type Version struct {
	Type     string `json:"Type"`
	LUXminer string `json:"LUXminer"`
	API      string `json:"API"`
	Miner    string `json:"Miner"`
	CompTime string `json:"CompileTime"`
}

// Summary holds aggregate mining statistics, from the "summary" command.
// Hashrates are reported in GH/s.
type Summary struct {
	Elapsed        int     `json:"Elapsed"`
	GHS5s          float64 `json:"GHS 5s"`
	GHS1m          float64 `json:"GHS 1m"`
	GHS15m         float64 `json:"GHS 15m"`
	GHS30m         float64 `json:"GHS 30m"`
	GHSAvg         float64 `json:"GHS av"`
	Accepted       int64   `json:"Accepted"`
	Rejected       int64   `json:"Rejected"`
	Stale          int64   `json:"Stale"`
	HardwareErrors int64   `json:"Hardware Errors"`
	BestShare      int64   `json:"Best Share"`
}

// Power reports wall power draw, from the "power" command.
type Power struct {
	Watts float64 `json:"Watts"`
	PSU   bool    `json:"PSU"`
}

// TempReading holds one hashboard's temperature sensors, from "temps".
type TempReading struct {
	ID          int      `json:"ID"`
	Board       *float64 `json:"Board"`
	Chip        *float64 `json:"Chip"`
	TopLeft     *float64 `json:"TopLeft"`
	TopRight    *float64 `json:"TopRight"`
	BottomLeft  *float64 `json:"BottomLeft"`
	BottomRight *float64 `json:"BottomRight"`
}

// Fan describes one fan, from the "fans" command.
type Fan struct {
	ID    int     `json:"ID"`
	Speed float64 `json:"Speed"`
	RPM   float64 `json:"RPM"`
}

// FanCtrl holds the fan controller state, from the "fans" command.
type FanCtrl struct {
	Mode  string  `json:"Mode"`
	Speed float64 `json:"Speed"`
}

// Pool describes one configured stratum pool, from the "pools" command.
type Pool struct {
	ID                int     `json:"POOL"`
	URL               string  `json:"URL"`
	Status            string  `json:"Status"`
	User              string  `json:"User"`
	StratumActive     bool    `json:"Stratum Active"`
	StratumURL        string  `json:"Stratum URL"`
	StratumDifficulty float64 `json:"Stratum Difficulty"`
}

// Profile is one selectable operating point, from the "profiles" command.
// Watts is reported for the reference multi-board configuration, not for the
// boards actually installed.
type Profile struct {
	Name      string  `json:"Profile Name"`
	IsDefault bool    `json:"IsDefault"`
	IsActive  bool    `json:"IsActive"`
	Step      int     `json:"Step"`
	Frequency float64 `json:"Frequency"`
	Voltage   float64 `json:"Voltage"`
	Hashrate  float64 `json:"Hashrate"`
	Watts     float64 `json:"Watts"`
}

// ATM holds the Advanced Thermal Management (auto-tuning) configuration,
// from the "atm" command.
type ATM struct {
	Enabled    bool   `json:"Enabled"`
	StartupMin string `json:"StartupMinutes"`
	MaxProfile string `json:"MaxProfile"`
	MinProfile string `json:"MinProfile"`
}

// MinerConfig is the live configuration, from the "config" command.
type MinerConfig struct {
	Profile      string `json:"Profile"`
	Hostname     string `json:"Hostname"`
	Model        string `json:"Model"`
	SerialNumber string `json:"SerialNumber"`
	CurtailMode  string `json:"CurtailMode"`
	SystemStatus string `json:"SystemStatus"`
	IsTuning     bool   `json:"IsTuning"`
}

// Dev describes one hashboard, from the "devs" command. The number of
// entries is the installed board count.
type Dev struct {
	ID          int     `json:"ID"`
	Enabled     string  `json:"Enabled"`
	Status      string  `json:"Status"`
	Temperature float64 `json:"Temperature"`
	GHS5s       float64 `json:"GHS 5s"`
}

// DevDetail holds per-board hardware details, from "devdetails".
type DevDetail struct {
	ID           int     `json:"ID"`
	Chips        int     `json:"Chips"`
	Frequency    float64 `json:"Frequency"`
	Voltage      float64 `json:"Voltage"`
	SerialNumber string  `json:"SerialNumber"`
}

// TempCtrl holds temperature control settings, from the "tempctrl" command.
type TempCtrl struct {
	Mode   string  `json:"Mode"`
	Target float64 `json:"Target"`
	Hot    float64 `json:"Hot"`
	Danger float64 `json:"Dangerous"`
}

// Limits holds tunable parameter bounds, from the "limits" command.
type Limits struct {
	MaxFrequency   float64 `json:"MaxFrequency"`
	MinFrequency   float64 `json:"MinFrequency"`
	MaxVoltage     float64 `json:"MaxVoltage"`
	MinVoltage     float64 `json:"MinVoltage"`
	PowerTargetMin int     `json:"PowerTargetMin"`
	PowerTargetMax int     `json:"PowerTargetMax"`
}

// Session identifies the holder of the device's single write session, from
// the "session" command. SessionID is empty when nobody is logged on.
type Session struct {
	SessionID string `json:"SessionID"`
	User      string `json:"User"`
}
