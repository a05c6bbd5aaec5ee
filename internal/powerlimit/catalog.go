// Package powerlimit implements the adaptive power-limit control loop: it
// maps a real-world wattage target onto the miner's discrete profile list
// and steps the active profile until measured draw sits inside a one-sided
// tolerance band below the target.
package powerlimit

import (
	"sort"

	"github.com/exergy/luxos-mcp/internal/luxos"
)

// DefaultReferenceBoards is the hashboard count the firmware assumes when
// reporting profile wattages. Rigs with fewer boards draw proportionally
// less than the reported figure.
const DefaultReferenceBoards = 3

// DataSource supplies the latest known miner state. Implemented by
// telemetry.Poller; readings may be stale or zero while the device is
// offline.
type DataSource interface {
	Profiles() []luxos.Profile
	BoardCount() int
	ActualPower() float64
	CurrentProfileName() string
}

// Direction selects which neighbor of a profile to look up.
type Direction int

const (
	StepLower Direction = iota
	StepHigher
)

// Catalog is a derived, wattage-ordered view over the device's profile
// list. It holds no profile data itself; every lookup re-reads the source
// so the view always reflects the latest poll.
type Catalog struct {
	src             DataSource
	referenceBoards int
}

// NewCatalog returns a Catalog over src. A non-positive referenceBoards
// falls back to DefaultReferenceBoards.
func NewCatalog(src DataSource, referenceBoards int) *Catalog {
	if src == nil {
		panic("data source must not be nil")
	}
	if referenceBoards <= 0 {
		referenceBoards = DefaultReferenceBoards
	}
	return &Catalog{src: src, referenceBoards: referenceBoards}
}

// Sorted returns the usable profiles ordered ascending by reported wattage.
// Entries without a name or wattage are dropped; equal wattages keep their
// source order.
func (c *Catalog) Sorted() []luxos.Profile {
	src := c.src.Profiles()
	out := make([]luxos.Profile, 0, len(src))
	for _, p := range src {
		if p.Name == "" || p.Watts <= 0 {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Watts < out[j].Watts })
	return out
}

// ScaleFactor returns the ratio of the reference board count to the boards
// actually installed. Device-reported wattages divided by this factor give
// real-world watts for the installed hardware.
func (c *Catalog) ScaleFactor() float64 {
	boards := c.src.BoardCount()
	if boards < 1 {
		boards = 1
	}
	return float64(c.referenceBoards) / float64(boards)
}

// DeviceToReal converts a device-reported wattage to an estimate of real
// draw on the installed board count.
func (c *Catalog) DeviceToReal(deviceWatts float64) float64 {
	return deviceWatts / c.ScaleFactor()
}

// RealToDevice converts a real-world wattage to its device-reported
// equivalent.
func (c *Catalog) RealToDevice(realWatts float64) float64 {
	return realWatts * c.ScaleFactor()
}

// BestFitForCeiling returns the highest-wattage profile whose reported draw
// does not exceed the device-equivalent of ceilingWatts (a real-world
// figure). When every profile is above the ceiling the cheapest profile is
// returned as a best effort. The second return is false only for an empty
// catalog.
func (c *Catalog) BestFitForCeiling(ceilingWatts float64) (luxos.Profile, bool) {
	profiles := c.Sorted()
	if len(profiles) == 0 {
		return luxos.Profile{}, false
	}

	deviceCeiling := c.RealToDevice(ceilingWatts)

	best := -1
	for i, p := range profiles {
		if p.Watts <= deviceCeiling {
			best = i
		}
	}
	if best < 0 {
		return profiles[0], true
	}
	return profiles[best], true
}

// Neighbor returns the profile adjacent to name in the sorted order, in the
// requested direction. The second return is false at a catalog boundary or
// when name is not present.
func (c *Catalog) Neighbor(name string, dir Direction) (luxos.Profile, bool) {
	profiles := c.Sorted()
	for i, p := range profiles {
		if p.Name != name {
			continue
		}
		switch dir {
		case StepLower:
			if i > 0 {
				return profiles[i-1], true
			}
		case StepHigher:
			if i < len(profiles)-1 {
				return profiles[i+1], true
			}
		}
		return luxos.Profile{}, false
	}
	return luxos.Profile{}, false
}
