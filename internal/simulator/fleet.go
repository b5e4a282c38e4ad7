// Package simulator produces synthetic vehicle positions and serves them as a
// server-push stream, standing in for the fleet backend during development.
package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"go-fleet-live/internal/domain/fleet"
)

const kmPerDegree = 111.32

// Fleet moves a fixed set of vehicles on a random walk.
type Fleet struct {
	mu       sync.Mutex
	rng      *rand.Rand
	vehicles []fleet.VehicleLocation
	now      func() time.Time
}

// NewFleet places n vehicles around (lat, lon). The same seed yields the same
// walk.
func NewFleet(n int, lat, lon float64, seed int64) *Fleet {
	f := &Fleet{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}

	ts := f.now().UTC()
	for i := 0; i < n; i++ {
		f.vehicles = append(f.vehicles, fleet.VehicleLocation{
			VehicleID: int64(i + 1),
			Lat:       clampLat(lat + (f.rng.Float64()-0.5)*0.1),
			Lon:       wrapLon(lon + (f.rng.Float64()-0.5)*0.1),
			Heading:   math.Floor(f.rng.Float64() * 360),
			Speed:     20 + f.rng.Float64()*60,
			Timestamp: ts,
		})
	}
	return f
}

// Step advances every vehicle by elapsed and returns the new positions.
func (f *Fleet) Step(elapsed time.Duration) []fleet.VehicleLocation {
	f.mu.Lock()
	defer f.mu.Unlock()

	ts := f.now().UTC()
	hours := elapsed.Hours()

	for i := range f.vehicles {
		v := &f.vehicles[i]

		v.Heading = normHeading(v.Heading + (f.rng.Float64()-0.5)*30)
		v.Speed = math.Min(120, math.Max(0, v.Speed+(f.rng.Float64()-0.5)*10))

		km := v.Speed * hours
		rad := v.Heading * math.Pi / 180
		v.Lat = clampLat(v.Lat + km*math.Cos(rad)/kmPerDegree)

		// Longitude degrees shrink towards the poles.
		scale := math.Max(math.Cos(v.Lat*math.Pi/180), 0.01)
		v.Lon = wrapLon(v.Lon + km*math.Sin(rad)/(kmPerDegree*scale))
		v.Timestamp = ts
	}

	return f.snapshotLocked()
}

// Snapshot returns the current positions without moving anyone.
func (f *Fleet) Snapshot() []fleet.VehicleLocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Fleet) snapshotLocked() []fleet.VehicleLocation {
	return append([]fleet.VehicleLocation(nil), f.vehicles...)
}

func (f *Fleet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.vehicles)
}

func clampLat(lat float64) float64 {
	return math.Max(-89.9, math.Min(89.9, lat))
}

func wrapLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func normHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		return 0
	}
	return h
}
