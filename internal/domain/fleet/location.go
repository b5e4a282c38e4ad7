// Package fleet holds the vehicle types carried on the live channels.
package fleet

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// LocationChannel is the channel vehicle positions are published on.
const LocationChannel = "vehicle-location-update"

var ErrInvalidLocation = errors.New("invalid vehicle location")

// VehicleLocation is the payload of a vehicle-location-update event.
type VehicleLocation struct {
	VehicleID int64     `json:"vehicleId"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Heading   float64   `json:"heading"` // degrees, 0 is north
	Speed     float64   `json:"speed"`   // km/h
	Timestamp time.Time `json:"timestamp"`
}

func (l VehicleLocation) Validate() error {
	switch {
	case l.VehicleID <= 0:
		return fmt.Errorf("%w: vehicle id %d", ErrInvalidLocation, l.VehicleID)
	case math.IsNaN(l.Lat) || l.Lat < -90 || l.Lat > 90:
		return fmt.Errorf("%w: latitude %v", ErrInvalidLocation, l.Lat)
	case math.IsNaN(l.Lon) || l.Lon < -180 || l.Lon > 180:
		return fmt.Errorf("%w: longitude %v", ErrInvalidLocation, l.Lon)
	case l.Heading < 0 || l.Heading >= 360:
		return fmt.Errorf("%w: heading %v", ErrInvalidLocation, l.Heading)
	case l.Speed < 0:
		return fmt.Errorf("%w: speed %v", ErrInvalidLocation, l.Speed)
	}
	return nil
}

// NewerThan reports whether l was recorded after other.
func (l VehicleLocation) NewerThan(other VehicleLocation) bool {
	return l.Timestamp.After(other.Timestamp)
}
