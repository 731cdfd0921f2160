// Common value objects shared across modules.
package types

// ID identifies a vehicle, driver, trip, rule or actor.
type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}
