package domain

import "time"

// ============================================================
// Airports
// ============================================================

// Airport is a row of fallback_airports or an AeroDataBox lookup result.
type Airport struct {
	ICAO         string  `json:"icao" toml:"icao"`
	IATA         string  `json:"iata,omitempty" toml:"iata"`
	Name         string  `json:"name" toml:"name"`
	City         string  `json:"city,omitempty" toml:"city"`
	Country      string  `json:"country,omitempty" toml:"country"`
	Latitude     float64 `json:"latitude" toml:"latitude"`
	Longitude    float64 `json:"longitude" toml:"longitude"`
	RunwayLength int     `json:"runway_length_ft,omitempty" toml:"runway_length_ft"`
}

// DistanceRequest is the body of POST /v1/aviation/distance.
type DistanceRequest struct {
	DepartureCode string `json:"departureCode"`
	ArrivalCode   string `json:"arrivalCode"`
}

// DistanceResponse is returned by the distance endpoint.
type DistanceResponse struct {
	Success       bool     `json:"success"`
	Departure     *Airport `json:"departure"`
	Arrival       *Airport `json:"arrival"`
	DistanceNM    float64  `json:"distanceNm"`
	DistanceKM    float64  `json:"distanceKm"`
	DistanceMiles float64  `json:"distanceMiles"`
}

// FlightTimeRequest is the body of POST /v1/aviation/flight-times.
type FlightTimeRequest struct {
	DepartureCode string `json:"departureCode"`
	ArrivalCode   string `json:"arrivalCode"`
	Passengers    int    `json:"passengers"`
}

// FlightTimeEstimate is one aircraft's estimated block time for a route.
type FlightTimeEstimate struct {
	AircraftType    string  `json:"aircraftType"`
	Category        string  `json:"category"`
	Passengers      int     `json:"maxPassengers"`
	DistanceNM      float64 `json:"distanceNm"`
	FlightMinutes   int     `json:"flightMinutes"`
	FlightTime      string  `json:"flightTime"` // "2h 35m"
	Source          string  `json:"source"`     // aerodatabox | estimate
	ExceedsRange    bool    `json:"exceedsRange"`
	EstimatedHourly float64 `json:"estimatedHourlyRate,omitempty"`
}

// FlightTimeResponse is returned by the flight-times endpoint.
type FlightTimeResponse struct {
	Success    bool                 `json:"success"`
	DistanceNM float64              `json:"distanceNm"`
	Estimates  []FlightTimeEstimate `json:"estimates"`
}

// ============================================================
// Aircraft reference data & fleet records
// ============================================================

// Aircraft is static performance reference data for a type.
type Aircraft struct {
	ID             string  `json:"id,omitempty" toml:"-"`
	Type           string  `json:"type" toml:"type"`
	Manufacturer   string  `json:"manufacturer" toml:"manufacturer"`
	Category       string  `json:"category" toml:"category"` // Light, Midsize, Super Midsize, Heavy...
	MaxPassengers  int     `json:"max_passengers" toml:"max_passengers"`
	CruiseSpeedKts int     `json:"cruise_speed_kts" toml:"cruise_speed_kts"`
	RangeNM        int     `json:"range_nm" toml:"range_nm"`
	HourlyRate     float64 `json:"hourly_rate,omitempty" toml:"hourly_rate"`
}

// AircraftLocation is one operator fleet record (tail number + home base).
type AircraftLocation struct {
	ID           string    `json:"id,omitempty"`
	OperatorID   string    `json:"operator_id"`
	Registration string    `json:"registration"` // tail number
	AircraftType string    `json:"aircraft_type"`
	HomeBase     string    `json:"home_base,omitempty"`
	YearOfMake   int       `json:"year_of_make,omitempty"`
	Seats        int       `json:"seats,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AircraftPosition is the last known position of a tail number.
type AircraftPosition struct {
	Registration string    `json:"registration"`
	Callsign     string    `json:"callsign,omitempty"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	AltitudeFt   int       `json:"altitudeFt"`
	GroundSpeed  int       `json:"groundSpeedKts"`
	Origin       string    `json:"origin,omitempty"`
	Destination  string    `json:"destination,omitempty"`
	OnGround     bool      `json:"onGround"`
	LastSeen     time.Time `json:"lastSeen"`
}

// ============================================================
// Trusted operators
// ============================================================

// TrustedOperator is a user-curated charter operator with a cached fleet list.
type TrustedOperator struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id,omitempty"`
	Name             string     `json:"name"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Website          string     `json:"website,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	CachedAircraft   []string   `json:"cached_aircraft"`
	FleetRefreshedAt *time.Time `json:"fleet_refreshed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// CreateOperatorRequest is the body of POST /v1/operators.
type CreateOperatorRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// FleetRefreshResult is returned after an Aviapages fleet refresh.
type FleetRefreshResult struct {
	Success    bool               `json:"success"`
	OperatorID string             `json:"operatorId"`
	Aircraft   []AircraftLocation `json:"aircraft"`
}
