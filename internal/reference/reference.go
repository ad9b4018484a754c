// Package reference embeds the aircraft performance catalog and a small set
// of seed airports used before any upstream aviation API is configured.
package reference

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

//go:embed aircraft.toml
var aircraftTOML string

//go:embed airports.toml
var airportsTOML string

// Aircraft returns the embedded catalog, smallest cabins first.
func Aircraft() ([]domain.Aircraft, error) {
	var doc struct {
		Aircraft []domain.Aircraft `toml:"aircraft"`
	}
	if _, err := toml.Decode(aircraftTOML, &doc); err != nil {
		return nil, fmt.Errorf("decode aircraft catalog: %w", err)
	}
	sort.SliceStable(doc.Aircraft, func(i, j int) bool {
		return doc.Aircraft[i].MaxPassengers < doc.Aircraft[j].MaxPassengers
	})
	return doc.Aircraft, nil
}

// Airports returns the embedded seed airports.
func Airports() ([]domain.Airport, error) {
	var doc struct {
		Airports []domain.Airport `toml:"airport"`
	}
	if _, err := toml.Decode(airportsTOML, &doc); err != nil {
		return nil, fmt.Errorf("decode seed airports: %w", err)
	}
	return doc.Airports, nil
}

// Candidates picks up to limit aircraft that seat at least passengers and
// whose range covers distanceNM, smallest cabin first. When nothing covers
// the distance non-stop the largest cabins that seat the party are returned
// so the caller can flag them as exceeding range.
func Candidates(catalog []domain.Aircraft, passengers int, distanceNM float64, limit int) []domain.Aircraft {
	var fits, seats []domain.Aircraft
	for _, a := range catalog {
		if a.MaxPassengers < passengers {
			continue
		}
		seats = append(seats, a)
		if float64(a.RangeNM) >= distanceNM {
			fits = append(fits, a)
		}
	}

	out := fits
	if len(out) == 0 {
		out = seats
		sort.SliceStable(out, func(i, j int) bool { return out[i].RangeNM > out[j].RangeNM })
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FindAircraft returns the catalog entry whose type matches name, ignoring case.
func FindAircraft(catalog []domain.Aircraft, name string) (domain.Aircraft, bool) {
	for _, a := range catalog {
		if strings.EqualFold(a.Type, strings.TrimSpace(name)) {
			return a, true
		}
	}
	return domain.Aircraft{}, false
}
