package aviation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// AirNav queries AirNav RadarBox for live aircraft data.
type AirNav struct {
	upstream
	baseURL string
	apiKey  string
}

// NewAirNav creates the client.
func NewAirNav(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, onLimit RateLimitHook, logger *zap.Logger) *AirNav {
	return &AirNav{
		upstream: upstream{service: "airnav", httpClient: httpClient, cb: cb, onLimit: onLimit, logger: logger},
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
	}
}

type airnavResponse struct {
	Aircraft []struct {
		Registration       string    `json:"registration"`
		Callsign           string    `json:"callsign"`
		Latitude           float64   `json:"latitude"`
		Longitude          float64   `json:"longitude"`
		Altitude           int       `json:"altitude"`
		GroundSpeed        int       `json:"groundSpeed"`
		OriginAirport      string    `json:"originAirportIcao"`
		DestinationAirport string    `json:"destinationAirportIcao"`
		OnGround           bool      `json:"onGround"`
		LastSeen           time.Time `json:"lastSeen"`
	} `json:"aircraft"`
}

// LastPosition returns the most recent position report for a registration.
func (c *AirNav) LastPosition(ctx context.Context, registration string) (*domain.AircraftPosition, error) {
	ctx, span := tracer.Start(ctx, "AirNav.LastPosition")
	defer span.End()

	registration = strings.ToUpper(strings.TrimSpace(registration))
	span.SetAttributes(attribute.String("aircraft.registration", registration))

	if c.apiKey == "" {
		return nil, &domain.ErrNotConfigured{Integration: "airnav"}
	}

	endpoint := fmt.Sprintf("%s/aircraft/live?%s", c.baseURL, url.Values{"registrations": {registration}}.Encode())
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create airnav request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	var resp airnavResponse
	if err := c.getJSON(ctx, req, registration, &resp); err != nil {
		return nil, err
	}

	for _, a := range resp.Aircraft {
		if !strings.EqualFold(a.Registration, registration) {
			continue
		}
		return &domain.AircraftPosition{
			Registration: registration,
			Callsign:     a.Callsign,
			Latitude:     a.Latitude,
			Longitude:    a.Longitude,
			AltitudeFt:   a.Altitude,
			GroundSpeed:  a.GroundSpeed,
			Origin:       a.OriginAirport,
			Destination:  a.DestinationAirport,
			OnGround:     a.OnGround,
			LastSeen:     a.LastSeen,
		}, nil
	}
	return nil, &domain.ErrNotFound{Resource: "aircraft position", ID: registration}
}
