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

// Aviapages lists charter operator fleets.
type Aviapages struct {
	upstream
	baseURL string
	token   string
	now     func() time.Time
}

// NewAviapages creates the client.
func NewAviapages(httpClient *http.Client, baseURL, token string, cb *gobreaker.CircuitBreaker, onLimit RateLimitHook, logger *zap.Logger) *Aviapages {
	return &Aviapages{
		upstream: upstream{service: "aviapages", httpClient: httpClient, cb: cb, onLimit: onLimit, logger: logger},
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		now:      time.Now,
	}
}

type aviapagesPage struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []struct {
		TailNumber       string `json:"tail_number"`
		YearOfProduction int    `json:"year_of_production"`
		PassengersMax    int    `json:"passengers_max"`
		AircraftType     struct {
			Name string `json:"name"`
		} `json:"aircraft_type"`
		HomeBase struct {
			ICAO string `json:"icao"`
		} `json:"home_base"`
	} `json:"results"`
}

// maxFleetPages bounds pagination for very large operators.
const maxFleetPages = 10

// OperatorFleet returns the aircraft Aviapages lists for an operator name.
func (c *Aviapages) OperatorFleet(ctx context.Context, operatorName string) ([]domain.AircraftLocation, error) {
	ctx, span := tracer.Start(ctx, "Aviapages.OperatorFleet")
	defer span.End()
	span.SetAttributes(attribute.String("operator.name", operatorName))

	if c.token == "" {
		return nil, &domain.ErrNotConfigured{Integration: "aviapages"}
	}

	endpoint := fmt.Sprintf("%s/aircraft/?%s", c.baseURL, url.Values{
		"operator":  {operatorName},
		"page_size": {"100"},
	}.Encode())

	fleet := []domain.AircraftLocation{}
	for page := 0; endpoint != "" && page < maxFleetPages; page++ {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create aviapages request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+c.token)

		var p aviapagesPage
		if err := c.getJSON(ctx, req, "", &p); err != nil {
			return nil, err
		}
		for _, r := range p.Results {
			if r.TailNumber == "" {
				continue
			}
			fleet = append(fleet, domain.AircraftLocation{
				Registration: strings.ToUpper(r.TailNumber),
				AircraftType: r.AircraftType.Name,
				HomeBase:     r.HomeBase.ICAO,
				YearOfMake:   r.YearOfProduction,
				Seats:        r.PassengersMax,
				UpdatedAt:    c.now().UTC(),
			})
		}
		endpoint = p.Next
	}

	c.logger.Info("aviapages fleet fetched",
		zap.String("operator", operatorName),
		zap.Int("aircraft", len(fleet)),
	)
	return fleet, nil
}
