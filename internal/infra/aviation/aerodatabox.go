package aviation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// AeroDataBox talks to the RapidAPI-hosted AeroDataBox API.
type AeroDataBox struct {
	upstream
	baseURL string
	host    string
	apiKey  string
}

// NewAeroDataBox creates the client. baseURL defaults to https://{host}.
func NewAeroDataBox(httpClient *http.Client, host, apiKey, baseURL string, cb *gobreaker.CircuitBreaker, onLimit RateLimitHook, logger *zap.Logger) *AeroDataBox {
	if baseURL == "" {
		baseURL = "https://" + host
	}
	return &AeroDataBox{
		upstream: upstream{service: "aerodatabox", httpClient: httpClient, cb: cb, onLimit: onLimit, logger: logger},
		baseURL:  strings.TrimRight(baseURL, "/"),
		host:     host,
		apiKey:   apiKey,
	}
}

func (c *AeroDataBox) newRequest(path string, params url.Values) (*http.Request, error) {
	if c.apiKey == "" {
		return nil, &domain.ErrNotConfigured{Integration: "aerodatabox"}
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create aerodatabox request: %w", err)
	}
	req.Header.Set("x-rapidapi-host", c.host)
	req.Header.Set("x-rapidapi-key", c.apiKey)
	return req, nil
}

// codeType picks the AeroDataBox code family from the code length.
func codeType(code string) string {
	if len(code) == 3 {
		return "iata"
	}
	return "icao"
}

type adbAirport struct {
	ICAO             string `json:"icao"`
	IATA             string `json:"iata"`
	ShortName        string `json:"shortName"`
	FullName         string `json:"fullName"`
	MunicipalityName string `json:"municipalityName"`
	Location         struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"location"`
	Country struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"country"`
	Runways []struct {
		Length struct {
			Feet float64 `json:"feet"`
		} `json:"length"`
	} `json:"runways"`
}

// LookupAirport resolves an ICAO (4 letters) or IATA (3 letters) code.
func (c *AeroDataBox) LookupAirport(ctx context.Context, code string) (*domain.Airport, error) {
	ctx, span := tracer.Start(ctx, "AeroDataBox.LookupAirport")
	defer span.End()

	code = strings.ToUpper(strings.TrimSpace(code))
	span.SetAttributes(attribute.String("airport.code", code))

	req, err := c.newRequest(fmt.Sprintf("/airports/%s/%s", codeType(code), url.PathEscape(code)),
		url.Values{"withRunways": {"true"}})
	if err != nil {
		return nil, err
	}

	var a adbAirport
	if err := c.getJSON(ctx, req, code, &a); err != nil {
		return nil, err
	}
	if a.ICAO == "" && a.IATA == "" {
		return nil, &domain.ErrNotFound{Resource: "airport", ID: code}
	}

	name := a.FullName
	if name == "" {
		name = a.ShortName
	}
	out := &domain.Airport{
		ICAO:      a.ICAO,
		IATA:      a.IATA,
		Name:      name,
		City:      a.MunicipalityName,
		Country:   a.Country.Code,
		Latitude:  a.Location.Lat,
		Longitude: a.Location.Lon,
	}
	for _, r := range a.Runways {
		if ft := int(r.Length.Feet); ft > out.RunwayLength {
			out.RunwayLength = ft
		}
	}
	return out, nil
}

type adbDistanceTime struct {
	ApproxFlightTime string `json:"approxFlightTime"` // "hh:mm:ss"
}

// FlightTimeMinutes asks for the modelled flight time of an aircraft type.
func (c *AeroDataBox) FlightTimeMinutes(ctx context.Context, from, to, aircraftType string) (int, error) {
	ctx, span := tracer.Start(ctx, "AeroDataBox.FlightTimeMinutes")
	defer span.End()
	span.SetAttributes(attribute.String("aircraft.type", aircraftType))

	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	params := url.Values{"flightTimeModel": {"ML01"}}
	if aircraftType != "" {
		params.Set("aircraftName", aircraftType)
	}
	req, err := c.newRequest(
		fmt.Sprintf("/airports/%s/%s/distance-time/%s", codeType(from), url.PathEscape(from), url.PathEscape(to)), params)
	if err != nil {
		return 0, err
	}

	var dt adbDistanceTime
	if err := c.getJSON(ctx, req, from+"-"+to, &dt); err != nil {
		return 0, err
	}
	minutes, err := parseClock(dt.ApproxFlightTime)
	if err != nil {
		return 0, &domain.ErrExternalService{Service: "aerodatabox", Err: err}
	}
	return minutes, nil
}

// parseClock turns "hh:mm:ss" into whole minutes, rounding seconds up.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("unexpected flight time %q", s)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("unexpected flight time %q", s)
		}
		nums[i] = n
	}
	minutes := nums[0]*60 + nums[1]
	if len(nums) == 3 && nums[2] > 0 {
		minutes++
	}
	return minutes, nil
}
