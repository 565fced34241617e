package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Open-Meteo needs no API key, which suits a personal agent.
const (
	defaultGeocodeEndpoint  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastEndpoint = "https://api.open-meteo.com/v1/forecast"
)

// WeatherClient implements the geocode and current_conditions tools.
type WeatherClient struct {
	client           *http.Client
	geocodeEndpoint  string
	forecastEndpoint string
}

// NewWeatherClient creates a weather client.
func NewWeatherClient(client *http.Client) *WeatherClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WeatherClient{
		client:           client,
		geocodeEndpoint:  defaultGeocodeEndpoint,
		forecastEndpoint: defaultForecastEndpoint,
	}
}

// SetEndpoints overrides the upstream endpoints (used in tests).
func (w *WeatherClient) SetEndpoints(geocode, forecast string) {
	w.geocodeEndpoint = geocode
	w.forecastEndpoint = forecast
}

// Location is a resolved place name.
type Location struct {
	Name      string
	Country   string
	Latitude  float64
	Longitude float64
}

// Conditions is a current-weather reading.
type Conditions struct {
	TemperatureC float64
	WindSpeedKmh float64
	Description  string
}

// Geocode resolves a place name to coordinates.
func (w *WeatherClient) Geocode(ctx context.Context, place string) (*Location, error) {
	q := url.Values{"name": {place}, "count": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.geocodeEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", place, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode %q: status %d", place, resp.StatusCode)
	}

	var out struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(out.Results) == 0 {
		return nil, fmt.Errorf("no location found for %q", place)
	}

	r := out.Results[0]
	return &Location{Name: r.Name, Country: r.Country, Latitude: r.Latitude, Longitude: r.Longitude}, nil
}

// CurrentConditions reads current weather at the given coordinates.
func (w *WeatherClient) CurrentConditions(ctx context.Context, lat, lon float64) (*Conditions, error) {
	q := url.Values{
		"latitude":  {fmt.Sprintf("%g", lat)},
		"longitude": {fmt.Sprintf("%g", lon)},
		"current":   {"temperature_2m,wind_speed_10m,weather_code"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.forecastEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("conditions at %g,%g: %w", lat, lon, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("conditions at %g,%g: status %d", lat, lon, resp.StatusCode)
	}

	var out struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			WindSpeed   float64 `json:"wind_speed_10m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode forecast response: %w", err)
	}

	return &Conditions{
		TemperatureC: out.Current.Temperature,
		WindSpeedKmh: out.Current.WindSpeed,
		Description:  describeWeatherCode(out.Current.WeatherCode),
	}, nil
}

// Register adds the weather tools to a registry.
func (w *WeatherClient) Register(r *Registry) {
	r.Register(&Func{
		ToolName: "geocode",
		Doc:      "resolve a place name to coordinates; args: {\"location\": \"Paris\"}",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			place := StringArg(args, "location")
			if place == "" {
				place = StringArg(args, "query")
			}
			loc, err := w.Geocode(ctx, place)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s, %s (lat=%g, lon=%g)", loc.Name, loc.Country, loc.Latitude, loc.Longitude), nil
		},
	})
	r.Register(&Func{
		ToolName: "current_conditions",
		Doc:      "current weather at coordinates; args: {\"lat\": 48.85, \"lon\": 2.35}",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			lat, ok1 := FloatArg(args, "lat")
			lon, ok2 := FloatArg(args, "lon")
			if !ok1 || !ok2 {
				return "", fmt.Errorf("current_conditions requires numeric lat and lon")
			}
			c, err := w.CurrentConditions(ctx, lat, lon)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s, %.1f°C, wind %.0f km/h", c.Description, c.TemperatureC, c.WindSpeedKmh), nil
		},
	})
}

// describeWeatherCode maps WMO weather codes to short descriptions.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
