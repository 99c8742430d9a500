package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/tidwall/gjson"
)

type WeatherInput struct {
	City string `json:"city" jsonschema_description:"Name of the city to look up."`
}

const defaultWeatherBaseURL = "https://wttr.in"

// WeatherProvider fetches current conditions from the wttr.in JSON endpoint.
// No API key required.
type WeatherProvider struct {
	BaseURL string
	Client  *http.Client
}

func NewWeatherProvider() *WeatherProvider {
	base := os.Getenv("WTTR_BASE_URL")
	if base == "" {
		base = defaultWeatherBaseURL
	}
	return &WeatherProvider{
		BaseURL: base,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func NewWeatherTool(provider *WeatherProvider) ToolDefinition {
	return ToolDefinition{
		Name:        "get_weather",
		Description: "Get current weather for a city.",
		InputSchema: GenerateSchema[WeatherInput](),
		Handler: func(ctx context.Context, input json.RawMessage) (map[string]any, error) {
			var in WeatherInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("invalid get_weather input: %w", err)
			}
			return provider.Invoke(ctx, in), nil
		},
	}
}

// Invoke looks up current conditions for a city. Provider failures are domain
// errors and come back as an {"error": ...} mapping, keeping the server
// serving regardless of upstream weather.
func (p *WeatherProvider) Invoke(ctx context.Context, in WeatherInput) map[string]any {
	endpoint := fmt.Sprintf("%s/%s?format=j1", p.BaseURL, url.PathEscape(in.City))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("weather API error: %v", err)}
	}

	response, err := p.Client.Do(request)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("weather API error: %v", err)}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return map[string]any{"error": fmt.Sprintf("could not fetch weather for %s", in.City)}
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("weather API error: %v", err)}
	}

	current := gjson.GetBytes(body, "current_condition.0")
	area := gjson.GetBytes(body, "nearest_area.0")
	if !current.Exists() {
		return map[string]any{"error": fmt.Sprintf("could not fetch weather for %s", in.City)}
	}

	return map[string]any{
		"location": fmt.Sprintf("%s, %s",
			area.Get("areaName.0.value").String(),
			area.Get("country.0.value").String()),
		"temperature": fmt.Sprintf("%s°C / %s°F",
			current.Get("temp_C").String(),
			current.Get("temp_F").String()),
		"condition":  current.Get("weatherDesc.0.value").String(),
		"humidity":   current.Get("humidity").String() + "%",
		"wind":       current.Get("windspeedKmph").String() + " km/h",
		"feels_like": current.Get("FeelsLikeC").String() + "°C",
	}
}
