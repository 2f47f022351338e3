package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"
)

const openWeatherAPI = "https://api.openweathermap.org/data/2.5"

// fallbackWeather is the static substitute served when OpenWeather is
// unreachable or disabled.
var fallbackWeather = json.RawMessage(`{"temp":33,"feels_like":33,"humidity":45,"rain":0,"wind":5,"icon":"01d","desc":"Sunny"}`)

// Weather fetches current conditions from OpenWeather (metric).
type Weather struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewWeather creates the weather provider. baseURL may be empty to use the
// public OpenWeather endpoint.
func NewWeather(apiKey, baseURL string, client *http.Client) *Weather {
	if baseURL == "" {
		baseURL = openWeatherAPI
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Weather{APIKey: apiKey, BaseURL: baseURL, Client: client}
}

// Name implements Provider.
func (w *Weather) Name() string { return "weather" }

// Fallback implements Provider.
func (w *Weather) Fallback() json.RawMessage { return fallbackWeather }

type weatherValue struct {
	Temp      int     `json:"temp"`
	FeelsLike int     `json:"feels_like"`
	Humidity  int     `json:"humidity"`
	Rain      float64 `json:"rain"`
	Wind      float64 `json:"wind"`
	Icon      string  `json:"icon"`
	Desc      string  `json:"desc"`
}

type owCurrent struct {
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Weather []struct {
		Icon        string `json:"icon"`
		Description string `json:"description"`
	} `json:"weather"`
}

// Fetch implements Provider.
func (w *Weather) Fetch(ctx context.Context, p Params) (json.RawMessage, error) {
	var cur owCurrent
	if err := w.getJSON(ctx, "/weather", p.City, &cur); err != nil {
		return nil, err
	}
	if len(cur.Weather) == 0 {
		return nil, fmt.Errorf("weather: empty conditions for %q", p.City)
	}
	v := weatherValue{
		Temp:      int(math.Round(cur.Main.Temp)),
		FeelsLike: int(math.Round(cur.Main.FeelsLike)),
		Humidity:  cur.Main.Humidity,
		Rain:      cur.Rain.OneHour,
		Wind:      math.Round(cur.Wind.Speed*10) / 10,
		Icon:      cur.Weather[0].Icon,
		Desc:      titleCase(cur.Weather[0].Description),
	}
	return json.Marshal(v)
}

func (w *Weather) getJSON(ctx context.Context, path, city string, out any) error {
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", w.APIKey)
	q.Set("units", "metric")
	q.Set("lang", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("weather: build request: %w", err)
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather: upstream status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("weather: decode: %w", err)
	}
	return nil
}

// Forecast fetches the next-days outlook from the OpenWeather 5-day/3h
// endpoint, collapsed to one min/max entry per day. Today is skipped; the
// weather provider already covers it.
type Forecast struct {
	APIKey  string
	BaseURL string
	Days    int
	Client  *http.Client
	now     func() time.Time
}

// NewForecast creates the forecast provider for the next `days` days.
func NewForecast(apiKey, baseURL string, days int, client *http.Client) *Forecast {
	if baseURL == "" {
		baseURL = openWeatherAPI
	}
	if client == nil {
		client = http.DefaultClient
	}
	if days <= 0 {
		days = 2
	}
	return &Forecast{APIKey: apiKey, BaseURL: baseURL, Days: days, Client: client, now: time.Now}
}

// Name implements Provider.
func (f *Forecast) Name() string { return "forecast" }

// Fallback implements Provider. An empty outlook renders as "no forecast".
func (f *Forecast) Fallback() json.RawMessage { return json.RawMessage(`[]`) }

type forecastDay struct {
	Date string `json:"date"`
	TMin int    `json:"tmin"`
	TMax int    `json:"tmax"`
	Desc string `json:"desc"`
	Icon string `json:"icon"`
}

type owForecast struct {
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Icon        string `json:"icon"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
}

// Fetch implements Provider.
func (f *Forecast) Fetch(ctx context.Context, p Params) (json.RawMessage, error) {
	w := Weather{APIKey: f.APIKey, BaseURL: f.BaseURL, Client: f.Client}
	var raw owForecast
	if err := w.getJSON(ctx, "/forecast", p.City, &raw); err != nil {
		return nil, err
	}

	today := f.now().Format("2006-01-02")
	type slot struct {
		temp float64
		desc string
		icon string
	}
	perDay := map[string][]slot{}
	for _, item := range raw.List {
		date, _, found := cutSpace(item.DtTxt)
		if !found || date == today || len(item.Weather) == 0 {
			continue
		}
		perDay[date] = append(perDay[date], slot{
			temp: item.Main.Temp,
			desc: titleCase(item.Weather[0].Description),
			icon: item.Weather[0].Icon,
		})
	}

	out := make([]forecastDay, 0, len(perDay))
	for date, slots := range perDay {
		tmin, tmax := slots[0].temp, slots[0].temp
		for _, s := range slots[1:] {
			tmin = math.Min(tmin, s.temp)
			tmax = math.Max(tmax, s.temp)
		}
		mid := slots[len(slots)/2]
		out = append(out, forecastDay{
			Date: date,
			TMin: int(math.Round(tmin)),
			TMax: int(math.Round(tmax)),
			Desc: mid.desc,
			Icon: mid.icon,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	if len(out) > f.Days {
		out = out[:f.Days]
	}
	return json.Marshal(out)
}

// cutSpace splits "2006-01-02 15:00:00" into date and time.
func cutSpace(s string) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// titleCase capitalizes the first letter of each space-separated word.
// OpenWeather descriptions arrive all-lowercase.
func titleCase(s string) string {
	b := []byte(s)
	up := true
	for i := 0; i < len(b); i++ {
		if up && b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
		up = b[i] == ' '
	}
	return string(b)
}
