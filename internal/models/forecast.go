package models

import "encoding/json"

// Forecast is the presentation view of a weatherstack "current" response.
// Raw holds the upstream body exactly as cached.
type Forecast struct {
	Zipcode   string          `json:"zipcode"`
	FromCache bool            `json:"fromCache"`
	Request   Request         `json:"request"`
	Location  Location        `json:"location"`
	Current   Current         `json:"current"`
	Raw       json.RawMessage `json:"-"`
}

type Request struct {
	Type     string `json:"type"`
	Query    string `json:"query"`
	Language string `json:"language"`
	Unit     string `json:"unit"`
}

type Location struct {
	Name           string `json:"name"`
	Country        string `json:"country"`
	Region         string `json:"region"`
	Lat            string `json:"lat"`
	Lon            string `json:"lon"`
	TimezoneID     string `json:"timezone_id"`
	Localtime      string `json:"localtime"`
	LocaltimeEpoch int64  `json:"localtime_epoch"`
	UTCOffset      string `json:"utc_offset"`
}

type Current struct {
	ObservationTime     string   `json:"observation_time"`
	Temperature         float64  `json:"temperature"`
	WeatherCode         int      `json:"weather_code"`
	WeatherIcons        []string `json:"weather_icons"`
	WeatherDescriptions []string `json:"weather_descriptions"`
	WindSpeed           float64  `json:"wind_speed"`
	WindDegree          int      `json:"wind_degree"`
	WindDir             string   `json:"wind_dir"`
	Pressure            float64  `json:"pressure"`
	Precip              float64  `json:"precip"`
	Humidity            int      `json:"humidity"`
	Cloudcover          int      `json:"cloudcover"`
	FeelsLike           float64  `json:"feelslike"`
	UVIndex             int      `json:"uv_index"`
	Visibility          float64  `json:"visibility"`
	IsDay               string   `json:"is_day"`
}

// Description returns the first weather description, or "" when none.
func (c Current) Description() string {
	if len(c.WeatherDescriptions) == 0 {
		return ""
	}
	return c.WeatherDescriptions[0]
}
