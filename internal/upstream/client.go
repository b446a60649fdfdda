// Package upstream is the one-shot HTTPS client for the remote railway
// reservation API (Component A, spec.md §4.A). It owns the status-code
// to error-kind mapping and nothing else: retries live in the
// scheduler's retry envelope, not here (except the single 5xx retry
// spec.md §4.A mandates at this layer).
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/http2"
)

const (
	defaultBaseURL = "https://railspaapi.shohoz.com/v1.0/web"
	callTimeout    = 10 * time.Second
)

// Client is the shared HTTPS client for both upstream calls. A single
// Client is safe for concurrent use by many goroutines — the matrix
// engine's fan-out (up to 10 at once, SPEC_FULL.md §4.C) and the
// scheduler's own dispatch both share one instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New builds a Client with the connection-reuse tuned transport the
// teacher's load-test engine configures for its own workers, sized here
// for the bounded concurrency this service actually needs rather than
// an attacker's worker count (attacker.Engine.Attack, SPEC_FULL.md §4.A).
func New() *Client {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{},
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 32,
		MaxConnsPerHost:     32,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	_ = http2.ConfigureTransport(transport) // best effort, falls back to HTTP/1.1

	return &Client{
		httpClient: &http.Client{Timeout: callTimeout, Transport: transport},
		baseURL:    defaultBaseURL,
	}
}

// WithBaseURL overrides the upstream base URL, for tests against an
// httptest.Server.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

// TrainRouteData is the decoded `data` object from the train-routes call.
type TrainRouteData struct {
	TrainName     string          `json:"train_name"`
	Days          []string        `json:"days"`
	TotalDuration string          `json:"total_duration"`
	Routes        []routeStopWire `json:"routes"`
}

type routeStopWire struct {
	City          string      `json:"city"`
	ArrivalTime   string      `json:"arrival_time"`
	DepartureTime string      `json:"departure_time"`
	Halt          interface{} `json:"halt"`
}

// FetchTrainData calls POST {base}/train-routes (spec.md §6).
func (c *Client) FetchTrainData(ctx context.Context, model, apiDate string) (*TrainRouteData, error) {
	body, err := json.Marshal(map[string]string{
		"model":              model,
		"departure_date_time": apiDate,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal train-routes request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/train-routes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build train-routes request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.doWithStatusMapping(req)
	if err != nil {
		return nil, err
	}

	data := gjson.GetBytes(respBody, "data")
	if !data.Exists() {
		return nil, newError(KindHTTP, "train-routes response missing data object")
	}

	var out TrainRouteData
	if err := json.Unmarshal([]byte(data.Raw), &out); err != nil {
		return nil, fmt.Errorf("decode train-routes data: %w", err)
	}

	return &out, nil
}

// TripOption is one train's pricing row from search-trips-v2.
type TripOption struct {
	TrainModel            string `json:"train_model"`
	TripNumber            string `json:"trip_number"`
	OriginCityName        string `json:"origin_city_name"`
	DestinationCityName   string `json:"destination_city_name"`
	DepartureDateTime     string `json:"departure_date_time"`
	ArrivalDateTime       string `json:"arrival_date_time"`
	TravelTime            string `json:"travel_time"`
	SeatTypes             []struct {
		Type       string  `json:"type"`
		Fare       float64 `json:"fare"`
		VATAmount  float64 `json:"vat_amount"`
		SeatCounts struct {
			Online  int `json:"online"`
			Offline int `json:"offline"`
		} `json:"seat_counts"`
	} `json:"seat_types"`
}

// Auth carries the bearer token and device key required by search-trips-v2.
type Auth struct {
	Token     string
	DeviceKey string
}

// FetchTrip calls GET {base}/bookings/search-trips-v2 (spec.md §6).
func (c *Client) FetchTrip(ctx context.Context, fromCity, toCity, journeyDate, seatClass string, auth Auth) ([]TripOption, error) {
	if seatClass == "" {
		seatClass = "SHULOV"
	}

	q := url.Values{}
	q.Set("from_city", fromCity)
	q.Set("to_city", toCity)
	q.Set("date_of_journey", journeyDate)
	q.Set("seat_class", seatClass)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/bookings/search-trips-v2?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search-trips-v2 request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+auth.Token)
	req.Header.Set("x-device-key", auth.DeviceKey)

	respBody, err := c.doWithStatusMapping(req)
	if err != nil {
		return nil, err
	}

	trains := gjson.GetBytes(respBody, "data.trains")
	if !trains.Exists() {
		return nil, nil
	}

	var out []TripOption
	if err := json.Unmarshal([]byte(trains.Raw), &out); err != nil {
		return nil, fmt.Errorf("decode search-trips-v2 data: %w", err)
	}
	return out, nil
}

// CommonTrains queries search-trips-v2 for two dates and intersects the
// results by trip number — the train-discovery helper supplemented from
// original_source/app.py's fetch_trains_for_date/get_common_trains
// (SPEC_FULL.md §7), useful for "which trains run both 8 and 9 days from
// now" style availability browsing ahead of a full matrix request.
func (c *Client) CommonTrains(ctx context.Context, fromCity, toCity, date1, date2 string, auth Auth) ([]TripOption, error) {
	day1, err := c.FetchTrip(ctx, fromCity, toCity, date1, "S_CHAIR", auth)
	if err != nil {
		return nil, err
	}
	day2, err := c.FetchTrip(ctx, fromCity, toCity, date2, "S_CHAIR", auth)
	if err != nil {
		return nil, err
	}

	byTrip := make(map[string]TripOption, len(day1))
	for _, t := range day1 {
		if t.TripNumber != "" {
			byTrip[t.TripNumber] = t
		}
	}
	common := make([]TripOption, 0, len(byTrip))
	seen := make(map[string]bool, len(day2))
	for _, t := range day2 {
		if t.TripNumber == "" || seen[t.TripNumber] {
			continue
		}
		if _, ok := byTrip[t.TripNumber]; ok {
			common = append(common, byTrip[t.TripNumber])
			seen[t.TripNumber] = true
		}
	}
	return common, nil
}

// doWithStatusMapping executes req, applying the status-to-error
// mapping table from spec.md §4.A, and returns the raw response body
// on success. Retries once on >=500 (total 2 attempts); all other
// non-2xx categories are terminal here.
func (c *Client) doWithStatusMapping(req *http.Request) ([]byte, error) {
	const maxAttempts = 2
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reqCopy := req.Clone(req.Context())
		resp, err := c.httpClient.Do(reqCopy)
		if err != nil {
			return nil, err
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read upstream response: %w", readErr)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, errRateLimited(firstErrorMessage(body))
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, classifyUnauthorized(body)
		case resp.StatusCode == http.StatusForbidden:
			return nil, errForbidden()
		case resp.StatusCode >= 500:
			lastErr = errServerUnavailable()
			continue
		default:
			return nil, errHTTP(resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))))
		}
	}

	return nil, lastErr
}

// classifyUnauthorized implements the 401 sub-mapping precedence of
// spec.md §4.A: phrase "Invalid User Access Token!" wins over "not
// authorized"/"Please login first"; anything else defaults to
// AUTH_TOKEN_EXPIRED.
func classifyUnauthorized(body []byte) error {
	messages := gjson.GetBytes(body, "error.messages").Array()
	for _, m := range messages {
		msg := m.String()
		if strings.Contains(msg, "Invalid User Access Token!") {
			return errAuthTokenExpired()
		}
	}
	for _, m := range messages {
		msg := m.String()
		if strings.Contains(msg, "not authorized") || strings.Contains(msg, "Please login first") {
			return errAuthDeviceKeyExpired()
		}
	}
	return errAuthTokenExpired()
}

func firstErrorMessage(body []byte) string {
	messages := gjson.GetBytes(body, "error.messages").Array()
	if len(messages) > 0 {
		return messages[0].String()
	}
	return ""
}
