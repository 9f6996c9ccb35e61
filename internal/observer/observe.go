// Package observer is a client for the simulation's HTTP API. It polls status and
// readings, and follows the websocket stream of ticks.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Status mirrors GET /api/v1/status.
type Status struct {
	Name        string  `json:"name"`
	RunID       string  `json:"run_id"`
	Tick        uint64  `json:"tick"`
	SimTime     string  `json:"sim_time"`
	Agents      int     `json:"agents"`
	Households  int     `json:"households"`
	Firms       int     `json:"firms"`
	MoneySupply float64 `json:"money_supply"`
	Inflation   float64 `json:"inflation"`
	Defaults    float64 `json:"defaults"`
	Speed       float64 `json:"speed"`
	Running     bool    `json:"running"`
	MaxTicks    uint64  `json:"max_ticks"`
}

// Tick mirrors one streamed "tick" message payload, and GET /api/v1/readings.
type Tick struct {
	Tick     uint64             `json:"tick"`
	Time     string             `json:"time"`
	Readings map[string]float64 `json:"readings"`
	Events   []Event            `json:"events"`
}

// Event mirrors a journal entry.
type Event struct {
	Tick        uint64 `json:"tick"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Observer fetches simulation state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Dialer: websocket.DefaultDialer,
	}
}

// Status fetches GET /api/v1/status.
func (o *Observer) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := o.fetchJSON(ctx, "/api/v1/status", &st); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	return &st, nil
}

// Readings fetches the latest tick's readings.
func (o *Observer) Readings(ctx context.Context) (*Tick, error) {
	var t Tick
	if err := o.fetchJSON(ctx, "/api/v1/readings", &t); err != nil {
		return nil, fmt.Errorf("fetch readings: %w", err)
	}
	return &t, nil
}

// WaitReady polls the status endpoint with exponential backoff until it answers
// or ctx is done.
func (o *Observer) WaitReady(ctx context.Context) error {
	backoff := 250 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		_, err := o.Status(ctx)
		if err == nil {
			slog.Info("simulation API is ready", "url", o.BaseURL)
			return nil
		}
		slog.Debug("simulation API not ready, retrying", "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", o.BaseURL, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Stream follows the websocket stream, calling fn for every tick until ctx is done,
// the server closes the stream, or fn returns an error.
func (o *Observer) Stream(ctx context.Context, fn func(Tick) error) error {
	u, err := url.Parse(o.BaseURL + "/api/v1/stream")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := o.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if msg.Type != "tick" {
			continue
		}
		var t Tick
		if err := json.Unmarshal(msg.Payload, &t); err != nil {
			return fmt.Errorf("decode tick: %w", err)
		}
		if err := fn(t); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

// ErrStop may be returned by a Stream callback to end the stream without error.
var ErrStop = errors.New("stop stream")

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
