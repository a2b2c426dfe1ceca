// Package homeassistant pushes published sensor values into Home Assistant helpers
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/state"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultResponseTimeout = 10 * time.Second

// Publisher writes sensor values to input_number and input_text helpers over the websocket API.
// Sensors without a value have their helper state overwritten with "unknown" or "unavailable"
// through the REST states endpoint, since set_value cannot hold either.
// It opens one connection per Publish; refreshes are at least 30 seconds apart.
type Publisher struct {
	wsURL           string
	token           string
	logger          *zap.Logger
	dialer          *websocket.Dialer
	httpClient      *http.Client
	responseTimeout time.Duration
}

// NewPublisher creates a publisher for the given websocket URL, e.g. ws://ha:8123/api/websocket
func NewPublisher(wsURL, token string, logger *zap.Logger) *Publisher {
	return &Publisher{
		wsURL:           wsURL,
		token:           token,
		logger:          logger.Named("homeassistant"),
		dialer:          websocket.DefaultDialer,
		httpClient:      &http.Client{Timeout: defaultResponseTimeout},
		responseTimeout: defaultResponseTimeout,
	}
}

// call is one service call derived from a sensor
type call struct {
	domain   string
	entityID string
	value    interface{}
}

// stateWrite replaces a helper's state with a placeholder
type stateWrite struct {
	entityID string
	body     StateRequest
}

// helperEntityID maps a sensor onto the helper entity holding it
func helperEntityID(s state.Sensor) (string, bool) {
	switch s.Kind {
	case state.KindPower, state.KindTotalPower:
		return "input_number." + s.ID, true
	case state.KindLastUpdate:
		return "input_text." + s.ID, true
	}
	return "", false
}

// callsFor maps known sensors onto set_value calls and the rest onto placeholder state writes
func callsFor(sensors []state.Sensor) ([]call, []stateWrite) {
	var calls []call
	var writes []stateWrite
	for _, s := range sensors {
		entityID, ok := helperEntityID(s)
		if !ok {
			continue
		}
		domain, _, _ := strings.Cut(entityID, ".")

		switch {
		case s.Known() && s.Kind == state.KindLastUpdate:
			calls = append(calls, call{domain: domain, entityID: entityID, value: s.State})
		case s.Known() && s.Value != nil:
			calls = append(calls, call{domain: domain, entityID: entityID, value: *s.Value})
		default:
			placeholder := s.State
			if s.Known() {
				placeholder = state.StateUnknown
			}
			attrs := map[string]any{"friendly_name": s.Name}
			if s.Unit != "" {
				attrs["unit_of_measurement"] = s.Unit
			}
			writes = append(writes, stateWrite{entityID: entityID, body: StateRequest{State: placeholder, Attributes: attrs}})
		}
	}
	return calls, writes
}

// Publish pushes every sensor. Known values go through set_value; the rest are written as
// placeholder states so Home Assistant never keeps a stale number. It stops at the first failure.
func (p *Publisher) Publish(ctx context.Context, sensors []state.Sensor) error {
	calls, writes := callsFor(sensors)

	if err := p.callServices(ctx, calls); err != nil {
		return err
	}
	if err := p.writeStates(ctx, writes); err != nil {
		return err
	}

	p.logger.Info("Published sensor values to Home Assistant",
		zap.Int("entities", len(calls)), zap.Int("placeholders", len(writes)))
	return nil
}

func (p *Publisher) callServices(ctx context.Context, calls []call) error {
	if len(calls) == 0 {
		p.logger.Debug("No known sensor values to publish")
		return nil
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	// unblock reads when the caller gives up
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	for i, c := range calls {
		if err := ctx.Err(); err != nil {
			return err
		}
		req := &CallServiceRequest{
			ID:          i + 1,
			Type:        "call_service",
			Domain:      c.domain,
			Service:     "set_value",
			ServiceData: map[string]interface{}{"value": c.value},
			Target:      &ServiceTarget{EntityID: []string{c.entityID}},
		}
		if err := p.roundTrip(conn, req); err != nil {
			return fmt.Errorf("failed to set %s: %w", c.entityID, err)
		}
	}
	return nil
}

// writeStates posts placeholder states to /api/states/<entity_id>
func (p *Publisher) writeStates(ctx context.Context, writes []stateWrite) error {
	if len(writes) == 0 {
		return nil
	}
	base, err := restBaseURL(p.wsURL)
	if err != nil {
		return err
	}

	for _, w := range writes {
		payload, err := json.Marshal(w.body)
		if err != nil {
			return fmt.Errorf("failed to encode state for %s: %w", w.entityID, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/states/"+w.entityID, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build state request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+p.token)
		req.Header.Set("Content-Type", "application/json")

		res, err := p.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to write state of %s: %w", w.entityID, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
			return fmt.Errorf("failed to write state of %s: unexpected status code: %d", w.entityID, res.StatusCode)
		}
	}
	return nil
}

// restBaseURL derives the REST root from the websocket URL, e.g. ws://ha:8123/api/websocket -> http://ha:8123
func restBaseURL(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("invalid Home Assistant url %q: %w", wsURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/api/websocket")
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/"), nil
}

func (p *Publisher) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := p.dialer.DialContext(ctx, p.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(p.responseTimeout))

	var authRequired Message
	if err := conn.ReadJSON(&authRequired); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read auth_required: %w", err)
	}
	if authRequired.Type != "auth_required" {
		conn.Close()
		return nil, fmt.Errorf("expected auth_required, got %s", authRequired.Type)
	}

	if err := conn.WriteJSON(AuthMessage{Type: "auth", AccessToken: p.token}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send auth: %w", err)
	}

	var authResponse Message
	if err := conn.ReadJSON(&authResponse); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read auth response: %w", err)
	}
	switch authResponse.Type {
	case "auth_ok":
	case "auth_invalid":
		conn.Close()
		return nil, errors.New("authentication failed: invalid token")
	default:
		conn.Close()
		return nil, fmt.Errorf("expected auth_ok, got %s", authResponse.Type)
	}

	return conn, nil
}

// roundTrip sends one request and waits for its result, skipping unrelated messages
func (p *Publisher) roundTrip(conn *websocket.Conn, req *CallServiceRequest) error {
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(p.responseTimeout))
	for {
		var resp Message
		if err := conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.ID != req.ID {
			continue
		}
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return fmt.Errorf("HA error: %s - %s", resp.Error.Code, resp.Error.Message)
			}
			return errors.New("request failed")
		}
		return nil
	}
}
