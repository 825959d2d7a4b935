// Package remote implements the engine contract against a game server over
// HTTP and WebSocket: the server adjudicates orders and advances phases; this
// client reads snapshots, submits orders, and waits for phase transitions.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/engine"
	"github.com/freeeve/parley/internal/model"
)

// wsEvent mirrors the server's WebSocket event envelope.
type wsEvent struct {
	Type   string         `json:"type"`
	GameID string         `json:"game_id"`
	Data   map[string]any `json:"data"`
}

// wireState is the server's phase state document.
type wireState struct {
	Year        int                 `json:"year"`
	Season      string              `json:"season"`
	Phase       string              `json:"phase"`
	Units       map[string][]string `json:"units"`
	Centers     map[string][]string `json:"supply_centers"`
	Dislodged   map[string][]string `json:"dislodged,omitempty"`
	LegalOrders map[string][]string `json:"legal_orders,omitempty"`
	GameOver    bool                `json:"game_over"`
}

// Client is an HTTP+WebSocket rules-engine adapter for one game.
type Client struct {
	name      string
	baseURL   string
	gameID    string
	turnWait  time.Duration
	httpC     *http.Client

	token    string
	tokenExp time.Time

	wsConn   *websocket.Conn
	events   chan wsEvent
	wsMu     sync.Mutex
	closedWS bool

	mu      sync.Mutex
	state   *wireState
	powers  []model.Power
	pending map[model.Power][]model.Order
	done    bool
}

// Option configures a Client.
type Option func(*Client)

// WithTurnWait sets how long Advance waits for the server's phase
// transition before giving up.
func WithTurnWait(d time.Duration) Option {
	return func(c *Client) { c.turnWait = d }
}

// NewClient creates a client, authenticates, and attaches to the game.
func NewClient(name, baseURL, gameID string, opts ...Option) (*Client, error) {
	c := &Client{
		name:     name,
		baseURL:  strings.TrimRight(baseURL, "/"),
		gameID:   gameID,
		turnWait: 5 * time.Minute,
		httpC:    &http.Client{Timeout: 30 * time.Second},
		events:   make(chan wsEvent, 64),
		pending:  make(map[model.Power][]model.Order),
	}
	for _, o := range opts {
		o(c)
	}

	if err := c.login(); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := c.connectWS(); err != nil {
		return nil, fmt.Errorf("ws connect: %w", err)
	}
	if err := c.refresh(context.Background()); err != nil {
		return nil, fmt.Errorf("initial phase fetch: %w", err)
	}
	return c, nil
}

// login authenticates via the dev login endpoint and records the token's
// expiry so it can be refreshed before it lapses.
func (c *Client) login() error {
	resp, err := c.httpC.Get(c.baseURL + "/auth/dev?name=" + url.QueryEscape(c.name))
	if err != nil {
		return fmt.Errorf("dev login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dev login status %d: %s", resp.StatusCode, body)
	}

	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("decode tokens: %w", err)
	}
	c.token = tokens.AccessToken
	c.tokenExp = tokenExpiry(c.token)

	log.Debug().Str("name", c.name).Time("tokenExp", c.tokenExp).Msg("Engine client logged in")
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server verifies, we only need to know when to re-login.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// ensureAuth re-logins when the token is within a minute of expiry.
func (c *Client) ensureAuth() error {
	if c.tokenExp.IsZero() || time.Until(c.tokenExp) > time.Minute {
		return nil
	}
	return c.login()
}

func (c *Client) connectWS() error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/v1/ws?token=" + url.QueryEscape(c.token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	c.wsConn = conn

	sub := map[string]string{"action": "subscribe", "game_id": c.gameID}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("ws subscribe: %w", err)
	}

	go c.readWSLoop()
	return nil
}

func (c *Client) readWSLoop() {
	defer close(c.events)
	for {
		_, msg, err := c.wsConn.ReadMessage()
		if err != nil {
			if !c.closedWS {
				log.Debug().Err(err).Msg("WS read error")
			}
			return
		}
		var event wsEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			continue
		}
		c.events <- event
	}
}

// refresh fetches the current phase document and caches its state.
func (c *Client) refresh(ctx context.Context) error {
	phase, err := c.getJSON(ctx, "/api/v1/games/"+c.gameID+"/phases/current")
	if err != nil {
		return err
	}

	stateRaw, ok := phase["state_before"]
	if !ok {
		return fmt.Errorf("phase missing state_before")
	}
	stateJSON, err := json.Marshal(stateRaw)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	var ws wireState
	if err := json.Unmarshal(stateJSON, &ws); err != nil {
		return fmt.Errorf("unmarshal state: %w", err)
	}

	c.mu.Lock()
	c.state = &ws
	c.powers = c.powers[:0]
	for p := range ws.Units {
		c.powers = append(c.powers, model.Power(p))
	}
	for p := range ws.Centers {
		if _, ok := ws.Units[p]; !ok {
			c.powers = append(c.powers, model.Power(p))
		}
	}
	sort.Slice(c.powers, func(i, j int) bool { return c.powers[i] < c.powers[j] })
	c.pending = make(map[model.Power][]model.Order)
	if ws.GameOver {
		c.done = true
	}
	c.mu.Unlock()
	return nil
}

// phaseName renders the compact phase identifier, e.g. "S1901M".
func phaseName(s *wireState) string {
	season := "S"
	switch s.Season {
	case "fall":
		season = "F"
	case "winter":
		season = "W"
	}
	kind := "M"
	switch s.Phase {
	case "retreat":
		kind = "R"
	case "build":
		kind = "B"
	}
	return fmt.Sprintf("%s%d%s", season, s.Year, kind)
}

func phaseKind(s string) model.PhaseKind {
	switch s {
	case "movement":
		return model.PhaseMovement
	case "retreat":
		return model.PhaseRetreat
	case "build":
		return model.PhaseBuild
	}
	// Unrecognized phase codes surface as-is so the orchestrator can apply
	// its inconsistency handling.
	return model.PhaseKind(s)
}

// CurrentPhase returns the engine's current phase identity.
func (c *Client) CurrentPhase(ctx context.Context) (engine.PhaseInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return engine.PhaseInfo{}, fmt.Errorf("no phase state")
	}
	return engine.PhaseInfo{
		Name:   phaseName(c.state),
		Kind:   phaseKind(c.state.Phase),
		Year:   c.state.Year,
		Season: model.Season(c.state.Season),
	}, nil
}

// Powers lists the powers present in the game state.
func (c *Client) Powers(ctx context.Context) ([]model.Power, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Power(nil), c.powers...), nil
}

// IsEliminated reports whether a power has neither units nor centers.
func (c *Client) IsEliminated(ctx context.Context, p model.Power) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return false, fmt.Errorf("no phase state")
	}
	return len(c.state.Units[string(p)]) == 0 && len(c.state.Centers[string(p)]) == 0, nil
}

// Snapshot builds a fresh immutable snapshot of the current phase.
func (c *Client) Snapshot(ctx context.Context) (*model.PhaseSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return nil, fmt.Errorf("no phase state")
	}
	s := c.state

	snap := &model.PhaseSnapshot{
		Name:       phaseName(s),
		Year:       s.Year,
		Season:     model.Season(s.Season),
		Kind:       phaseKind(s.Phase),
		Powers:     append([]model.Power(nil), c.powers...),
		Eliminated: make(map[model.Power]bool),
		Units:      make(map[model.Power][]string),
		Centers:    make(map[model.Power][]string),
		GameOver:   s.GameOver,
	}
	for _, p := range c.powers {
		snap.Units[p] = append([]string(nil), s.Units[string(p)]...)
		snap.Centers[p] = append([]string(nil), s.Centers[string(p)]...)
		snap.Eliminated[p] = len(snap.Units[p]) == 0 && len(snap.Centers[p]) == 0
	}
	if len(s.LegalOrders) > 0 {
		snap.OrderMenu = make(map[model.Power][]model.Order)
		for p, orders := range s.LegalOrders {
			menu := make([]model.Order, len(orders))
			for i, o := range orders {
				menu[i] = model.Order(o)
			}
			snap.OrderMenu[model.Power(p)] = menu
		}
	}
	return snap, nil
}

// SetOrders stages a power's orders for submission on Advance.
func (c *Client) SetOrders(ctx context.Context, p model.Power, orders []model.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[p] = append([]model.Order(nil), orders...)
	return nil
}

// Advance submits every staged order set, marks ready, and waits for the
// server to resolve the phase.
func (c *Client) Advance(ctx context.Context) error {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[model.Power][]model.Order)
	c.mu.Unlock()

	for p, orders := range pending {
		strs := make([]string, len(orders))
		for i, o := range orders {
			strs[i] = string(o)
		}
		payload := map[string]any{"power": string(p), "orders": strs}
		if err := c.post(ctx, "/api/v1/games/"+c.gameID+"/orders", payload); err != nil {
			return fmt.Errorf("submit orders for %s: %w", p, err)
		}
	}
	if err := c.post(ctx, "/api/v1/games/"+c.gameID+"/orders/ready", nil); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}

	event, err := c.waitForEvent(ctx, "phase_changed", "game_ended")
	if err != nil {
		return fmt.Errorf("wait for phase transition: %w", err)
	}
	if event.Type == "game_ended" {
		c.mu.Lock()
		c.done = true
		c.mu.Unlock()
		return nil
	}
	return c.refresh(ctx)
}

// waitForEvent blocks until one of the given event types arrives or the
// turn-wait deadline passes.
func (c *Client) waitForEvent(ctx context.Context, eventTypes ...string) (wsEvent, error) {
	typeSet := make(map[string]bool)
	for _, t := range eventTypes {
		typeSet[t] = true
	}

	timeout := time.After(c.turnWait)
	for {
		select {
		case <-ctx.Done():
			return wsEvent{}, ctx.Err()
		case <-timeout:
			return wsEvent{}, fmt.Errorf("timeout waiting for events %v", eventTypes)
		case event, ok := <-c.events:
			if !ok {
				return wsEvent{}, fmt.Errorf("ws connection closed")
			}
			if typeSet[event.Type] {
				return event, nil
			}
			log.Debug().Str("type", event.Type).Msg("Ignoring event")
		}
	}
}

// IsDone reports whether the server has ended the game.
func (c *Client) IsDone(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done, nil
}

// MustRetreat reports whether the power has a dislodged unit this phase.
func (c *Client) MustRetreat(ctx context.Context, p model.Power) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return false, fmt.Errorf("no phase state")
	}
	return len(c.state.Dislodged[string(p)]) > 0, nil
}

// BuildCount returns centers minus units during a build phase, zero
// otherwise.
func (c *Client) BuildCount(ctx context.Context, p model.Power) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return 0, fmt.Errorf("no phase state")
	}
	if phaseKind(c.state.Phase) != model.PhaseBuild {
		return 0, nil
	}
	return len(c.state.Centers[string(p)]) - len(c.state.Units[string(p)]), nil
}

// MarkComplete asks the server to stop the game. Best effort.
func (c *Client) MarkComplete(ctx context.Context) error {
	return c.post(ctx, "/api/v1/games/"+c.gameID+"/stop", nil)
}

// Close shuts down the WebSocket connection.
func (c *Client) Close() {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.wsConn != nil && !c.closedWS {
		c.closedWS = true
		c.wsConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wsConn.Close()
	}
}

func (c *Client) getJSON(ctx context.Context, path string) (map[string]any, error) {
	if err := c.ensureAuth(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpC.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

// post sends a POST request and checks for errors without decoding the
// response body.
func (c *Client) post(ctx context.Context, path string, payload any) error {
	if err := c.ensureAuth(); err != nil {
		return err
	}
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpC.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, body)
	}
	return nil
}
