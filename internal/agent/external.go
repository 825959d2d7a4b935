package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/model"
)

// ExternalOption configures an ExternalAgent before launch.
type ExternalOption func(*ExternalAgent)

// WithHandshakeTimeout sets the deadline for the initial ready exchange.
func WithHandshakeTimeout(d time.Duration) ExternalOption {
	return func(a *ExternalAgent) { a.handshakeTimeout = d }
}

// WithArgs passes extra command-line arguments to the child process.
func WithArgs(args ...string) ExternalOption {
	return func(a *ExternalAgent) { a.args = args }
}

// ExternalAgent drives a long-lived child process (an LLM bridge or a search
// engine) over a line-delimited JSON protocol. Each request carries an id the
// response must echo; responses are validated against a JSON schema before
// they are trusted.
type ExternalAgent struct {
	command          string
	args             []string
	power            model.Power
	controlled       []model.Power
	handshakeTimeout time.Duration

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan []byte

	// reqMu serializes whole request/response exchanges. A bloc's powers
	// share one agent, so concurrent callers would otherwise compete as
	// receivers on the line channel and consume each other's responses.
	reqMu sync.Mutex

	mu     sync.Mutex
	nextID int
	closed bool
}

type extRequest struct {
	ID       int                  `json:"id"`
	Op       string               `json:"op"`
	Power    model.Power          `json:"power,omitempty"`
	Powers   []model.Power        `json:"powers,omitempty"`
	Snapshot *model.PhaseSnapshot `json:"snapshot,omitempty"`
	Events   []model.GameEvent    `json:"events,omitempty"`
}

type extResponse struct {
	ID       int                            `json:"id"`
	Event    string                         `json:"event,omitempty"`
	Error    string                         `json:"error,omitempty"`
	Orders   map[model.Power][]model.Order  `json:"orders,omitempty"`
	Messages []model.Message                `json:"messages,omitempty"`
}

// NewExternalAgent spawns the child process, performs the ready handshake,
// and returns an agent controlling the given powers. The first power is the
// agent's primary identity; with two or more powers the agent is a bloc
// agent.
func NewExternalAgent(command string, powers []model.Power, opts ...ExternalOption) (*ExternalAgent, error) {
	if len(powers) == 0 {
		return nil, fmt.Errorf("external agent: no powers")
	}
	a := &ExternalAgent{
		command:          command,
		power:            powers[0],
		controlled:       append([]model.Power(nil), powers...),
		handshakeTimeout: 10 * time.Second,
		lines:            make(chan []byte, 16),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.start(); err != nil {
		return nil, fmt.Errorf("external agent: start: %w", err)
	}
	if err := a.handshake(); err != nil {
		a.Close()
		return nil, fmt.Errorf("external agent: handshake: %w", err)
	}
	return a, nil
}

func (a *ExternalAgent) start() error {
	cmd := exec.Command(a.command, a.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	a.cmd = cmd
	a.stdin = stdin

	go a.readLoop(stdout)
	return nil
}

// readLoop pumps stdout lines into the line channel until the process exits.
func (a *ExternalAgent) readLoop(stdout io.Reader) {
	defer close(a.lines)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		a.lines <- line
	}
}

func (a *ExternalAgent) handshake() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.handshakeTimeout)
	defer cancel()
	resp, err := a.roundTrip(ctx, extRequest{Op: "hello", Powers: a.controlled})
	if err != nil {
		return err
	}
	if resp.Event != "ready" {
		return fmt.Errorf("unexpected handshake response %q", resp.Event)
	}
	return nil
}

// roundTrip writes one request and waits for the response echoing its id.
// One exchange runs at a time; responses for stale ids (from an earlier
// timed-out exchange) are discarded.
func (a *ExternalAgent) roundTrip(ctx context.Context, req extRequest) (*extResponse, error) {
	a.reqMu.Lock()
	defer a.reqMu.Unlock()

	// The wait for the lock may have outlived the caller's budget.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, fmt.Errorf("agent closed")
	}
	a.nextID++
	req.ID = a.nextID
	payload, err := json.Marshal(req)
	if err != nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := a.stdin.Write(payload); err != nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("write request: %w", err)
	}
	a.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-a.lines:
			if !ok {
				return nil, fmt.Errorf("process exited")
			}
			resp, err := parseResponse(req.Op, line)
			if err != nil {
				return nil, err
			}
			if resp.ID != req.ID {
				log.Debug().Str("power", string(a.power)).Int("id", resp.ID).Msg("Discarding stale external agent response")
				continue
			}
			if resp.Error != "" {
				return nil, fmt.Errorf("agent error: %s", resp.Error)
			}
			return resp, nil
		}
	}
}

// parseResponse validates a raw response line against the schema for the
// given op before unmarshaling it.
func parseResponse(op string, line []byte) (*extResponse, error) {
	if err := validateResponse(op, line); err != nil {
		return nil, fmt.Errorf("invalid %s response: %w", op, err)
	}
	var resp extResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", op, err)
	}
	return &resp, nil
}

func (a *ExternalAgent) Power() model.Power { return a.power }

// ControlledPowers lists every power the child process decides for.
func (a *ExternalAgent) ControlledPowers() []model.Power {
	return append([]model.Power(nil), a.controlled...)
}

func (a *ExternalAgent) Decide(ctx context.Context, snap *model.PhaseSnapshot) ([]model.Order, error) {
	resp, err := a.roundTrip(ctx, extRequest{Op: "decide", Power: a.power, Snapshot: snap})
	if err != nil {
		return nil, err
	}
	if resp.Orders == nil {
		return nil, fmt.Errorf("decide response missing orders")
	}
	return resp.Orders[a.power], nil
}

func (a *ExternalAgent) DecideBloc(ctx context.Context, snap *model.PhaseSnapshot, powers []model.Power) (map[model.Power][]model.Order, error) {
	resp, err := a.roundTrip(ctx, extRequest{Op: "decide", Power: a.power, Powers: powers, Snapshot: snap})
	if err != nil {
		return nil, err
	}
	if resp.Orders == nil {
		return nil, fmt.Errorf("decide response missing orders")
	}
	return resp.Orders, nil
}

func (a *ExternalAgent) Negotiate(ctx context.Context, snap *model.PhaseSnapshot) ([]model.Message, error) {
	resp, err := a.roundTrip(ctx, extRequest{Op: "negotiate", Power: a.power, Snapshot: snap})
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (a *ExternalAgent) UpdateState(ctx context.Context, snap *model.PhaseSnapshot, events []model.GameEvent) error {
	_, err := a.roundTrip(ctx, extRequest{Op: "update", Power: a.power, Snapshot: snap, Events: events})
	return err
}

// Close terminates the child process.
func (a *ExternalAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.stdin != nil {
		a.stdin.Close()
	}
	if a.cmd != nil && a.cmd.Process != nil {
		a.cmd.Process.Kill()
		a.cmd.Wait()
	}
	return nil
}
