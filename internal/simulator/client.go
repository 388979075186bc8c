package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/thatsimonsguy/light-controller/internal/model"
)

const (
	DefaultStatePath   = "/api/environment/state"
	DefaultControlPath = "/api/environment/devices/light/%s/control"
)

// FetchError is returned when no usable snapshot could be obtained.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch state: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch state: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ActuationError is returned when a single light command was not accepted.
type ActuationError struct {
	LightID    string
	StatusCode int
	Err        error
}

func (e *ActuationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("set light %s: status %d: %v", e.LightID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("set light %s: %v", e.LightID, e.Err)
}

func (e *ActuationError) Unwrap() error { return e.Err }

var errRejected = errors.New("command rejected")

type Options struct {
	BaseURL      string
	StatePath    string
	ControlPath  string
	Timeout      time.Duration
	RateLimitRPS float64
}

// Client talks to the building simulator: one state endpoint and one control
// endpoint per light. Commands are paced by a token bucket.
type Client struct {
	baseURL     string
	statePath   string
	controlPath string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.StatePath == "" {
		opts.StatePath = DefaultStatePath
	}
	if opts.ControlPath == "" {
		opts.ControlPath = DefaultControlPath
	}

	limit := rate.Inf
	burst := 1
	if opts.RateLimitRPS > 0 {
		limit = rate.Limit(opts.RateLimitRPS)
		burst = int(opts.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		statePath:   opts.StatePath,
		controlPath: opts.ControlPath,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(limit, burst),
	}
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

type stateResponse struct {
	SimulationTime    string       `json:"simulationTime"`
	PowerOutage       bool         `json:"powerOutage"`
	DaylightIntensity *float64     `json:"daylightIntensity"`
	Rooms             []model.Room `json:"rooms"`
}

type controlRequest struct {
	State      model.LightState `json:"state"`
	Brightness *int             `json:"brightness,omitempty"`
}

type controlResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// FetchState polls one snapshot. Any transport error, non-2xx status or invalid
// body comes back as a *FetchError.
func (c *Client) FetchState(ctx context.Context) (*model.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.statePath, nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{StatusCode: resp.StatusCode, Err: errors.New("non-success status")}
	}

	var body stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &FetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}

	snap, err := toSnapshot(body)
	if err != nil {
		return nil, &FetchError{StatusCode: resp.StatusCode, Err: err}
	}

	log.Debug().
		Time("simulation_time", snap.SimulationTime).
		Bool("power_outage", snap.PowerOutage).
		Int("rooms", len(snap.Rooms)).
		Msg("Fetched simulator state")

	return snap, nil
}

func toSnapshot(body stateResponse) (*model.Snapshot, error) {
	simTime, err := model.ParseTimestamp(body.SimulationTime)
	if err != nil {
		return nil, fmt.Errorf("simulationTime: %w", err)
	}

	daylight := 1.0
	if body.DaylightIntensity != nil {
		daylight = *body.DaylightIntensity
	}
	if daylight < 0 || daylight > 1 {
		return nil, fmt.Errorf("daylightIntensity %v outside [0,1]", daylight)
	}

	rooms := make([]model.Room, 0, len(body.Rooms))
	for _, r := range body.Rooms {
		if r.ID == "" {
			return nil, errors.New("room without id")
		}
		if r.PeopleCount < 0 {
			return nil, fmt.Errorf("room %s: negative peopleCount %d", r.ID, r.PeopleCount)
		}
		if r.Illumination < 0 {
			return nil, fmt.Errorf("room %s: negative illumination %v", r.ID, r.Illumination)
		}
		for i := range r.Lights {
			l := &r.Lights[i]
			if l.Brightness < 0 || l.Brightness > 100 {
				return nil, fmt.Errorf("light %s: brightness %d outside [0,100]", l.ID, l.Brightness)
			}
			if l.RoomID == "" {
				l.RoomID = r.ID
			}
		}
		for i := range r.Meetings {
			if r.Meetings[i].RoomID == "" {
				r.Meetings[i].RoomID = r.ID
			}
		}
		rooms = append(rooms, r)
	}

	return &model.Snapshot{
		SimulationTime:    simTime,
		PowerOutage:       body.PowerOutage,
		DaylightIntensity: daylight,
		Rooms:             rooms,
	}, nil
}

// SetLight sends one command. A nil error means the simulator accepted it.
func (c *Client) SetLight(ctx context.Context, cmd model.Command) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &ActuationError{LightID: cmd.LightID, Err: err}
	}

	payload := controlRequest{State: cmd.State}
	if cmd.State == model.LightOn {
		brightness := cmd.Brightness
		payload.Brightness = &brightness
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return &ActuationError{LightID: cmd.LightID, Err: fmt.Errorf("marshal command: %w", err)}
	}

	endpoint := c.baseURL + fmt.Sprintf(c.controlPath, url.PathEscape(cmd.LightID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return &ActuationError{LightID: cmd.LightID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ActuationError{LightID: cmd.LightID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &ActuationError{LightID: cmd.LightID, StatusCode: resp.StatusCode, Err: errors.New("non-success status")}
	}

	// Some simulator builds answer 200 with {"success": false}.
	var body controlResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Success != nil && !*body.Success {
		reason := errRejected
		if body.Message != "" {
			reason = fmt.Errorf("%w: %s", errRejected, body.Message)
		}
		return &ActuationError{LightID: cmd.LightID, StatusCode: resp.StatusCode, Err: reason}
	}

	log.Debug().
		Str("light", cmd.LightID).
		Str("state", string(cmd.State)).
		Int("brightness", cmd.Brightness).
		Msg("Light command accepted")

	return nil
}
