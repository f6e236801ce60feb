// Package lcu implements [matchclient.Client] against the game client's local
// REST API.
//
// The local API listens on 127.0.0.1 behind a self-signed certificate and
// authenticates with HTTP Basic auth (user "riot", password taken from the
// client's lockfile or command line). Discovering the port and password is
// left to the caller; this package only needs the resulting base URL and
// password.
//
// Every request goes through a [resilience.CircuitBreaker] so that a closed
// game client costs one fast failure per reset timeout rather than one
// timeout per poll.
package lcu

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/riftsight/riftsight/internal/resilience"
	"github.com/riftsight/riftsight/pkg/matchclient"
)

// API paths.
const (
	pathPhase           = "/lol-gameflow/v1/gameflow-phase"
	pathChampSelect     = "/lol-champ-select/v1/session"
	pathGameflowSession = "/lol-gameflow/v1/session"
	pathSummoner        = "/lol-summoner/v1/current-summoner"
)

const (
	defaultTimeout = time.Second
	authUser       = "riot"
)

var _ matchclient.Client = (*Client)(nil)

// Client queries the local game client API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	password   string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

type config struct {
	timeout    time.Duration
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// Option is a functional option for [New].
type Option func(*config)

// WithTimeout sets the per-request timeout. Default: 1s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHTTPClient replaces the HTTP client. The caller is then responsible
// for TLS settings and timeouts.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *config) { c.breaker = cb }
}

// New returns a Client for the API at baseURL (e.g. "https://127.0.0.1:2999").
func New(baseURL, password string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("lcu: base URL must not be empty")
	}
	cfg := &config{timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{
			Timeout: cfg.timeout,
			Transport: &http.Transport{
				// The local API only ever presents a self-signed certificate.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		}
	}
	cb := cfg.breaker
	if cb == nil {
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "lcu",
			MaxFailures:  3,
			ResetTimeout: 5 * time.Second,
			HalfOpenMax:  1,
		})
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		password:   password,
		httpClient: hc,
		breaker:    cb,
	}, nil
}

// Breaker exposes the client's circuit breaker for health checks.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

// Phase implements [matchclient.Client].
func (c *Client) Phase(ctx context.Context) (matchclient.Phase, error) {
	var raw string
	if err := c.get(ctx, pathPhase, &raw); err != nil {
		return matchclient.PhaseUnknown, fmt.Errorf("lcu: phase: %w", err)
	}
	return matchclient.ParsePhase(raw), nil
}

type champSelectSession struct {
	LocalPlayerCellID int `json:"localPlayerCellId"`
	MyTeam            []struct {
		CellID     int `json:"cellId"`
		ChampionID int `json:"championId"`
	} `json:"myTeam"`
}

type gameflowSession struct {
	GameData struct {
		PlayerChampionSelections []struct {
			PUUID                string `json:"puuid"`
			SummonerInternalName string `json:"summonerInternalName"`
			ChampionID           int    `json:"championId"`
		} `json:"playerChampionSelections"`
	} `json:"gameData"`
}

type summoner struct {
	PUUID        string `json:"puuid"`
	InternalName string `json:"internalName"`
}

// LocalIdentity implements [matchclient.Client]. During champion select it
// reads the local player's cell from the selection session; otherwise it
// looks the local player up in the running game's roster.
func (c *Client) LocalIdentity(ctx context.Context) (matchclient.Identity, error) {
	var cs champSelectSession
	err := c.get(ctx, pathChampSelect, &cs)
	if err == nil {
		for _, m := range cs.MyTeam {
			if m.CellID == cs.LocalPlayerCellID && m.ChampionID > 0 {
				return matchclient.Identity{ChampionID: m.ChampionID}, nil
			}
		}
	} else if !errors.Is(err, errNotFound) {
		return matchclient.Identity{}, fmt.Errorf("lcu: champ select session: %w", err)
	}

	var me summoner
	if err := c.get(ctx, pathSummoner, &me); err != nil {
		return matchclient.Identity{}, fmt.Errorf("lcu: current summoner: %w", err)
	}
	var gs gameflowSession
	if err := c.get(ctx, pathGameflowSession, &gs); err != nil {
		if errors.Is(err, errNotFound) {
			return matchclient.Identity{}, matchclient.ErrNoIdentity
		}
		return matchclient.Identity{}, fmt.Errorf("lcu: gameflow session: %w", err)
	}
	for _, p := range gs.GameData.PlayerChampionSelections {
		if p.ChampionID <= 0 {
			continue
		}
		if (me.PUUID != "" && p.PUUID == me.PUUID) ||
			(me.InternalName != "" && p.SummonerInternalName == me.InternalName) {
			return matchclient.Identity{ChampionID: p.ChampionID}, nil
		}
	}
	return matchclient.Identity{}, matchclient.ErrNoIdentity
}

// errNotFound marks a 404, which the API returns for sessions that do not
// exist in the current phase. It does not count against the breaker.
var errNotFound = errors.New("lcu: not found")

// get issues an authenticated GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	var notFound bool
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		req.SetBasicAuth(authUser, c.password)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %w", matchclient.ErrUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			notFound = true
			return nil
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", matchclient.ErrUnavailable, err)
	}
	if err != nil {
		return err
	}
	if notFound {
		return errNotFound
	}
	return nil
}
