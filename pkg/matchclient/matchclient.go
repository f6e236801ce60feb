// Package matchclient defines the contract for querying the locally running
// game client about the current match.
//
// The game client exposes a coarse lifecycle phase and, once a champion has
// been picked, the local player's identity. Both queries are unreliable: the
// client may be closed, restarting or slow. Implementations therefore return
// errors freely and callers treat any failure as a missed poll.
package matchclient

import (
	"context"
	"errors"
)

// Phase is the coarse-grained match lifecycle phase.
type Phase int

const (
	// PhaseUnknown is a sensor gap: the query failed or returned something
	// that cannot be mapped. It is never a real lifecycle state.
	PhaseUnknown Phase = iota

	// PhaseLobby covers the lobby, matchmaking and ready check.
	PhaseLobby

	// PhaseSelection is champion select.
	PhaseSelection

	// PhaseInProgress is the loading screen and the running game.
	PhaseInProgress

	// PhaseEndOfGame covers the stats and end-of-game screens.
	PhaseEndOfGame
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseUnknown:
		return "Unknown"
	case PhaseLobby:
		return "Lobby"
	case PhaseSelection:
		return "Selection"
	case PhaseInProgress:
		return "InProgress"
	case PhaseEndOfGame:
		return "EndOfGame"
	default:
		return "Phase(?)"
	}
}

// ParsePhase maps a game client phase string onto a [Phase]. Unrecognised
// values, including "None" and the empty string, map to [PhaseUnknown].
func ParsePhase(s string) Phase {
	switch s {
	case "Lobby", "Matchmaking", "ReadyCheck":
		return PhaseLobby
	case "ChampSelect":
		return PhaseSelection
	case "GameStart", "InProgress", "Reconnect":
		return PhaseInProgress
	case "WaitingForStats", "PreEndOfGame", "EndOfGame":
		return PhaseEndOfGame
	default:
		return PhaseUnknown
	}
}

// Identity identifies the local player's pick for the current match.
type Identity struct {
	ChampionID   int    `json:"champion_id"`
	ChampionName string `json:"champion_name,omitempty"`
}

// Sentinel errors returned by implementations.
var (
	// ErrUnavailable means the game client could not be reached.
	ErrUnavailable = errors.New("matchclient: client unavailable")

	// ErrNoIdentity means the client is reachable but no champion is locked
	// in for the local player yet.
	ErrNoIdentity = errors.New("matchclient: no local identity")
)

// Client queries the running game client. Implementations must be safe for
// concurrent use.
type Client interface {
	// Phase returns the current lifecycle phase.
	Phase(ctx context.Context) (Phase, error)

	// LocalIdentity returns the local player's champion for the current
	// match, or ErrNoIdentity when none is known yet.
	LocalIdentity(ctx context.Context) (Identity, error)
}
