// Package mock provides a scripted [matchclient.Client] for tests.
//
// Phases are returned in order; once the script is exhausted the last entry
// repeats. A [Step] with a non-nil Err makes that poll fail.
//
//	c := &mock.Client{Steps: []mock.Step{
//	    {Phase: matchclient.PhaseInProgress},
//	    {Err: matchclient.ErrUnavailable},
//	    {Phase: matchclient.PhaseInProgress},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/riftsight/riftsight/pkg/matchclient"
)

// Step is one scripted Phase response.
type Step struct {
	Phase matchclient.Phase
	Err   error
}

// Client is a mock implementation of matchclient.Client.
type Client struct {
	mu sync.Mutex

	// Steps is the scripted phase sequence.
	Steps []Step

	// Identity is returned by LocalIdentity when IdentityErr is nil.
	Identity matchclient.Identity

	// IdentityErr, if non-nil, is returned by LocalIdentity.
	IdentityErr error

	// PhaseCalls is the number of Phase calls so far.
	PhaseCalls int

	// IdentityCalls is the number of LocalIdentity calls so far.
	IdentityCalls int
}

var _ matchclient.Client = (*Client)(nil)

// Phase returns the next scripted step.
func (c *Client) Phase(_ context.Context) (matchclient.Phase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.PhaseCalls
	c.PhaseCalls++
	if len(c.Steps) == 0 {
		return matchclient.PhaseUnknown, nil
	}
	if i >= len(c.Steps) {
		i = len(c.Steps) - 1
	}
	s := c.Steps[i]
	return s.Phase, s.Err
}

// LocalIdentity returns Identity, IdentityErr.
func (c *Client) LocalIdentity(_ context.Context) (matchclient.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.IdentityCalls++
	if c.IdentityErr != nil {
		return matchclient.Identity{}, c.IdentityErr
	}
	return c.Identity, nil
}

// SetIdentity replaces the identity and error returned by LocalIdentity.
// Thread-safe.
func (c *Client) SetIdentity(id matchclient.Identity, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Identity = id
	c.IdentityErr = err
}

// Calls returns the Phase and LocalIdentity call counts. Thread-safe.
func (c *Client) Calls() (phase, identity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PhaseCalls, c.IdentityCalls
}
