// Package enforcement issues containment commands to the network
// enforcement layer. Commands are fire-and-forget: the engine records
// its decision and moves on, it never waits for an acknowledgement.
package enforcement

import "context"

// Enforcer is the interface to the network enforcement layer
// (firewall, load balancer or API gateway).
type Enforcer interface {
	Block(ctx context.Context, identity string) error
	RateLimit(ctx context.Context, identity string) error
}

// NoOp is an Enforcer that does nothing, used in tests and when no
// enforcement backend is configured.
type NoOp struct{}

func (NoOp) Block(ctx context.Context, identity string) error     { return nil }
func (NoOp) RateLimit(ctx context.Context, identity string) error { return nil }

// Multi fans one command out to several backends. All backends are
// attempted; the first error is returned.
type Multi []Enforcer

func (m Multi) Block(ctx context.Context, identity string) error {
	var first error
	for _, e := range m {
		if err := e.Block(ctx, identity); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) RateLimit(ctx context.Context, identity string) error {
	var first error
	for _, e := range m {
		if err := e.RateLimit(ctx, identity); err != nil && first == nil {
			first = err
		}
	}
	return first
}
