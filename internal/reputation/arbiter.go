package reputation

import "context"

// Arbiter decides the ruling for an open dispute. The state machine does not
// care how the decision is made: the default deployment uses the single
// configured authority, but a multi-party or voting arbiter can slot in
// without touching any transition.
type Arbiter interface {
	Rule(ctx context.Context, dispute Dispute) (Ruling, error)
}

// ArbiterFunc adapts a plain function to the Arbiter interface.
type ArbiterFunc func(ctx context.Context, dispute Dispute) (Ruling, error)

// Rule implements Arbiter.
func (f ArbiterFunc) Rule(ctx context.Context, dispute Dispute) (Ruling, error) {
	return f(ctx, dispute)
}

// FixedRuling returns an arbiter that always rules the same way. Primarily a
// test and seeding convenience.
func FixedRuling(ruling Ruling) Arbiter {
	return ArbiterFunc(func(context.Context, Dispute) (Ruling, error) {
		return ruling, nil
	})
}
