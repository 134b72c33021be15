package txgate

import (
	"context"
	"time"
)

// VerifyContext contains information passed to verify hooks
type VerifyContext struct {
	Ctx       context.Context
	Route     string
	TxHash    string
	Timestamp time.Time
}

// VerifyResultContext contains the verification outcome and context
type VerifyResultContext struct {
	VerifyContext
	Outcome  *Outcome
	Duration time.Duration
}

// AfterVerifyHook is called once per request after the gate has decided.
// Hooks run synchronously on the request goroutine.
type AfterVerifyHook func(VerifyResultContext)

// OnAfterVerify registers a hook run after every verification.
// Register hooks before the gate starts serving requests.
func (g *Gate) OnAfterVerify(hook AfterVerifyHook) *Gate {
	g.afterVerifyHooks = append(g.afterVerifyHooks, hook)
	return g
}

// OnAccepted registers a hook run only for accepted payments.
func (g *Gate) OnAccepted(hook AfterVerifyHook) *Gate {
	return g.OnAfterVerify(func(rc VerifyResultContext) {
		if rc.Outcome.Accepted() {
			hook(rc)
		}
	})
}

// OnRejected registers a hook run for every outcome except acceptance.
func (g *Gate) OnRejected(hook AfterVerifyHook) *Gate {
	return g.OnAfterVerify(func(rc VerifyResultContext) {
		if !rc.Outcome.Accepted() {
			hook(rc)
		}
	})
}
