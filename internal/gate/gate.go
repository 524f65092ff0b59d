// Package gate enforces permission checks in front of protected actions and
// records every denial.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sabha-admin/sabha/internal/audit"
	"github.com/sabha-admin/sabha/internal/identity"
	"github.com/sabha-admin/sabha/internal/rbac"
)

// DefaultAction applies when a caller does not name one.
const DefaultAction = "view"

// DefaultCheckTimeout bounds a single permission check.
const DefaultCheckTimeout = 3 * time.Second

// Denial reasons recorded on unauthorized_access events.
const (
	ReasonNoGrant          = "no_grant"
	ReasonStoreUnavailable = "store_unavailable"
)

// State is a step of a gate check.
type State int

const (
	Unauthenticated State = iota
	CheckingPermission
	Granted
	Denied
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case CheckingPermission:
		return "checking_permission"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of Check. A Discarded outcome belongs to a
// caller that went away; it must not be rendered.
type Outcome struct {
	State     State
	Module    string
	Action    string
	Reason    string
	Discarded bool
	Err       error
}

// Allowed reports whether the protected action may run.
func (o Outcome) Allowed() bool {
	return o.State == Granted && !o.Discarded
}

// Evaluator decides a single (module, action) request.
type Evaluator interface {
	Evaluate(ctx context.Context, principal *identity.Principal, module, action string) (rbac.Decision, error)
}

// Observer receives every terminal outcome.
type Observer interface {
	ObserveGate(state, reason string, elapsed time.Duration)
}

// Config tunes the gate.
type Config struct {
	CheckTimeout time.Duration
	LoginPath    string
}

// Gate wraps protected actions. Each call evaluates afresh; no decision is
// reused across (module, action) pairs.
type Gate struct {
	evaluator Evaluator
	recorder  audit.Recorder
	logger    *slog.Logger
	observer  Observer
	timeout   time.Duration
	loginPath string
	denied    DenialRenderer
}

// Option customises a Gate.
type Option func(*Gate)

// WithObserver attaches metrics.
func WithObserver(o Observer) Option {
	return func(g *Gate) { g.observer = o }
}

// WithDenialRenderer sets the page shown on 403.
func WithDenialRenderer(r DenialRenderer) Option {
	return func(g *Gate) { g.denied = r }
}

// New constructs a Gate.
func New(evaluator Evaluator, recorder audit.Recorder, cfg Config, logger *slog.Logger, opts ...Option) *Gate {
	if recorder == nil {
		recorder = audit.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/auth/login"
	}
	g := &Gate{
		evaluator: evaluator,
		recorder:  recorder,
		logger:    logger,
		timeout:   cfg.CheckTimeout,
		loginPath: cfg.LoginPath,
		denied:    plainDenial,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type evaluation struct {
	decision rbac.Decision
	err      error
}

// Check runs the gate for principal on (module, action). Denials record
// exactly one unauthorized_access event; grants record none.
func (g *Gate) Check(ctx context.Context, principal *identity.Principal, module, action string) Outcome {
	start := time.Now()
	module = strings.ToLower(strings.TrimSpace(module))
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		action = DefaultAction
	}
	out := Outcome{State: Unauthenticated, Module: module, Action: action}
	if !principal.Authenticated() {
		g.observe(out, start)
		return out
	}

	out.State = CheckingPermission
	checkCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result := make(chan evaluation, 1)
	go func() {
		decision, err := g.evaluator.Evaluate(checkCtx, principal, module, action)
		result <- evaluation{decision: decision, err: err}
	}()

	var res evaluation
	select {
	case res = <-result:
	case <-checkCtx.Done():
		res = evaluation{decision: rbac.Deny, err: checkCtx.Err()}
	}

	if ctx.Err() != nil {
		out.State = Denied
		out.Discarded = true
		out.Err = ctx.Err()
		g.observe(out, start)
		return out
	}

	switch {
	case res.err != nil:
		out.State = Denied
		out.Reason = ReasonStoreUnavailable
		out.Err = res.err
		if !errors.Is(res.err, rbac.ErrStoreUnavailable) && !errors.Is(res.err, context.DeadlineExceeded) {
			g.logger.Warn("permission check failed", slog.Any("error", res.err))
		}
	case res.decision == rbac.Allow:
		out.State = Granted
	default:
		out.State = Denied
		out.Reason = ReasonNoGrant
	}

	if out.State == Denied {
		g.recorder.Record(audit.UnauthorizedAccess(principal.ActorHandle(), module, action, map[string]string{
			"reason": out.Reason,
		}))
	}
	g.observe(out, start)
	return out
}

func (g *Gate) observe(out Outcome, start time.Time) {
	if g.observer == nil {
		return
	}
	state := out.State.String()
	if out.Discarded {
		state = "discarded"
	}
	g.observer.ObserveGate(state, out.Reason, time.Since(start))
}
