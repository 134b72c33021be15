package txgate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultKeyPrefix namespaces claim keys in shared stores.
	DefaultKeyPrefix = "txgate:claim:"

	// DefaultReleaseTimeout bounds a release issued after the caller's
	// context may already be gone.
	DefaultReleaseTimeout = 5 * time.Second

	bearerPrefix = "Bearer "
	tracerName   = "github.com/x402-foundation/txgate"
)

var txHashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ParseCredential extracts the transaction hash from an Authorization
// header value of the form "Bearer <txHash>". The hash is lower-cased.
func ParseCredential(header string) (string, error) {
	if header == "" {
		return "", ErrMissingCredential
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", fmt.Errorf("%w: expected bearer scheme", ErrMalformedCredential)
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if !txHashRegex.MatchString(token) {
		return "", fmt.Errorf("%w: %q is not a transaction hash", ErrMalformedCredential, token)
	}
	return strings.ToLower(token), nil
}

// Gate verifies transaction-hash payment proofs for one payment requirement.
// It is safe for concurrent use once hooks are registered.
type Gate struct {
	requirement *PaymentRequirement
	store       ClaimStore
	chain       ChainReader
	verifier    Verifier

	route          string
	grace          time.Duration
	keyPrefix      string
	releaseTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
	tracer         trace.Tracer

	afterVerifyHooks []AfterVerifyHook
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithRoute names the protected route in logs, traces and hooks.
func WithRoute(route string) GateOption {
	return func(g *Gate) {
		g.route = route
	}
}

// WithGrace sets the extra time a claim outlives the max transaction age.
func WithGrace(grace time.Duration) GateOption {
	return func(g *Gate) {
		g.grace = grace
	}
}

// WithKeyPrefix sets the prefix of idempotency store keys.
func WithKeyPrefix(prefix string) GateOption {
	return func(g *Gate) {
		g.keyPrefix = prefix
	}
}

// WithReleaseTimeout bounds claim releases.
func WithReleaseTimeout(timeout time.Duration) GateOption {
	return func(g *Gate) {
		g.releaseTimeout = timeout
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		g.now = now
	}
}

// WithLogger sets the gate's logger.
func WithLogger(logger *zap.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithTracerProvider sets the provider used to trace verifications.
func WithTracerProvider(tp trace.TracerProvider) GateOption {
	return func(g *Gate) {
		g.tracer = tp.Tracer(tracerName)
	}
}

// NewGate creates a gate enforcing requirement.
func NewGate(requirement *PaymentRequirement, store ClaimStore, chain ChainReader, verifier Verifier, opts ...GateOption) (*Gate, error) {
	if requirement == nil {
		return nil, errors.New("txgate: requirement is required")
	}
	if store == nil {
		return nil, errors.New("txgate: claim store is required")
	}
	if chain == nil {
		return nil, errors.New("txgate: chain reader is required")
	}
	if verifier == nil {
		return nil, errors.New("txgate: verifier is required")
	}

	g := &Gate{
		requirement:    requirement,
		store:          store,
		chain:          chain,
		verifier:       verifier,
		grace:          DefaultGrace,
		keyPrefix:      DefaultKeyPrefix,
		releaseTimeout: DefaultReleaseTimeout,
		now:            time.Now,
		logger:         zap.NewNop(),
		tracer:         otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.grace < 0 {
		return nil, fmt.Errorf("txgate: negative grace %s", g.grace)
	}
	return g, nil
}

// Requirement returns the payment requirement the gate enforces.
func (g *Gate) Requirement() *PaymentRequirement {
	return g.requirement
}

// ClaimTTL is how long a claim lives in the store: max age plus grace.
func (g *Gate) ClaimTTL() time.Duration {
	return g.requirement.MaxAge() + g.grace
}

// ClaimKey returns the store key used for a parsed transaction hash.
func (g *Gate) ClaimKey(hash string) string {
	return g.keyPrefix + hash
}

// Verify runs the payment state machine for one Authorization header value.
func (g *Gate) Verify(ctx context.Context, credential string) *Outcome {
	start := g.now()
	ctx, span := g.tracer.Start(ctx, "txgate.Verify", trace.WithAttributes(
		attribute.String("txgate.route", g.route),
	))
	defer span.End()

	outcome := g.verify(ctx, credential)

	span.SetAttributes(
		attribute.String("txgate.outcome", outcome.Kind.String()),
		attribute.String("txgate.tx_hash", outcome.TxHash),
	)
	if outcome.Kind == OutcomeInternalError {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
	}

	duration := g.now().Sub(start)
	g.logOutcome(ctx, outcome, duration)

	if len(g.afterVerifyHooks) > 0 {
		rc := VerifyResultContext{
			VerifyContext: VerifyContext{
				Ctx:       ctx,
				Route:     g.route,
				TxHash:    outcome.TxHash,
				Timestamp: start,
			},
			Outcome:  outcome,
			Duration: duration,
		}
		for _, hook := range g.afterVerifyHooks {
			hook(rc)
		}
	}
	return outcome
}

func (g *Gate) verify(ctx context.Context, credential string) (outcome *Outcome) {
	hash, err := ParseCredential(credential)
	if err != nil {
		code := ErrCodeMalformedCredential
		if errors.Is(err, ErrMissingCredential) {
			code = ErrCodeMissingCredential
		}
		return &Outcome{
			Kind:  OutcomePaymentRequired,
			Err:   NewPaymentError(KindClientInput, code, err),
			quote: g.requirement.Quote(),
		}
	}

	key := g.ClaimKey(hash)
	claimed, err := g.store.Claim(ctx, key, g.ClaimTTL())
	if err != nil {
		// Ownership is unknown here, so the key is left for TTL expiry
		// instead of risking deleting another request's claim.
		return g.internalError(hash, fmt.Errorf("%w: claim: %v", ErrStoreUnavailable, err))
	}
	if !claimed {
		return g.reject(OutcomeReplay, hash, NewPaymentError(KindReplay, ErrCodeReplay, ErrReplay))
	}

	defer func() {
		if r := recover(); r != nil {
			g.release(ctx, key)
			outcome = g.internalError(hash, fmt.Errorf("txgate: panic during verification: %v", r))
		}
	}()

	tx, err := g.chain.GetTransaction(ctx, hash)
	if errors.Is(err, ErrTransactionNotFound) {
		g.release(ctx, key)
		return g.reject(OutcomeNotFound, hash, NewPaymentError(KindVerification, ErrCodeNotFound, err))
	}
	if err != nil {
		g.release(ctx, key)
		return g.internalError(hash, err)
	}

	if !tx.Pending() {
		blockTime, err := g.chain.GetBlockTimestamp(ctx, tx.BlockNumber)
		if err != nil {
			g.release(ctx, key)
			return g.internalError(hash, err)
		}
		age := g.now().Unix() - blockTime.Unix()
		if age > int64(g.requirement.MaxAge()/time.Second) {
			// The claim is kept so a known-expired hash cannot be retried
			// until the TTL runs out.
			err := fmt.Errorf("%w: age %ds exceeds %s", ErrTransactionExpired, age, g.requirement.MaxAge())
			return g.reject(OutcomeExpired, hash, NewPaymentError(KindVerification, ErrCodeExpired, err))
		}
	}

	if !g.verifier.Matches(g.requirement, tx.Input) {
		g.release(ctx, key)
		return g.reject(OutcomeMismatch, hash, NewPaymentError(KindVerification, ErrCodeMismatch, ErrPaymentMismatch))
	}

	if err := g.store.Finalize(ctx, key); err != nil {
		g.release(ctx, key)
		return g.internalError(hash, fmt.Errorf("%w: finalize: %v", ErrStoreUnavailable, err))
	}

	return &Outcome{Kind: OutcomeAccepted, TxHash: hash}
}

// release deletes a claim. Failures are logged and left to TTL expiry.
func (g *Gate) release(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.releaseTimeout)
	defer cancel()

	if err := g.store.Release(ctx, key); err != nil {
		g.logger.Warn("failed to release claim",
			zap.String("route", g.route),
			zap.String("key", key),
			zap.Duration("expires_within", g.ClaimTTL()),
			zap.Error(err),
		)
	}
}

func (g *Gate) reject(kind OutcomeKind, hash string, err *PaymentError) *Outcome {
	return &Outcome{Kind: kind, TxHash: hash, Err: err}
}

func (g *Gate) internalError(hash string, err error) *Outcome {
	return &Outcome{
		Kind:   OutcomeInternalError,
		TxHash: hash,
		Err:    NewPaymentError(KindInfrastructure, ErrCodeValidationFailed, err),
	}
}

func (g *Gate) logOutcome(ctx context.Context, outcome *Outcome, duration time.Duration) {
	fields := []zap.Field{
		zap.String("route", g.route),
		zap.String("outcome", outcome.Kind.String()),
		zap.Duration("duration", duration),
	}
	if outcome.TxHash != "" {
		fields = append(fields, zap.String("tx_hash", outcome.TxHash))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}

	switch outcome.Kind {
	case OutcomeAccepted:
		g.logger.Info("payment accepted", fields...)
	case OutcomeInternalError:
		g.logger.Error("payment validation failed", append(fields, zap.Error(outcome.Err))...)
	case OutcomeReplay:
		g.logger.Warn("replayed transaction hash", fields...)
	default:
		g.logger.Info("payment rejected", append(fields, zap.Error(outcome.Err))...)
	}
}
