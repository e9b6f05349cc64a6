// Package mfaflow drives the TOTP enrollment and challenge flow against an
// identity provider on behalf of an interactive client. It is a small state
// machine: callers render whatever the current step demands and feed user
// input back in, while the flow guards against malformed codes, overlapping
// submissions and inconsistent step transitions.
package mfaflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
	"github.com/opsdeskhq/opsgate/internal/gate/provider"
)

// Step is the flow's current UI-facing state.
type Step string

const (
	// StepLoading is the initial state before Start has resolved the
	// user's enrollment status.
	StepLoading Step = "loading"

	// StepEnroll means a fresh unverified factor exists and the user must
	// scan the QR secret and confirm with a first code.
	StepEnroll Step = "enroll"

	// StepVerify means a verified factor already exists and the user must
	// answer a challenge to step up the session.
	StepVerify Step = "verify"

	// StepResetting is the transient state while an existing factor is
	// being discarded and replaced.
	StepResetting Step = "resetting"

	// StepDone means a code was accepted and the session now carries the
	// TOTP authentication method.
	StepDone Step = "done"
)

var (
	// ErrCodeFormat rejects a submission before any network call is made.
	ErrCodeFormat = errors.New("mfaflow: code must be exactly 6 digits")

	// ErrInFlight rejects a submission while another one is still running.
	ErrInFlight = errors.New("mfaflow: another submission is in flight")

	// ErrStep rejects an operation that is invalid in the current step.
	ErrStep = errors.New("mfaflow: operation not valid in current step")
)

// Flow is a single user's MFA flow. It is safe for concurrent use; only one
// network-bound operation runs at a time.
type Flow struct {
	auth provider.Authenticator

	mu       sync.Mutex
	step     Step
	inFlight bool
	factor   domain.Factor
}

func New(auth provider.Authenticator) *Flow {
	return &Flow{auth: auth, step: StepLoading}
}

// Step returns the current state.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Factor returns the factor the flow is operating on. During StepEnroll it
// carries the provisioning secret and URI for display.
func (f *Flow) Factor() domain.Factor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.factor
}

// Start resolves the user's enrollment status and moves the flow out of
// StepLoading. A user with a verified TOTP factor lands in StepVerify;
// anyone else gets a fresh factor enrolled and lands in StepEnroll.
func (f *Flow) Start(ctx context.Context) (Step, error) {
	if err := f.begin(StepLoading); err != nil {
		return f.Step(), err
	}
	defer f.end()

	factors, err := f.auth.ListFactors(ctx)
	if err != nil {
		return StepLoading, fmt.Errorf("list factors: %w", err)
	}

	for _, factor := range factors {
		if factor.VerifiedTOTP() {
			f.setState(StepVerify, factor)
			return StepVerify, nil
		}
	}

	factor, err := f.auth.EnrollTOTP(ctx)
	if err != nil {
		return StepLoading, fmt.Errorf("enroll factor: %w", err)
	}
	f.setState(StepEnroll, factor)
	return StepEnroll, nil
}

// SubmitCode opens a challenge against the current factor and verifies the
// code. Valid from StepEnroll and StepVerify. A code that is not exactly six
// digits is rejected locally without touching the network. On success the
// flow moves to StepDone and the session tokens held by the authenticator
// are stepped up; on a rejected code the step is unchanged so the user can
// retry.
func (f *Flow) SubmitCode(ctx context.Context, code string) (Step, error) {
	if !validCode(code) {
		return f.Step(), ErrCodeFormat
	}

	if err := f.begin(StepEnroll, StepVerify); err != nil {
		return f.Step(), err
	}
	defer f.end()

	f.mu.Lock()
	factor := f.factor
	step := f.step
	f.mu.Unlock()

	challenge, err := f.auth.CreateChallenge(ctx, factor.ID)
	if err != nil {
		return step, fmt.Errorf("create challenge: %w", err)
	}

	if err := f.auth.VerifyChallenge(ctx, challenge, code); err != nil {
		return step, fmt.Errorf("verify challenge: %w", err)
	}

	f.setState(StepDone, factor)
	return StepDone, nil
}

// Reset discards the current factor and enrolls a fresh one, for users who
// lost their authenticator. Valid from StepVerify. An already-removed factor
// is treated as success; a failed re-enrollment returns the flow to
// StepVerify so the old factor keeps working.
func (f *Flow) Reset(ctx context.Context) (Step, error) {
	if err := f.begin(StepVerify); err != nil {
		return f.Step(), err
	}
	defer f.end()

	f.mu.Lock()
	previous := f.factor
	f.step = StepResetting
	f.mu.Unlock()

	if err := f.auth.Unenroll(ctx, previous.ID); err != nil && !isNotFound(err) {
		f.setState(StepVerify, previous)
		return StepVerify, fmt.Errorf("unenroll factor: %w", err)
	}

	factor, err := f.auth.EnrollTOTP(ctx)
	if err != nil {
		f.setState(StepVerify, previous)
		return StepVerify, fmt.Errorf("enroll factor: %w", err)
	}

	f.setState(StepEnroll, factor)
	return StepEnroll, nil
}

// begin acquires the in-flight slot if the current step is one of allowed.
func (f *Flow) begin(allowed ...Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight {
		return ErrInFlight
	}
	for _, step := range allowed {
		if f.step == step {
			f.inFlight = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrStep, f.step)
}

func (f *Flow) end() {
	f.mu.Lock()
	f.inFlight = false
	f.mu.Unlock()
}

func (f *Flow) setState(step Step, factor domain.Factor) {
	f.mu.Lock()
	f.step = step
	f.factor = factor
	f.mu.Unlock()
}

func validCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isNotFound(err error) bool {
	if pe, ok := provider.AsError(err); ok {
		return pe.Status == 404
	}
	return false
}
