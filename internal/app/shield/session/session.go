package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sifan077/LinkShield/internal/app/shield/classifier"
	"github.com/sifan077/LinkShield/internal/app/shield/payload"
	"github.com/sifan077/LinkShield/internal/app/shield/protection"
	"go.uber.org/zap"
)

const (
	DefaultGrace        = 500 * time.Millisecond
	DefaultTickInterval = 100 * time.Millisecond
	// DefaultObservationWindow bounds how long a passive Ultra-Link visitor
	// waits past the timer for a Human verdict.
	DefaultObservationWindow = 10 * time.Second
)

var (
	ErrNotReady          = errors.New("session is not ready to proceed")
	ErrAlreadyRedirected = errors.New("session already redirected")
	ErrPayloadDecode     = errors.New("destination payload could not be decoded")
	ErrClosed            = errors.New("session is closed")
	ErrSessionNotFound   = errors.New("session not found")
)

// Decoder opens an obfuscated payload. payload.Codec implements it.
type Decoder interface {
	Decode(p payload.Payload) (payload.Bundle, error)
}

// ActionProceed is the only action a session reports.
const ActionProceed = "proceed"

// ActionRecord is what a completed session reports to analytics.
type ActionRecord struct {
	SessionID     string
	LinkID        string
	Action        string
	VerdictWasBot bool
	Timestamp     time.Time
}

// Recorder must return promptly; delivery happens in the background.
type Recorder interface {
	Record(ctx context.Context, rec ActionRecord)
}

// Link is the read-only slice of the protected link a session needs.
// The destination URL deliberately lives only inside the payload.
type Link struct {
	ID          string
	Slug        string
	Title       string
	IsUltraLink bool
}

// Params describe one visit.
type Params struct {
	ID      string
	Link    Link
	Config  protection.Config
	Payload payload.Payload
	Agent   string
	Probe   classifier.EnvironmentProbe
}

// Deps are shared collaborators, safe for concurrent use by many sessions.
type Deps struct {
	Decoder     Decoder
	Latch       Latch
	UltraPicker StrategyPicker
	Recorder    Recorder
	Logger      *zap.Logger
}

// Options hold timing knobs; zero values fall back to defaults.
type Options struct {
	Grace             time.Duration
	AutoConfirmDelay  time.Duration
	MinTrust          int
	ObservationWindow time.Duration
}

// Snapshot is the externally visible view of a session at one instant.
type Snapshot struct {
	SessionID        string             `json:"session_id"`
	State            State              `json:"state"`
	Verdict          classifier.Verdict `json:"verdict"`
	Remaining        time.Duration      `json:"-"`
	RemainingSeconds int                `json:"remaining"`
	CanProceed       bool               `json:"can_proceed"`
	AutoRedirect     bool               `json:"auto_redirect"`
	Navigation       *Navigation        `json:"navigation,omitempty"`
}

// Session is one visit to a protected link. It is created on page load and
// discarded on redirect, abandonment or expiry. All methods are safe for
// concurrent use; the runner and HTTP requests share it.
type Session struct {
	mu sync.Mutex

	id      string
	link    Link
	cfg     protection.Config
	payload payload.Payload
	agent   string
	probe   classifier.EnvironmentProbe
	deps    Deps
	opts    Options

	state     State
	verdict   classifier.Verdict
	reason    string
	counters  classifier.Counters
	startedAt time.Time
	readyAt   time.Time
	autoAt    time.Time
	// autoDue is set once the level 2 grace delay has passed. The redirect
	// itself waits for the page runtime to collect it.
	autoDue bool
}

// New builds a session in INIT. Call Begin to classify it.
func New(p Params, deps Deps, opts Options) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Latch == nil {
		deps.Latch = NewMemoryLatch()
	}
	if deps.UltraPicker == nil {
		deps.UltraPicker = RandomPicker{}
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.AutoConfirmDelay <= 0 {
		opts.AutoConfirmDelay = classifier.DefaultAutoConfirmDelay
	}
	if opts.ObservationWindow <= 0 {
		opts.ObservationWindow = DefaultObservationWindow
	}

	return &Session{
		id:      p.ID,
		link:    p.Link,
		cfg:     p.Config,
		payload: p.Payload,
		agent:   p.Agent,
		probe:   p.Probe,
		deps:    deps,
		opts:    opts,
		state:   StateInit,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Link() Link { return s.link }

func (s *Session) Config() protection.Config { return s.cfg }

// StartedAt is zero until Begin runs.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Reason explains the static verdict.
func (s *Session) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Begin runs the static pass and moves to CLOAKED or GATED. The countdown
// starts at now for gated sessions.
func (s *Session) Begin(now time.Time) Snapshot {
	s.mu.Lock()
	if s.state != StateInit {
		defer s.mu.Unlock()
		return s.snapshotLocked(now)
	}

	s.state = StateClassifying
	s.startedAt = now

	res := classifier.ClassifyStatic(s.agent, s.probe, classifier.Options{
		AIDetection: s.cfg.Features.Has(protection.FeatureAIDetection),
		MinTrust:    s.opts.MinTrust,
	})
	s.verdict = res.Verdict
	s.reason = res.Reason

	if s.link.IsUltraLink && s.verdict == classifier.Bot {
		s.state = StateCloaked
		s.payload = ""
		s.deps.Logger.Debug("session cloaked",
			zap.String("session_id", s.id),
			zap.String("link_id", s.link.ID),
			zap.String("reason", res.Reason),
		)
		defer s.mu.Unlock()
		return s.snapshotLocked(now)
	}

	s.state = StateGated
	s.deps.Logger.Debug("session gated",
		zap.String("session_id", s.id),
		zap.String("link_id", s.link.ID),
		zap.Stringer("verdict", s.verdict),
		zap.Duration("timer", s.cfg.Timer),
		zap.Int("level", int(s.cfg.Level)),
	)
	defer s.mu.Unlock()
	s.tickLocked(now)
	return s.snapshotLocked(now)
}

// Observe feeds one batch of interactions to the behavioural pass.
func (s *Session) Observe(_ context.Context, now time.Time, e classifier.Event) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateGated || s.state == StateReady {
		s.verdict = classifier.Observe(s.verdict, &s.counters, e, now.Sub(s.startedAt))
	}
	s.tickLocked(now)
	return s.snapshotLocked(now)
}

// Tick advances the countdown from elapsed wall-clock time and marks the
// level 2 auto-proceed due once its grace delay has passed. It never
// redirects: nobody is there to follow the navigation.
func (s *Session) Tick(_ context.Context, now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickLocked(now)
	return s.snapshotLocked(now)
}

// Poll is Tick for the page runtime. The first poll after the auto-proceed
// is due performs the redirect and carries its navigation.
func (s *Session) Poll(ctx context.Context, now time.Time) Snapshot {
	s.mu.Lock()
	s.tickLocked(now)

	var (
		nav *Navigation
		rec *ActionRecord
	)
	if s.state == StateReady && s.autoDue {
		n, r, err := s.proceedLocked(ctx, now)
		if err == nil {
			nav, rec = &n, r
		} else if !errors.Is(err, ErrAlreadyRedirected) {
			s.deps.Logger.Warn("auto proceed failed",
				zap.String("session_id", s.id),
				zap.String("link_id", s.link.ID),
				zap.Error(err),
			)
		}
	}
	snap := s.snapshotLocked(now)
	snap.Navigation = nav
	s.mu.Unlock()

	s.dispatch(ctx, rec)
	return snap
}

// Proceed is the manual trigger. Only the first successful call returns a
// navigation; later calls return ErrAlreadyRedirected and have no effect.
func (s *Session) Proceed(ctx context.Context, now time.Time) (Navigation, error) {
	s.mu.Lock()
	// Let a countdown that just ran out reach READY before judging the request.
	s.tickLocked(now)
	nav, rec, err := s.proceedLocked(ctx, now)
	s.mu.Unlock()

	s.dispatch(ctx, rec)
	return nav, err
}

// Abandon tears the session down before it redirects. It reports whether the
// session was still live.
func (s *Session) Abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return false
	}
	s.state = StateAbandoned
	s.payload = ""
	return true
}

// Snapshot returns the current view without advancing time.
func (s *Session) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(now)
}

// Counters returns a copy of the interaction counters.
func (s *Session) Counters() classifier.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// finished reports whether the session can be dropped from its registry.
func (s *Session) finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Terminal()
}

// needsTicks is false once nothing is scheduled any more: terminal states and
// level 1 sessions waiting on the visitor.
func (s *Session) needsTicks() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateGated:
		return true
	case StateReady:
		return s.cfg.AutoProceed() && !s.autoDue
	default:
		return false
	}
}

func (s *Session) tickLocked(now time.Time) {
	if s.state == StateGated {
		elapsed := now.Sub(s.startedAt)
		if !s.link.IsUltraLink {
			s.verdict = classifier.AutoConfirm(s.verdict, elapsed, s.opts.AutoConfirmDelay)
		}
		if elapsed >= s.cfg.Timer && s.observedLocked(elapsed) {
			s.state = StateReady
			s.readyAt = now
			if s.cfg.AutoProceed() {
				s.autoAt = now.Add(s.opts.Grace)
			}
		}
	}

	if s.state == StateReady && s.cfg.AutoProceed() && !now.Before(s.autoAt) {
		s.autoDue = true
	}
}

// observedLocked gates Ultra-Link sessions on a Human verdict for at most the
// observation window past the timer. A static Bot never gets through.
func (s *Session) observedLocked(elapsed time.Duration) bool {
	if !s.link.IsUltraLink {
		return true
	}
	switch s.verdict {
	case classifier.Human:
		return true
	case classifier.Bot:
		return false
	default:
		return elapsed >= s.cfg.Timer+s.opts.ObservationWindow
	}
}

func (s *Session) proceedLocked(ctx context.Context, now time.Time) (Navigation, *ActionRecord, error) {
	switch s.state {
	case StateReady:
	case StateRedirected:
		return Navigation{}, nil, ErrAlreadyRedirected
	case StateFailed:
		return Navigation{}, nil, ErrPayloadDecode
	case StateAbandoned, StateCloaked, StateNotFound:
		return Navigation{}, nil, ErrClosed
	default:
		return Navigation{}, nil, ErrNotReady
	}

	ok, err := s.deps.Latch.Acquire(ctx, s.id)
	if err != nil {
		// The state check above already serialises triggers within this process.
		s.deps.Logger.Warn("redirect latch unavailable, relying on session state",
			zap.String("session_id", s.id),
			zap.Error(err),
		)
		ok = true
	}
	if !ok {
		s.state = StateRedirected
		return Navigation{}, nil, ErrAlreadyRedirected
	}

	encoded := s.payload
	s.payload = ""
	bundle, err := s.deps.Decoder.Decode(encoded)
	if err == nil && bundle.LinkID != s.link.ID {
		err = fmt.Errorf("payload belongs to link %q", bundle.LinkID)
	}
	if err != nil {
		s.state = StateFailed
		s.deps.Logger.Error("payload decode failed",
			zap.String("session_id", s.id),
			zap.String("link_id", s.link.ID),
			zap.Error(err),
		)
		return Navigation{}, nil, fmt.Errorf("%w: %v", ErrPayloadDecode, err)
	}

	picker := StrategyPicker(FixedPicker{Strategy: DirectStrategy})
	if s.link.IsUltraLink {
		picker = s.deps.UltraPicker
	}
	nav := picker.Pick(s.id).Execute(NormalizeURL(bundle.DestinationURL))
	if s.cfg.Features.Has(protection.FeatureJSObfuscation) {
		nav = nav.Obfuscated()
	}

	s.state = StateRedirected

	return nav, &ActionRecord{
		SessionID:     s.id,
		LinkID:        s.link.ID,
		Action:        ActionProceed,
		VerdictWasBot: s.verdict == classifier.Bot,
		Timestamp:     now,
	}, nil
}

// dispatch hands the record to the recorder once the navigation has been
// handed to the visitor.
func (s *Session) dispatch(ctx context.Context, rec *ActionRecord) {
	if rec == nil || s.deps.Recorder == nil {
		return
	}
	s.deps.Recorder.Record(context.WithoutCancel(ctx), *rec)
}

func (s *Session) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		State:     s.state,
		Verdict:   s.verdict,
	}

	switch s.state {
	case StateGated:
		remaining := s.cfg.Timer - now.Sub(s.startedAt)
		if remaining < 0 {
			remaining = 0
		}
		snap.Remaining = remaining
		snap.RemainingSeconds = int((remaining + time.Second - 1) / time.Second)
	case StateReady:
		snap.AutoRedirect = s.cfg.AutoProceed()
		snap.CanProceed = !snap.AutoRedirect
	}
	return snap
}
