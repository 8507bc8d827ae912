package actions

import (
	"context"
	"errors"

	"github.com/keithlinneman/ephemera/internal/audit"
	"github.com/keithlinneman/ephemera/internal/baas"
	"github.com/keithlinneman/ephemera/internal/log"
	"github.com/keithlinneman/ephemera/internal/ratelimit"
	"github.com/keithlinneman/ephemera/internal/sanitize"
	"github.com/keithlinneman/ephemera/internal/validate"
	"github.com/keithlinneman/ephemera/internal/xerrors"
)

// DefaultMaxUpload is the largest accepted page image.
const DefaultMaxUpload = 10 << 20

// Recorder receives pipeline counters. *metrics.ServerMetrics implements it.
type Recorder interface {
	IncValidationFailure(schema string)
	IncXSSDetection(field string)
}

type nopRecorder struct{}

func (nopRecorder) IncValidationFailure(string) {}
func (nopRecorder) IncXSSDetection(string)      {}

// Deps are the collaborators of a Service. Auth, Store and Limiter are required.
type Deps struct {
	Auth    baas.Auth
	Store   baas.Store
	Blobs   baas.Blobs
	Limiter ratelimit.Checker

	Validator *validate.Validator
	Auditor   *audit.Auditor
	Logger    log.Logger
	Recorder  Recorder

	// MaxUpload caps page image size. Zero means DefaultMaxUpload.
	MaxUpload int64
}

// Service runs actions against the backend.
type Service struct {
	auth      baas.Auth
	store     baas.Store
	blobs     baas.Blobs
	limiter   ratelimit.Checker
	validator *validate.Validator
	auditor   *audit.Auditor
	logger    log.Logger
	recorder  Recorder
	maxUpload int64
}

func New(d Deps) (*Service, error) {
	if d.Auth == nil || d.Store == nil || d.Limiter == nil {
		return nil, errors.New("actions: Auth, Store and Limiter are required")
	}
	s := &Service{
		auth:      d.Auth,
		store:     d.Store,
		blobs:     d.Blobs,
		limiter:   d.Limiter,
		validator: d.Validator,
		auditor:   d.Auditor,
		logger:    d.Logger,
		recorder:  d.Recorder,
		maxUpload: d.MaxUpload,
	}
	if s.blobs == nil {
		s.blobs = baas.NewMemoryBlobs()
	}
	if s.validator == nil {
		s.validator = validate.New()
	}
	if s.auditor == nil {
		s.auditor = audit.New(nil)
	}
	if s.logger == nil {
		s.logger = log.Nop()
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUpload
	}
	return s, nil
}

// Caller describes who is making a request. User is nil for anonymous
// callers.
type Caller struct {
	IP        string
	UserAgent string
	Token     string
	User      *baas.User
}

func (c Caller) actor() audit.Actor {
	a := audit.Actor{IP: c.IP, UserAgent: c.UserAgent}
	if c.User != nil {
		a.UserID = c.User.ID
	}
	return a
}

// readIdentifier keys read limits by user when signed in and by IP otherwise.
func (c Caller) readIdentifier() string {
	if c.User != nil {
		return c.User.ID
	}
	return c.IP
}

// Authenticate resolves a bearer token.
func (s *Service) Authenticate(ctx context.Context, token string) (*baas.User, error) {
	if token == "" {
		return nil, &Error{Kind: KindUnauthenticated, Message: MsgNotAuthenticated}
	}
	u, err := s.auth.UserForToken(ctx, token)
	if errors.Is(err, baas.ErrUnauthenticated) {
		return nil, &Error{Kind: KindUnauthenticated, Message: MsgNotAuthenticated, Err: err}
	}
	if err != nil {
		return nil, s.backendFailure(ctx, err, "resolve session")
	}
	return &u, nil
}

func requireUser(c Caller, msg string) (*baas.User, error) {
	if c.User == nil {
		return nil, &Error{Kind: KindUnauthenticated, Message: msg}
	}
	return c.User, nil
}

// limit is the first stage of every action.
func (s *Service) limit(ctx context.Context, c Caller, identifier, action string, cfg ratelimit.Config) error {
	res, err := s.limiter.Allow(ctx, identifier, action, cfg)
	if err != nil {
		// a limiter outage must not take the service down with it
		s.logger.Error(ctx, err, "rate limiter unavailable, allowing request", "action", action)
		return nil
	}
	if res.Success {
		return nil
	}
	s.auditor.RateLimitExceeded(ctx, c.actor(), action, identifier)
	return &Error{
		Kind:       KindRateLimited,
		Message:    ratelimit.Message(res.ResetInSeconds()),
		RetryAfter: res.ResetIn,
	}
}

// detect records, but never blocks, raw input that looks like script
// injection. Fields are reported as prefix+key.
func (s *Service) detect(ctx context.Context, c Caller, raw validate.Input, prefix string, keys ...string) {
	for _, key := range keys {
		v, ok := raw[key].(string)
		if !ok || v == "" || !sanitize.ContainsXSSPatterns(v) {
			continue
		}
		s.recorder.IncXSSDetection(prefix + key)
		s.auditor.XSSAttempt(ctx, c.actor(), prefix+key, v)
	}
}

// check validates in against schema and surfaces the first issue.
func (s *Service) check(ctx context.Context, c Caller, action string, schema validate.Schema, in validate.Input) (validate.Output, error) {
	out, issues := s.validator.Validate(schema, in)
	if issues == nil {
		return out, nil
	}
	first := issues.First()
	preview, _ := in[first.Field()].(string)
	s.recorder.IncValidationFailure(schema.Name)
	s.auditor.ValidationFailure(ctx, c.actor(), action, first.Field(), first.Message, preview)
	s.logger.Debug(ctx, "validation failed", "action", action, "field", first.Field(), "issues", len(issues))
	return nil, &Error{Kind: KindValidation, Message: first.Message, Issues: issues}
}

// rejectID records and returns a malformed identifier failure.
func (s *Service) rejectID(ctx context.Context, c Caller, action, msg string) error {
	s.auditor.ValidationFailure(ctx, c.actor(), action, "", "Invalid UUID format", "")
	return invalid(msg)
}

func (s *Service) backendFailure(ctx context.Context, err error, op string) error {
	err = xerrors.Wrap(err, op)
	s.logger.Error(ctx, err, "backend call failed", "op", op)
	return upstream(err)
}
