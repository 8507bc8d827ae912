package actions

import (
	"context"
	"errors"

	"github.com/keithlinneman/ephemera/internal/baas"
	"github.com/keithlinneman/ephemera/internal/ratelimit"
	"github.com/keithlinneman/ephemera/internal/sanitize"
	"github.com/keithlinneman/ephemera/internal/validate"
)

// SignIn authenticates email and password. Limits are keyed by client IP.
func (s *Service) SignIn(ctx context.Context, c Caller, raw validate.Input) (baas.Session, error) {
	const action = "auth.signin"
	if err := s.limit(ctx, c, c.IP, action, ratelimit.Auth); err != nil {
		return baas.Session{}, err
	}

	in := validate.Input{"email": raw["email"], "password": raw["password"]}
	blank(in, "email")
	clean(in, sanitize.Email, "email")
	email, _ := in["email"].(string)

	s.detect(ctx, c, raw, "", "email")

	out, err := s.check(ctx, c, action, validate.SignIn, in)
	if err != nil {
		s.auditor.AuthAttempt(ctx, c.actor(), "signin", email, false, "validation")
		return baas.Session{}, err
	}

	sess, err := s.auth.SignIn(ctx, out.String("email"), out.String("password"))
	if err != nil {
		s.auditor.AuthAttempt(ctx, c.actor(), "signin", email, false, err.Error())
		if errors.Is(err, baas.ErrInvalidCredentials) {
			return baas.Session{}, &Error{Kind: KindUnauthenticated, Message: err.Error(), Err: err}
		}
		return baas.Session{}, s.backendFailure(ctx, err, "sign in")
	}

	s.auditor.AuthAttempt(ctx, withUser(c, sess.UserID).actor(), "signin", email, true, "")
	return sess, nil
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, c Caller, raw validate.Input) (baas.Session, error) {
	const action = "auth.signup"
	if err := s.limit(ctx, c, c.IP, action, ratelimit.Auth); err != nil {
		return baas.Session{}, err
	}

	in := validate.Input{
		"email":        raw["email"],
		"password":     raw["password"],
		"username":     raw["username"],
		"display_name": raw["display_name"],
	}
	dropEmpty(in, "display_name")
	blank(in, "email", "username")
	clean(in, sanitize.Email, "email")
	clean(in, sanitize.Username, "username")
	clean(in, sanitize.SingleLine, "display_name")
	dropEmpty(in, "display_name")
	email, _ := in["email"].(string)

	s.detect(ctx, c, raw, "", "email", "username", "display_name")

	out, err := s.check(ctx, c, action, validate.SignUp, in)
	if err != nil {
		s.auditor.AuthAttempt(ctx, c.actor(), "signup", email, false, "validation")
		return baas.Session{}, err
	}

	sess, err := s.auth.SignUp(ctx, baas.SignUpParams{
		Email:       out.String("email"),
		Password:    out.String("password"),
		Username:    out.String("username"),
		DisplayName: out.String("display_name"),
	})
	if err != nil {
		s.auditor.AuthAttempt(ctx, c.actor(), "signup", email, false, err.Error())
		if errors.Is(err, baas.ErrEmailTaken) || errors.Is(err, baas.ErrUsernameTaken) {
			return baas.Session{}, &Error{Kind: KindConflict, Message: err.Error(), Err: err}
		}
		return baas.Session{}, s.backendFailure(ctx, err, "sign up")
	}

	s.auditor.AuthAttempt(ctx, withUser(c, sess.UserID).actor(), "signup", email, true, "")
	return sess, nil
}

// SignOut ends the caller's session.
func (s *Service) SignOut(ctx context.Context, c Caller) error {
	if c.Token == "" {
		return &Error{Kind: KindUnauthenticated, Message: MsgNotAuthenticated}
	}
	if err := s.auth.SignOut(ctx, c.Token); err != nil {
		if errors.Is(err, baas.ErrUnauthenticated) {
			return &Error{Kind: KindUnauthenticated, Message: MsgNotAuthenticated, Err: err}
		}
		return s.backendFailure(ctx, err, "sign out")
	}
	s.auditor.SignOut(ctx, c.actor())
	return nil
}

func withUser(c Caller, userID string) Caller {
	c.User = &baas.User{ID: userID}
	return c
}
