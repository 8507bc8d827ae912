package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/ephemera/internal/actions"
	"github.com/keithlinneman/ephemera/internal/httpmw"
	"github.com/keithlinneman/ephemera/internal/log"
	"github.com/keithlinneman/ephemera/internal/validate"
)

// MaxJSONBody caps every non-upload request body.
const MaxJSONBody = 64 << 10

const (
	msgBadBody  = "Invalid request body"
	msgNotFound = "Not found"
)

// API implements the ephemera JSON endpoints
type API struct {
	svc    *actions.Service
	logger log.Logger
}

// NewAPI creates a new API handler
func NewAPI(svc *actions.Service, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		svc:    svc,
		logger: logger,
	}
}

// RegisterRoutes attaches the API endpoints to the router
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(api.withCaller)

		r.Group(func(r chi.Router) {
			r.Use(httpmw.Scope("auth"))
			r.Post("/auth/signin", api.HandleSignIn)
			r.Post("/auth/signup", api.HandleSignUp)
			r.Post("/auth/signout", api.HandleSignOut)
		})

		r.Group(func(r chi.Router) {
			r.Use(httpmw.Scope("pages"))
			r.Post("/pages", api.HandleCreatePage)
			r.Patch("/pages/{id}", api.HandleUpdatePage)
			r.Delete("/pages/{id}", api.HandleDeletePage)
			r.Get("/users/{username}/pages", api.HandleUserPages)
		})

		r.Group(func(r chi.Router) {
			r.Use(httpmw.Scope("markers"))
			r.Get("/pages/{id}/markers", api.HandlePageMarkers)
			r.Post("/markers", api.HandleCreateMarker)
			r.Patch("/markers/{id}", api.HandleUpdateMarker)
			r.Delete("/markers/{id}", api.HandleDeleteMarker)
		})

		r.Group(func(r chi.Router) {
			r.Use(httpmw.Scope("timelines"))
			r.Get("/pages/{id}/timelines", api.HandlePageTimelines)
			r.Put("/pages/{id}/timelines", api.HandleAssignPageTimelines)
			r.Get("/timelines", api.HandleTimelines)
			r.Post("/timelines", api.HandleCreateTimeline)
			r.Patch("/timelines/{id}", api.HandleUpdateTimeline)
			r.Delete("/timelines/{id}", api.HandleDeleteTimeline)
		})
	})
}

// NotFound answers unmatched routes with the API error shape.
func (api *API) NotFound(w http.ResponseWriter, r *http.Request) {
	api.writeMessage(r.Context(), w, http.StatusNotFound, msgNotFound)
}

type callerKey struct{}

// withCaller resolves the request's identity once. A bad or expired token
// leaves the caller anonymous; actions that need a user reject it themselves.
func (api *API) withCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		c := actions.Caller{
			IP:        httpmw.ClientIPFromContext(ctx),
			UserAgent: httpmw.UserAgentFromContext(ctx),
			Token:     bearerToken(r),
		}
		if c.IP == "" {
			c.IP = httpmw.UnknownClientIP
		}
		if c.UserAgent == "" {
			c.UserAgent = r.UserAgent()
		}

		if c.Token != "" {
			u, err := api.svc.Authenticate(ctx, c.Token)
			switch {
			case err == nil:
				c.User = u
				ctx = log.WithContext(ctx, log.FromContext(ctx).With("user_id", u.ID))
			case isKind(err, actions.KindUnauthenticated):
				// anonymous
			default:
				api.writeError(ctx, w, err)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, callerKey{}, c)))
	})
}

func callerFrom(ctx context.Context) actions.Caller {
	c, _ := ctx.Value(callerKey{}).(actions.Caller)
	return c
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// errorResponse carries the request and trace ids next to the message so a
// failure report can be matched to its logs.
type errorResponse struct {
	Error string `json:"error"`
	httpmw.Correlation
}

func statusFor(kind actions.ErrorKind) int {
	switch kind {
	case actions.KindValidation:
		return http.StatusBadRequest
	case actions.KindUnauthenticated:
		return http.StatusUnauthorized
	case actions.KindNotFound:
		return http.StatusNotFound
	case actions.KindConflict:
		return http.StatusConflict
	case actions.KindRateLimited:
		return http.StatusTooManyRequests
	case actions.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isKind(err error, kind actions.ErrorKind) bool {
	ae, ok := actions.AsError(err)
	return ok && ae.Kind == kind
}

func (api *API) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ae, ok := actions.AsError(err)
	if !ok {
		api.logger.Error(ctx, err, "unclassified action error")
		api.writeMessage(ctx, w, http.StatusInternalServerError, actions.MsgUpstream)
		return
	}
	if ae.Kind == actions.KindRateLimited && ae.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(ae.RetryAfter.Seconds()))))
	}
	api.writeMessage(ctx, w, statusFor(ae.Kind), ae.Message)
}

func (api *API) writeMessage(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	api.writeJSON(ctx, w, status, errorResponse{Error: msg, Correlation: httpmw.CorrelationFromContext(ctx)})
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}

// decodeInput reads a JSON object body. An empty body or a JSON null
// yields an empty Input.
func (api *API) decodeInput(w http.ResponseWriter, r *http.Request) (validate.Input, bool) {
	var in validate.Input
	if !api.decodeBody(w, r, &in) {
		return nil, false
	}
	if in == nil {
		in = validate.Input{}
	}
	return in, true
}

// decodeBody reads a JSON value into v, tolerating an empty body.
func (api *API) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		api.logger.Debug(r.Context(), "rejected request body", "error", err)
		api.writeMessage(r.Context(), w, http.StatusBadRequest, msgBadBody)
		return false
	}
	return true
}
