package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}
type userAgentKey struct{}

// UnknownClientIP is the identifier used when no client address can be derived.
const UnknownClientIP = "unknown"

// ClientIPOptions configures client IP extraction behavior.
type ClientIPOptions struct {
	// Headers are consulted in order; the first non-empty value wins. For
	// X-Forwarded-For only the first comma separated entry is used.
	// nil means DefaultClientIPHeaders.
	Headers []string

	// UseRemoteAddr falls back to the peer address before giving up with
	// UnknownClientIP. Off by default: behind the CDN every peer is the proxy.
	UseRemoteAddr bool
}

// DefaultClientIPHeaders is the lookup order when ClientIPOptions.Headers is nil.
var DefaultClientIPHeaders = []string{"X-Forwarded-For", "CF-Connecting-IP", "X-Real-IP"}

// ClientIP resolves the client identifier with default options and stores it,
// along with the User-Agent, in the request context.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions returns middleware that extracts the client IP using the
// given options.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithClientIP(r.Context(), extractClientAddr(r, opts))
			ctx = WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractClientAddr walks the configured headers in order. Values are trimmed
// but not validated as IPs; they are only ever used as rate limit and audit keys.
func extractClientAddr(r *http.Request, opts ClientIPOptions) string {
	headers := opts.Headers
	if headers == nil {
		headers = DefaultClientIPHeaders
	}

	for _, h := range headers {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		if strings.EqualFold(h, "X-Forwarded-For") {
			v, _, _ = strings.Cut(v, ",")
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	if opts.UseRemoteAddr && r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
	}

	return UnknownClientIP
}

// ClientIPFromContext returns the identifier stored by ClientIP, or "" when unset.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func UserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	if ua == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentKey{}, ua)
}
