package devauthority

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const anyOrigin = "*"

var (
	errMixedWildcardOrigin = errors.New("authority.cors.mixed_wildcard")
	errInvalidOrigin       = errors.New("authority.cors.invalid_origin")
)

// preflightPolicy is the cross-origin policy for the /auth routes. Methods
// and request headers come from the mounted routes rather than a fixed list.
type preflightPolicy struct {
	allowAllOrigins bool
	origins         []string
	methods         []string
	headers         []string
	maxAge          time.Duration
}

// newPreflightPolicy resolves configured origins against routes. Session
// credentials travel as bearer tokens and JSON bodies, never cookies, so the
// policy does not allow credentials and a lone "*" is accepted.
func newPreflightPolicy(logger *zap.Logger, configuration Config, routes []authRoute) (preflightPolicy, error) {
	policy := preflightPolicy{maxAge: configuration.CORSMaxAge}

	seenOrigins := make(map[string]struct{})
	for _, raw := range configuration.AllowedOrigins {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if trimmed == anyOrigin {
			policy.allowAllOrigins = true
			continue
		}
		origin, loopback, err := parseOrigin(trimmed)
		if err != nil {
			return preflightPolicy{}, err
		}
		if _, seen := seenOrigins[origin]; seen {
			continue
		}
		if strings.HasPrefix(origin, "http://") && !loopback {
			logger.Warn("plain http cors origin",
				zap.String("code", "authority.cors.insecure_origin"),
				zap.String("origin", origin))
		}
		seenOrigins[origin] = struct{}{}
		policy.origins = append(policy.origins, origin)
	}
	if policy.allowAllOrigins && len(policy.origins) > 0 {
		return preflightPolicy{}, fmt.Errorf("%w: %q cannot be combined with %v", errMixedWildcardOrigin, anyOrigin, policy.origins)
	}
	sort.Strings(policy.origins)

	methodSet := map[string]struct{}{http.MethodOptions: {}}
	headers := []string{"Content-Type"}
	bearer := false
	for _, route := range routes {
		methodSet[route.method] = struct{}{}
		bearer = bearer || route.bearer
	}
	if bearer {
		headers = append(headers, "Authorization")
	}
	for method := range methodSet {
		policy.methods = append(policy.methods, method)
	}
	sort.Strings(policy.methods)
	policy.headers = headers
	return policy, nil
}

func (policy preflightPolicy) enabled() bool {
	return policy.allowAllOrigins || len(policy.origins) > 0
}

func (policy preflightPolicy) middleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: policy.allowAllOrigins,
		AllowOrigins:    policy.origins,
		AllowMethods:    policy.methods,
		AllowHeaders:    policy.headers,
		ExposeHeaders:   []string{"Retry-After"},
		MaxAge:          policy.maxAge,
	})
}

// parseOrigin canonicalizes an origin to scheme://host[:port] and reports
// whether it names a loopback host.
func parseOrigin(raw string) (string, bool, error) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", false, fmt.Errorf("%w: %s", errInvalidOrigin, raw)
	}
	scheme := strings.ToLower(parsed.Scheme)
	switch {
	case scheme != "http" && scheme != "https":
		return "", false, fmt.Errorf("%w: %s uses scheme %q", errInvalidOrigin, raw, parsed.Scheme)
	case parsed.User != nil:
		return "", false, fmt.Errorf("%w: %s carries user info", errInvalidOrigin, raw)
	case parsed.Path != "" && parsed.Path != "/":
		return "", false, fmt.Errorf("%w: %s carries a path", errInvalidOrigin, raw)
	case parsed.RawQuery != "" || parsed.Fragment != "" || parsed.ForceQuery:
		return "", false, fmt.Errorf("%w: %s carries a query or fragment", errInvalidOrigin, raw)
	}
	hostname := strings.ToLower(parsed.Hostname())
	loopback := hostname == "localhost"
	if address := net.ParseIP(hostname); address != nil {
		loopback = address.IsLoopback()
	}
	return scheme + "://" + strings.ToLower(parsed.Host), loopback, nil
}
