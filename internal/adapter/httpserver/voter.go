package httpserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/classpoll/internal/platform/config"
)

// ClientIDHeader carries an explicit voter identity on the HTTP vote surface.
const ClientIDHeader = "X-Client-ID"

const (
	voterSessionName      = "classpoll-voter"
	voterSessionKey       = "voter_id"
	fingerprintAgentLimit = 50
)

// VoterResolver derives the identity that deduplicates HTTP votes.
type VoterResolver interface {
	ResolveVoter(c echo.Context) (voterID string, ok bool)
}

// HeaderResolver trusts a client-supplied header.
type HeaderResolver struct {
	Header string
}

func (r HeaderResolver) ResolveVoter(c echo.Context) (string, bool) {
	id := strings.TrimSpace(c.Request().Header.Get(r.Header))
	return id, id != ""
}

// FingerprintResolver derives an identity from the real IP and the user agent.
// It always resolves, so it belongs at the end of a chain.
type FingerprintResolver struct{}

func (FingerprintResolver) ResolveVoter(c echo.Context) (string, bool) {
	agent := []rune(c.Request().UserAgent())
	if len(agent) > fingerprintAgentLimit {
		agent = agent[:fingerprintAgentLimit]
	}
	return c.RealIP() + "_" + string(agent), true
}

// CookieResolver keeps a random voter id in a signed session cookie and issues
// one on first use.
type CookieResolver struct {
	Store sessions.Store
}

func (r CookieResolver) ResolveVoter(c echo.Context) (string, bool) {
	session, err := r.Store.Get(c.Request(), voterSessionName)
	if err != nil {
		slog.DebugContext(c.Request().Context(), "Discarding unreadable voter cookie", "error", err)
	}

	if id, ok := session.Values[voterSessionKey].(string); ok && id != "" {
		return id, true
	}

	id := uuid.NewString()
	session.Values[voterSessionKey] = id
	if err := session.Save(c.Request(), c.Response()); err != nil {
		slog.WarnContext(c.Request().Context(), "Failed to save voter cookie", "error", err)
		return "", false
	}
	return id, true
}

// ChainResolver returns the first identity any of its resolvers produces.
type ChainResolver []VoterResolver

func (chain ChainResolver) ResolveVoter(c echo.Context) (string, bool) {
	for _, r := range chain {
		if id, ok := r.ResolveVoter(c); ok {
			return id, true
		}
	}
	return "", false
}

// NewVoterResolver builds the resolver chain: header, then the cookie when
// enabled, then the fingerprint.
func NewVoterResolver(cfg *config.Config) VoterResolver {
	chain := ChainResolver{HeaderResolver{Header: ClientIDHeader}}
	if cfg.VoterCookieEnabled {
		chain = append(chain, CookieResolver{Store: newSessionStore(cfg)})
	}
	return append(chain, FingerprintResolver{})
}

func newSessionStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
