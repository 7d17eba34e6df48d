package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const identityKey = "identity"

// TokenVerifier checks a bearer token and returns the user id it was issued for.
type TokenVerifier interface {
	VerifySubject(token string) (uuid.UUID, error)
}

type Resolver struct {
	verifier     TokenVerifier
	cookieName   string
	cookieMaxAge time.Duration
}

func NewResolver(verifier TokenVerifier, cookieName string, cookieMaxAge time.Duration) *Resolver {
	return &Resolver{
		verifier:     verifier,
		cookieName:   cookieName,
		cookieMaxAge: cookieMaxAge,
	}
}

func (r *Resolver) CookieName() string {
	return r.cookieName
}

// Resolve returns the user identity when a valid bearer token is present and
// the anonymous identity from the client cookie otherwise. An expired or
// malformed token counts as no token.
func (r *Resolver) Resolve(req *http.Request) (Identity, error) {
	if userID, ok := r.bearerSubject(req); ok {
		return User(userID), nil
	}

	clientID, ok := r.ClientID(req)
	if !ok {
		return Identity{}, ErrMissingClientID
	}
	return Anonymous(clientID), nil
}

// ClientID reads the anonymous client cookie. Values that are not UUIDs are
// treated as absent.
func (r *Resolver) ClientID(req *http.Request) (uuid.UUID, bool) {
	cookie, err := req.Cookie(r.cookieName)
	if err != nil || cookie.Value == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (r *Resolver) bearerSubject(req *http.Request) (uuid.UUID, bool) {
	header := req.Header.Get("Authorization")
	if header == "" || r.verifier == nil {
		return uuid.Nil, false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return uuid.Nil, false
	}

	userID, err := r.verifier.VerifySubject(parts[1])
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

// ClientCookieMiddleware mints the client cookie on first contact. The new
// value is also attached to the in-flight request so handlers further down
// the chain see the same anonymous identity the browser will send next time.
func (r *Resolver) ClientCookieMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, ok := r.ClientID(c.Request)
		if !ok {
			clientID = uuid.New()
			cookie := &http.Cookie{
				Name:     r.cookieName,
				Value:    clientID.String(),
				Path:     "/",
				MaxAge:   int(r.cookieMaxAge.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			}
			http.SetCookie(c.Writer, cookie)
			c.Request.AddCookie(&http.Cookie{Name: r.cookieName, Value: clientID.String()})
		}
		c.Next()
	}
}

// Middleware resolves the identity once per request and stores it in the gin
// context. It never aborts; handlers decide what an absent identity means.
func (r *Resolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := r.Resolve(c.Request); err == nil {
			c.Set(identityKey, id)
		}
		c.Next()
	}
}

// FromContext returns the identity stored by Middleware.
func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
