package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	cookieName = "portal_session"
	tokenKey   = "token"

	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

// Cookies carries the opaque session token and pending flashes in a
// signed gorilla cookie. Nothing else about the user is stored
// client side.
type Cookies struct {
	store *sessions.CookieStore
}

// NewCookies signs cookies with secret. maxAge is in seconds.
func NewCookies(secret []byte, maxAge int, secure bool) *Cookies {
	store := sessions.NewCookieStore(secret)
	store.MaxAge(maxAge)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	return &Cookies{store: store}
}

// Store exposes the underlying cookie store for gothic's OAuth state.
func (c *Cookies) Store() sessions.Store {
	return c.store
}

// CookieSession is the decoded cookie of one request. Changes are
// kept in memory until Save.
type CookieSession struct {
	s     *sessions.Session
	r     *http.Request
	dirty bool
}

// Load decodes the request cookie. An undecodable cookie (rotated
// secret, tampering) is replaced with an empty one.
func (c *Cookies) Load(r *http.Request) *CookieSession {
	s, err := c.store.New(r, cookieName)
	if err != nil {
		s = sessions.NewSession(c.store, cookieName)
		opts := *c.store.Options
		s.Options = &opts
		s.IsNew = true
	}
	return &CookieSession{s: s, r: r}
}

// Token returns the session token or "".
func (c *Cookies) Token(r *http.Request) string {
	return c.Load(r).Token()
}

// AddFlash is Load, AddFlash and Save for handlers that change nothing
// else. Call it before writing the response status.
func (c *Cookies) AddFlash(w http.ResponseWriter, r *http.Request, kind, message string) error {
	cs := c.Load(r)
	cs.AddFlash(kind, message)
	return cs.Save(w)
}

func (cs *CookieSession) Token() string {
	token, _ := cs.s.Values[tokenKey].(string)
	return token
}

func (cs *CookieSession) SetToken(token string) {
	cs.s.Values[tokenKey] = token
	cs.dirty = true
}

// ClearToken drops the token but keeps the cookie so a flash can still
// be carried to the next page.
func (cs *CookieSession) ClearToken() {
	delete(cs.s.Values, tokenKey)
	cs.dirty = true
}

func (cs *CookieSession) AddFlash(kind, message string) {
	cs.s.AddFlash(message, kind)
	cs.dirty = true
}

// Flashes pops every pending message, success first.
func (cs *CookieSession) Flashes() []Flash {
	var out []Flash
	for _, kind := range []string{FlashSuccess, FlashError} {
		for _, v := range cs.s.Flashes(kind) {
			cs.dirty = true
			if msg, ok := v.(string); ok {
				out = append(out, Flash{Kind: kind, Message: msg})
			}
		}
	}
	return out
}

// Save writes the cookie if anything changed.
func (cs *CookieSession) Save(w http.ResponseWriter) error {
	if !cs.dirty {
		return nil
	}
	cs.dirty = false
	return cs.s.Save(cs.r, w)
}
