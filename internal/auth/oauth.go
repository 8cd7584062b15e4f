package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
)

// ConfigureGoogle registers the Google provider and points gothic at
// store for its OAuth state cookie.
func ConfigureGoogle(key, secret, callbackURL string, store sessions.Store) {
	goth.UseProviders(google.New(key, secret, callbackURL, "email", "profile"))
	gothic.Store = store
}

// BeginOAuth redirects to the provider's consent page.
func BeginOAuth(w http.ResponseWriter, r *http.Request, provider string) {
	gothic.BeginAuthHandler(w, withProvider(r, provider))
}

// CompleteOAuth finishes the flow and returns the provider's e-mail.
func CompleteOAuth(w http.ResponseWriter, r *http.Request, provider string) (string, error) {
	user, err := gothic.CompleteUserAuth(w, withProvider(r, provider))
	if err != nil {
		return "", err
	}
	gothic.Logout(w, r)
	return user.Email, nil
}

// gothic reads the provider from the query string when the router does
// not expose it through gorilla/mux.
func withProvider(r *http.Request, provider string) *http.Request {
	q := r.URL.Query()
	q.Set("provider", provider)
	r2 := r.Clone(r.Context())
	r2.URL.RawQuery = q.Encode()
	return r2
}
