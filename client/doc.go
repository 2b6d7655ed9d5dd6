// Package client is the Go consumer of the account service API. It keeps the
// short-lived access token in memory and lets the HTTP cookie jar carry the
// HttpOnly refresh cookie. When concurrent requests discover the access token
// has expired, a coordinator collapses their renewals into a single exchange
// and replays every request with the fresh token; if the renewal itself fails,
// all of them fail identically and the session is torn down.
package client
