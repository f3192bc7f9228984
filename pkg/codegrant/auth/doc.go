// Package auth runs the OAuth2 authorization code grant for native
// applications: a loopback callback listener, the flow that drives browser,
// listener and state validation, and the token endpoint client for code and
// refresh token exchanges.
package auth
