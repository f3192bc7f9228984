// Package client calls the provider's resource API with tokens obtained by an
// authorization code flow.
package client
