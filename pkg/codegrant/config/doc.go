// Package config loads the codegrant settings file and the provider's
// application credentials export.
package config
