// Package cmd implements the cobra command tree for the codegrant CLI: login
// and refresh against an app from the credentials file, app listing, shell
// completion and version output.
package cmd
