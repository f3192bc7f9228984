// Package output renders command results as tables, JSON, or YAML.
package output
