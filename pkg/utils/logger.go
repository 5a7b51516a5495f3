// Package utils provides small process-wide helpers shared by the CLI and sidecar.
package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger. debug=true yields a development logger
// (console encoding, debug level); debug=false yields a production logger
// (JSON encoding, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
