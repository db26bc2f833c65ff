// Package testutil provides test helpers shared by pitwatch packages:
// assertions, temp file helpers, and byte samples in legacy charsets for
// the text repair tests.
package testutil

import (
	"io"
	"log/slog"
)

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
