// Package logging provides concrete implementations of the txretry.Logger interface.
//
// Available implementations:
//   - ConsoleLogger: slog with the tint handler, coloured on terminals
//   - JSONLogger: zap production encoder, one JSON object per line
//   - NullLogger: Discards all messages (useful for testing)
//
// All logger implementations are safe for concurrent use by multiple goroutines.
package logging
