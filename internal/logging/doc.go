// Package logging provides structured logging utilities for the awayreply application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Logger construction from level/format settings (text or JSON)
//   - PII sanitization (recipient anonymization)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "responder.cycle")
//	logger.Info("cycle finished",
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("autoreply sent",
//	    logging.UserHash(recipient))
//
// # Security Considerations
//
//   - Recipient addresses are hashed to prevent PII leakage while allowing correlation
//   - OAuth tokens are never logged directly
package logging
