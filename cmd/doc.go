// Package cmd implements the command-line interface for awayreply.
//
// This package provides the following commands:
//   - serve: Start the OAuth callback server and, once authorized, the autoresponder
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
// Every serve flag has an environment variable fallback, and a .env file in
// the working directory is loaded first.
package cmd
