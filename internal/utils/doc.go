// Package utils provides shared utility functions for the cipherroom CLI.
//
// # System Utilities
//
// Functions for interacting with the operating system:
//   - GetUsername: returns the current system username
//   - GetHostname: returns the system hostname
//   - DefaultDisplayName: picks a display name for a fresh identity
//
// # String Utilities
//
// Formatting helpers for lists, byte sizes and message timestamps, plus
// group name validation.
//
// # I/O Utilities
//
//   - ReadStdin: reads a piped message or file from standard input
//
// # Terminal Utilities
//
//   - ReadSecret: prompts for an invite secret without echo
//   - IsTerminal: checks if stdin is a terminal
package utils
