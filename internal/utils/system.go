package utils

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var (
	displayNameInvalid = regexp.MustCompile(`[^\p{L}\p{N} ._'-]`)
	displayNameSpaces  = regexp.MustCompile(`\s+`)
)

// GetUsername returns the current username.
func GetUsername() (string, error) {
	user, err := user.Current()
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// GetHostname returns the system hostname.
func GetHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return hostname, nil
}

// SanitizeDisplayName trims a display name, collapses runs of whitespace,
// and removes characters that have no business in a chat label.
func SanitizeDisplayName(name string) string {
	name = displayNameSpaces.ReplaceAllString(strings.TrimSpace(name), " ")
	name = displayNameInvalid.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)

	if len([]rune(name)) > 64 {
		name = strings.TrimSpace(string([]rune(name)[:64]))
	}
	return name
}

// DefaultDisplayName derives a display name from the system account.
// It falls back to the hostname, then to "anonymous".
func DefaultDisplayName() string {
	if username, err := GetUsername(); err == nil {
		if name := SanitizeDisplayName(username); name != "" {
			return name
		}
	}
	if hostname, err := GetHostname(); err == nil {
		if name := SanitizeDisplayName(hostname); name != "" {
			return name
		}
	}
	return "anonymous"
}
