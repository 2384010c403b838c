package faults

import "strings"

// sanitizeRule maps an error-message substring to a short human phrase.
// Checked in order; the first match wins.
type sanitizeRule struct {
	substring string
	message   string
}

var sanitizeRules = []sanitizeRule{
	{"connection", "Could not reach the service. Check your network connection and try again."},
	{"timeout", "The request timed out. Try again in a moment."},
	{"timed out", "The request timed out. Try again in a moment."},
	{"401", "Authentication failed. Check the configured API key."},
	{"unauthorized", "Authentication failed. Check the configured API key."},
	{"403", "Access to the service was denied."},
	{"forbidden", "Access to the service was denied."},
	{"404", "The requested resource was not found."},
	{"not found", "The requested resource was not found."},
	{"429", "The service is rate limiting requests. Wait a moment and retry."},
	{"rate limit", "The service is rate limiting requests. Wait a moment and retry."},
	{"500", "The service reported an internal error. Try again later."},
	{"internal server", "The service reported an internal error. Try again later."},
}

// Sanitize maps a raw collaborator error message to a user-facing phrase.
// Connection, timeout, auth, rate-limit and server-error shapes become short
// human messages; anything else passes through verbatim. Stack traces and
// wire-level detail must never reach the end user.
func Sanitize(msg string) string {
	if msg == "" {
		return "An unexpected error occurred."
	}
	lower := strings.ToLower(msg)
	for _, rule := range sanitizeRules {
		if strings.Contains(lower, rule.substring) {
			return rule.message
		}
	}
	return msg
}
