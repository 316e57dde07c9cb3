package common

import "strings"

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. It returns "" when the header is missing or malformed.
func BearerToken(header string) string {
	if len(header) <= len(BearerPrefix) || !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(BearerPrefix):])
}
