package utils

import (
	"net"
	"net/http"
	"strings"
)

const defaultFilename = "download"

// ContentDisposition builds `attachment; filename="<name>"`, escaping the
// characters that would break out of the quoted string.
func ContentDisposition(filename string) string {
	return `attachment; filename="` + SanitizeFilename(filename) + `"`
}

func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(strings.TrimSpace(name))
	if name == "" {
		return defaultFilename
	}
	return name
}

// ClientIP is the rate-limit key for a request.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
