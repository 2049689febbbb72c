package pipeline

import (
	"os"
	"strconv"
	"strings"
)

// The pipeline reaches its model through a local Ollama server. The
// address comes from OLLAMA_HOST in every shape users write it in
// (host, host:port, scheme://host:port, bracketed IPv6), and the bridge
// normalizes it once before handing it to the foreign side.

const (
	defaultOllamaHost = "127.0.0.1"
	defaultOllamaPort = 11434
)

var loopbackHosts = map[string]bool{
	"127.0.0.1": true,
	"localhost": true,
	"::1":       true,
}

// NormalizeOllamaBaseURL turns a raw Ollama address into a canonical
// scheme://host:port base URL. An empty raw address falls back to
// OLLAMA_HOST, then to the local default. With loopbackOnly set, any
// non-loopback host is clamped to 127.0.0.1.
func NormalizeOllamaBaseURL(raw string, loopbackOnly bool) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv("OLLAMA_HOST"))
	}
	if raw == "" {
		raw = defaultOllamaHost + ":" + strconv.Itoa(defaultOllamaPort)
	}

	scheme := "http"
	if rest, ok := strings.CutPrefix(raw, "https://"); ok {
		scheme = "https"
		raw = rest
	} else if rest, ok := strings.CutPrefix(raw, "http://"); ok {
		raw = rest
	}

	host, port := splitHostPort(raw)
	if loopbackOnly && !loopbackHosts[host] {
		host = defaultOllamaHost
	}
	return scheme + "://" + formatHost(host) + ":" + strconv.Itoa(port)
}

// OllamaHostArg strips the scheme from a base URL, producing the
// host:port form the Ollama CLI and client env expect.
func OllamaHostArg(baseURL string) string {
	raw := strings.TrimPrefix(baseURL, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	host, port := splitHostPort(raw)
	return formatHost(host) + ":" + strconv.Itoa(port)
}

// splitHostPort separates host and port leniently: missing, empty, or
// unparsable ports fall back to the default, and an unbracketed IPv6
// literal is treated as a bare host.
func splitHostPort(raw string) (string, int) {
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultOllamaHost, defaultOllamaPort
	}

	if strings.HasPrefix(raw, "[") {
		end := strings.IndexByte(raw, ']')
		if end < 0 {
			return strings.ToLower(strings.TrimPrefix(raw, "[")), defaultOllamaPort
		}
		host := strings.ToLower(raw[1:end])
		rest := raw[end+1:]
		if p, ok := strings.CutPrefix(rest, ":"); ok {
			return host, parsePort(p)
		}
		return host, defaultOllamaPort
	}

	switch strings.Count(raw, ":") {
	case 0:
		return strings.ToLower(raw), defaultOllamaPort
	case 1:
		i := strings.IndexByte(raw, ':')
		host := strings.ToLower(raw[:i])
		if host == "" {
			host = defaultOllamaHost
		}
		return host, parsePort(raw[i+1:])
	default:
		// Unbracketed IPv6 literal, no port to split off.
		return strings.ToLower(raw), defaultOllamaPort
	}
}

func parsePort(s string) int {
	p, err := strconv.Atoi(s)
	if err != nil || p <= 0 || p > 65535 {
		return defaultOllamaPort
	}
	return p
}

// formatHost brackets IPv6 literals for use in URLs.
func formatHost(host string) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return "[" + host + "]"
	}
	return host
}
