package diagnose

import (
	"strconv"
	"strings"
)

const sourceRabbit = "rabbitmq"

func checkRabbit(c *collector, lines []string) {
	for i, raw := range lines {
		if c.full() {
			return
		}
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "%") {
			continue
		}
		if isClosing(line) {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			if !strings.Contains(line, "{") {
				c.line(lines, i, SeverityError, sourceRabbit, "expected key = value")
			}
			continue
		}

		key := strings.TrimSpace(line[:eq])
		value := stripTrailingComment(strings.TrimSpace(line[eq+1:]))

		switch {
		case key == "loopback_users.guest" && strings.EqualFold(value, "false"):
			c.line(lines, i, SeverityWarning, sourceRabbit, "guest user can connect from remote hosts")
		case strings.HasPrefix(key, "listeners.tcp.") || strings.HasPrefix(key, "listeners.ssl."):
			if !validListenerPort(value) {
				c.line(lines, i, SeverityError, sourceRabbit, "listener port must be numeric: "+value)
			}
		}
	}
}

// isClosing reports lines made only of closing brackets and separators.
func isClosing(line string) bool {
	return strings.Trim(line, "}]).,; \t") == ""
}

func stripTrailingComment(v string) string {
	if idx := strings.Index(v, " #"); idx >= 0 {
		v = v[:idx]
	}
	return strings.TrimSpace(v)
}

// validListenerPort accepts "5672", "127.0.0.1:5672" and "::1:5672".
func validListenerPort(v string) bool {
	port := v
	if idx := strings.LastIndexByte(v, ':'); idx >= 0 {
		port = v[idx+1:]
	}
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n <= 65535
}
