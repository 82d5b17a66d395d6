package diagnose

import "strings"

const sourceRedis = "redis"

var redisEvictionPolicies = map[string]bool{
	"noeviction":      true,
	"allkeys-lru":     true,
	"allkeys-lfu":     true,
	"allkeys-random":  true,
	"volatile-lru":    true,
	"volatile-lfu":    true,
	"volatile-random": true,
	"volatile-ttl":    true,
}

var redisOpenBinds = map[string]bool{
	"0.0.0.0": true,
	"*":       true,
	"::":      true,
	"-::*":    true,
}

func checkRedis(c *collector, lines []string) {
	openBind := -1
	authenticated := false

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		directive := strings.ToLower(fields[0])
		args := fields[1:]

		switch directive {
		case "bind":
			for _, a := range args {
				if redisOpenBinds[a] && openBind < 0 {
					openBind = i
				}
			}
		case "requirepass", "aclfile", "user":
			authenticated = true
		case "appendonly":
			if len(args) != 1 || !isYesNo(args[0]) {
				c.line(lines, i, SeverityError, sourceRedis, "appendonly must be yes or no")
			}
		case "maxmemory-policy":
			if len(args) != 1 || !redisEvictionPolicies[strings.ToLower(args[0])] {
				c.line(lines, i, SeverityError, sourceRedis, "unknown maxmemory-policy "+strings.Join(args, " "))
			}
		}
	}

	if openBind >= 0 && !authenticated {
		c.line(lines, openBind, SeverityWarning, sourceRedis,
			"bound to all interfaces without requirepass, aclfile or user")
	}
}

func isYesNo(s string) bool {
	s = strings.ToLower(strings.Trim(s, `"`))
	return s == "yes" || s == "no"
}
