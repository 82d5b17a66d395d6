package diagnose

import (
	"strings"

	"github.com/tidwall/gjson"
)

const sourceNATS = "nats"

func checkNATS(c *collector, lines []string) {
	depth := 0
	hasListen := false
	hasStoreDir := false
	jetstreamLine := -1

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if strings.HasPrefix(line, "//") || line == "" {
			continue
		}

		key, value := natsKeyValue(line)
		switch {
		case depth == 0 && (key == "port" || key == "listen"):
			hasListen = true
		case depth == 0 && key == "jetstream":
			if jetstreamEnabled(value) {
				jetstreamLine = i
			}
		}
		if key == "store_dir" || strings.Contains(value, "store_dir") {
			hasStoreDir = true
		}

		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth < 0 {
			depth = 0
		}
	}

	if !hasListen {
		c.line(lines, 0, SeverityError, sourceNATS, "missing top-level port or listen")
	}
	if jetstreamLine >= 0 && !hasStoreDir {
		c.line(lines, jetstreamLine, SeverityWarning, sourceNATS, "jetstream enabled without store_dir")
	}
}

// natsKeyValue splits "key: value", "key = value", "key value" and
// "key {" forms.
func natsKeyValue(line string) (string, string) {
	end := strings.IndexAny(line, " \t:={")
	if end < 0 {
		return strings.ToLower(line), ""
	}
	key := strings.ToLower(line[:end])
	value := strings.TrimLeft(line[end:], " \t:=")
	return key, strings.Trim(strings.TrimSpace(value), `"'`)
}

func jetstreamEnabled(value string) bool {
	switch strings.ToLower(value) {
	case "false", "disabled", "off", "no":
		return false
	}
	return true
}

func checkStreamJSON(c *collector, text string, lines []string) {
	if !gjson.Valid(text) {
		c.line(lines, 0, SeverityError, sourceNATS, "invalid JSON")
		return
	}
	doc := gjson.Parse(text)
	if !doc.IsObject() {
		c.line(lines, 0, SeverityError, sourceNATS, "stream definition must be a JSON object")
		return
	}
	if name := doc.Get("name"); !name.Exists() || name.String() == "" {
		c.line(lines, keyLine(lines, "name"), SeverityError, sourceNATS, "stream definition missing name")
	}
	if subjects := doc.Get("subjects"); !subjects.Exists() || len(subjects.Array()) == 0 {
		c.line(lines, keyLine(lines, "subjects"), SeverityError, sourceNATS, "stream definition missing subjects")
	}
}

// keyLine returns the line holding a JSON key, or 0.
func keyLine(lines []string, key string) int {
	quoted := `"` + key + `"`
	for i, l := range lines {
		if strings.Contains(l, quoted) {
			return i
		}
	}
	return 0
}
