package assist

import (
	"regexp"

	"github.com/dshills/mqlsp/internal/textpos"
)

// Trigger classifies the text before the cursor.
type Trigger int

const (
	TriggerNone Trigger = iota
	// TriggerStreamAppendKey follows an XADD command.
	TriggerStreamAppendKey
	// TriggerStreamReadOptions is inside an XREAD or XREADGROUP command.
	TriggerStreamReadOptions
	// TriggerExchangeType is the value of an exchange type setting.
	TriggerExchangeType
	// TriggerQueueType is the value of a queue type or binding setting.
	TriggerQueueType
	// TriggerSubject is a NATS subject position.
	TriggerSubject
)

// String returns the trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerStreamAppendKey:
		return "stream-append-key"
	case TriggerStreamReadOptions:
		return "stream-read-options"
	case TriggerExchangeType:
		return "exchange-type"
	case TriggerQueueType:
		return "queue-type"
	case TriggerSubject:
		return "subject"
	default:
		return "none"
	}
}

// CursorContext is the cursor-local view used by completion.
type CursorContext struct {
	Line    string
	Before  string
	After   string
	Trigger Trigger
}

// Checked in order; the first match wins.
var triggerPatterns = []struct {
	trigger Trigger
	re      *regexp.Regexp
}{
	{TriggerStreamAppendKey, regexp.MustCompile(`(?i)\bXADD\s+\S*$`)},
	{TriggerStreamReadOptions, regexp.MustCompile(`(?i)\bXREAD(GROUP)?\s.*$`)},
	{TriggerExchangeType, regexp.MustCompile(`(?i)\bexchange([._-]?type)?\s*[:=]\s*["']?[\w-]*$`)},
	{TriggerQueueType, regexp.MustCompile(`(?i)\b(x-queue-type|queue[._-]?type|binding)\s*[:=]\s*["']?[\w-]*$`)},
	{TriggerSubject, regexp.MustCompile(`(?i)(\b(filter_)?subjects?\s*[:=]\s*["'\[]?|\bnats\s+(pub|sub|req|request)\s+)[\w.*>$-]*$`)},
}

// Classify returns the trigger for the text before the cursor.
func Classify(before string) Trigger {
	for _, p := range triggerPatterns {
		if p.re.MatchString(before) {
			return p.trigger
		}
	}
	return TriggerNone
}

// Extract builds the cursor context for a zero-based line and a UTF-16
// character offset. Out-of-range positions are clamped, never an error.
func Extract(text string, line, character int) CursorContext {
	l := textpos.Line(text, line)
	off := textpos.ByteOffset(l, character)
	before := l[:off]
	return CursorContext{
		Line:    l,
		Before:  before,
		After:   l[off:],
		Trigger: Classify(before),
	}
}

func isWordByte(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// WordAt returns the word under the cursor. Words are runs of ASCII letters,
// digits, hyphen and underscore.
func WordAt(text string, line, character int) (string, bool) {
	l := textpos.Line(text, line)
	off := textpos.ByteOffset(l, character)

	start := off
	for start > 0 && isWordByte(l[start-1]) {
		start--
	}
	end := off
	for end < len(l) && isWordByte(l[end]) {
		end++
	}
	if start == end {
		return "", false
	}
	return l[start:end], true
}
