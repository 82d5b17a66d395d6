// Package diagnose validates message-queue configuration documents.
//
// Rules are small predicate lists per backing system and run only on files
// recognised as that system's configuration format. Each pass returns a
// complete replacement set for the document.
package diagnose

import (
	"net/url"
	"path"
	"strings"

	"github.com/dshills/mqlsp/internal/queue"
	"github.com/dshills/mqlsp/internal/textpos"
)

// MaxDiagnostics caps the findings returned by one pass.
const MaxDiagnostics = 50

// Severity follows the protocol numbering.
type Severity int

const (
	SeverityError   Severity = 1
	SeverityWarning Severity = 2
)

// String returns the severity name.
func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one finding. Line and the character offsets are zero-based;
// characters count UTF-16 code units.
type Diagnostic struct {
	Line      int
	StartChar int
	EndChar   int
	Severity  Severity
	Source    string
	Message   string
}

// FileKind is the configuration format of a document.
type FileKind int

const (
	KindUnknown FileKind = iota
	KindRedisConf
	KindRabbitConf
	KindNATSConf
	KindStreamJSON
)

// Classify returns the file kind for a uri or path by its base name.
func Classify(uri string) FileKind {
	name := strings.ToLower(baseName(uri))
	switch {
	case name == "redis.conf",
		strings.HasPrefix(name, "redis-") && strings.HasSuffix(name, ".conf"),
		strings.HasSuffix(name, ".redis.conf"):
		return KindRedisConf
	case name == "rabbitmq.conf", strings.HasSuffix(name, ".rabbitmq.conf"):
		return KindRabbitConf
	case name == "nats.conf", name == "nats-server.conf", strings.HasSuffix(name, ".nats.conf"):
		return KindNATSConf
	case strings.HasSuffix(name, ".stream.json"):
		return KindStreamJSON
	}
	return KindUnknown
}

// System returns the backing system a file kind belongs to.
func (k FileKind) System() queue.System {
	switch k {
	case KindRedisConf:
		return queue.SystemStreamStore
	case KindRabbitConf:
		return queue.SystemBroker
	case KindNATSConf, KindStreamJSON:
		return queue.SystemPubSub
	}
	return queue.SystemNone
}

// Recognized reports whether the engine validates uri under system.
func Recognized(system queue.System, uri string) bool {
	k := Classify(uri)
	return k != KindUnknown && k.System() == system
}

func baseName(uri string) string {
	p := uri
	if u, err := url.Parse(uri); err == nil && u.Scheme != "" {
		p = u.Path
	}
	return path.Base(strings.ReplaceAll(p, "\\", "/"))
}

// Engine runs validation passes. The zero value is not usable; use New.
type Engine struct {
	max int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDiagnostics overrides the per-pass cap.
func WithMaxDiagnostics(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.max = n
		}
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{max: MaxDiagnostics}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run validates text for the active system. Unrecognised files, files of
// another system and SystemNone yield an empty, non-nil set.
func (e *Engine) Run(system queue.System, uri, text string) []Diagnostic {
	c := &collector{max: e.max, out: []Diagnostic{}}
	if !Recognized(system, uri) {
		return c.out
	}

	lines := textpos.Lines(text)
	switch Classify(uri) {
	case KindRedisConf:
		checkRedis(c, lines)
	case KindRabbitConf:
		checkRabbit(c, lines)
	case KindNATSConf:
		checkNATS(c, lines)
	case KindStreamJSON:
		checkStreamJSON(c, text, lines)
	}
	return c.out
}

// collector accumulates findings up to a cap. Findings past the cap are
// dropped silently.
type collector struct {
	max int
	out []Diagnostic
}

func (c *collector) full() bool {
	return len(c.out) >= c.max
}

// line records a finding spanning the whole of line n.
func (c *collector) line(lines []string, n int, sev Severity, source, msg string) {
	if c.full() {
		return
	}
	end := 0
	if n >= 0 && n < len(lines) {
		end = textpos.UTF16Len(lines[n])
	}
	c.out = append(c.out, Diagnostic{
		Line:     n,
		EndChar:  end,
		Severity: sev,
		Source:   source,
		Message:  msg,
	})
}
