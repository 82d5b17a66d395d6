package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/dshills/mqlsp/internal/assist"
	"github.com/dshills/mqlsp/internal/diagnose"
	"github.com/dshills/mqlsp/internal/logging"
	"github.com/dshills/mqlsp/internal/queue"
	"github.com/dshills/mqlsp/internal/watch"
)

// ServerName is reported in the initialize result.
const ServerName = "mqlsp"

// TriggerCharacters request completion when typed.
var TriggerCharacters = []string{".", ":", "{", "["}

// Options configure a Session.
type Options struct {
	// Version is reported to the client.
	Version string
	// System, when not SystemNone, skips detection.
	System queue.System
	// DetectTimeout bounds detection during initialize.
	DetectTimeout time.Duration
	// CommandTimeout bounds each executed command.
	CommandTimeout time.Duration
	// Watch enables diagnostics for configuration files changed on disk.
	Watch bool
}

type sessionState int

const (
	stateCreated sessionState = iota
	stateInitialized
	stateShutdown
)

// Session coordinates one client connection. It owns the active system
// and the document store; both are discarded when the session ends.
type Session struct {
	conn     *Conn
	registry *queue.Registry
	docs     *DocumentStore
	engine   *diagnose.Engine
	opts     Options

	mu          sync.Mutex
	state       sessionState
	active      queue.System
	root        string
	generations map[DocumentURI]uint64
	watcher     *watch.Watcher

	pending sync.WaitGroup
}

// NewSession creates a session that publishes through conn.
func NewSession(conn *Conn, registry *queue.Registry, opts Options) *Session {
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = 5 * time.Second
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 15 * time.Second
	}
	return &Session{
		conn:        conn,
		registry:    registry,
		docs:        NewDocumentStore(),
		engine:      diagnose.New(),
		opts:        opts,
		generations: make(map[DocumentURI]uint64),
	}
}

// Serve runs the session over its connection until exit or EOF.
func (s *Session) Serve(ctx context.Context) error {
	defer s.Close()
	return s.conn.Serve(ctx, s)
}

// Close stops the watcher and waits for pending diagnostics.
func (s *Session) Close() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w != nil {
		if err := w.Close(); err != nil {
			logging.Warn("session", "close watcher: %v", err)
		}
	}
	s.pending.Wait()
}

// Active returns the active system.
func (s *Session) Active() queue.System {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Documents returns the session's document store.
func (s *Session) Documents() *DocumentStore {
	return s.docs
}

// Handle implements Handler.
func (s *Session) Handle(ctx context.Context, req *Request) (any, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch {
	case req.Method == "exit":
		return nil, ErrExit
	case state == stateCreated && req.Method != "initialize":
		if req.IsNotification() {
			return nil, nil
		}
		return nil, &RPCError{Code: CodeServerNotInitialized, Message: "server not initialized"}
	case state == stateShutdown:
		if req.IsNotification() {
			return nil, nil
		}
		return nil, &RPCError{Code: CodeInvalidRequest, Message: "server is shutting down"}
	}

	switch req.Method {
	case "initialize":
		if state != stateCreated {
			return nil, &RPCError{Code: CodeInvalidRequest, Message: "already initialized"}
		}
		return s.initialize(ctx, req.Params)
	case "initialized":
		s.initialized()
		return nil, nil
	case "shutdown":
		s.shutdown()
		return nil, nil
	case "textDocument/didOpen":
		return nil, s.didOpen(req.Params)
	case "textDocument/didChange":
		return nil, s.didChange(req.Params)
	case "textDocument/didSave":
		return nil, s.didSave(req.Params)
	case "textDocument/didClose":
		return nil, s.didClose(req.Params)
	case "textDocument/completion":
		return s.completion(req.Params), nil
	case "textDocument/hover":
		return s.hover(req.Params), nil
	case "workspace/executeCommand":
		return s.executeCommand(ctx, req.Params)
	}

	if req.IsNotification() {
		logging.Debug("session", "ignoring notification %s", req.Method)
		return nil, nil
	}
	return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
}

func (s *Session) initialize(ctx context.Context, raw json.RawMessage) (any, error) {
	var params InitializeParams
	if err := unmarshalParams(raw, &params); err != nil {
		return nil, err
	}

	root := URIToFilePath(params.RootURI)
	if root == "" {
		root = params.RootPath
	}
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = URIToFilePath(params.WorkspaceFolders[0].URI)
	}

	active := s.opts.System
	if active == queue.SystemNone {
		dctx, cancel := context.WithTimeout(ctx, s.opts.DetectTimeout)
		active = s.registry.Detect(dctx, root)
		cancel()
	}
	logging.Info("session", "initialized root=%q system=%s", root, active)

	s.mu.Lock()
	s.root = root
	s.active = active
	s.state = stateInitialized
	s.mu.Unlock()

	return &InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKindFull,
				Save:      &SaveOptions{IncludeText: true},
			},
			CompletionProvider:     &CompletionOptions{TriggerCharacters: TriggerCharacters},
			HoverProvider:          true,
			ExecuteCommandProvider: &ExecuteCommandOptions{Commands: CommandNames()},
		},
		ServerInfo: &InitializeServerInfo{Name: ServerName, Version: s.opts.Version},
	}, nil
}

func (s *Session) initialized() {
	s.mu.Lock()
	root, active := s.root, s.active
	s.mu.Unlock()

	if !s.opts.Watch || root == "" || active == queue.SystemNone {
		return
	}

	w, err := watch.New(root, watch.Config{
		Match:    func(path string) bool { return diagnose.Recognized(active, path) },
		OnChange: s.diskChanged,
	})
	if err != nil {
		logging.Warn("session", "workspace watch disabled: %v", err)
		return
	}

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
}

func (s *Session) shutdown() {
	s.mu.Lock()
	s.state = stateShutdown
	s.mu.Unlock()
	s.Close()
}

func (s *Session) didOpen(raw json.RawMessage) error {
	var params DidOpenTextDocumentParams
	if err := unmarshalParams(raw, &params); err != nil {
		return err
	}
	item := params.TextDocument

	if err := s.docs.Open(item.URI, item.Text, item.Version); err != nil {
		if !errors.Is(err, ErrDocumentAlreadyOpen) {
			return err
		}
		logging.Debug("session", "reopen %s", item.URI)
		s.docs.Close(item.URI)
		if err := s.docs.Open(item.URI, item.Text, item.Version); err != nil {
			return err
		}
	}
	s.scheduleDiagnostics(item.URI)
	return nil
}

func (s *Session) didChange(raw json.RawMessage) error {
	var params DidChangeTextDocumentParams
	if err := unmarshalParams(raw, &params); err != nil {
		return err
	}
	if len(params.ContentChanges) == 0 {
		return nil
	}

	// Full sync: the last change carries the whole document.
	text := params.ContentChanges[len(params.ContentChanges)-1].Text
	err := s.docs.Replace(params.TextDocument.URI, text, params.TextDocument.Version)
	if errors.Is(err, ErrStaleVersion) {
		logging.Debug("session", "stale change for %s v%d", params.TextDocument.URI, params.TextDocument.Version)
		return nil
	}
	return err
}

func (s *Session) didSave(raw json.RawMessage) error {
	var params DidSaveTextDocumentParams
	if err := unmarshalParams(raw, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI

	if params.Text != nil {
		if doc, ok := s.docs.Get(uri); ok && doc.Text != *params.Text {
			if err := s.docs.SetText(uri, *params.Text); err != nil {
				return err
			}
		}
	}
	s.scheduleDiagnostics(uri)
	return nil
}

func (s *Session) didClose(raw json.RawMessage) error {
	var params DidCloseTextDocumentParams
	if err := unmarshalParams(raw, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI

	if err := s.docs.Close(uri); err != nil && !errors.Is(err, ErrDocumentNotOpen) {
		return err
	}

	// Generations stay monotonic across close and reopen.
	s.mu.Lock()
	s.generations[uri]++
	s.publishLocked(uri, 0, nil)
	s.mu.Unlock()
	return nil
}

func (s *Session) completion(raw json.RawMessage) *CompletionList {
	list := &CompletionList{Items: []CompletionItem{}}

	var params CompletionParams
	if err := unmarshalParams(raw, &params); err != nil {
		logging.Debug("session", "completion: %v", err)
		return list
	}
	doc, ok := s.docs.Get(params.TextDocument.URI)
	if !ok {
		return list
	}

	pos := params.Position
	cursor := assist.Extract(doc.Text, pos.Line, pos.Character)
	kind := assist.KindHint(URIToFilePath(doc.URI))
	for _, item := range assist.Complete(s.Active(), cursor, kind) {
		list.Items = append(list.Items, CompletionItem{
			Label:      item.Label,
			Kind:       completionItemKind(item.Kind),
			Detail:     item.Detail,
			InsertText: item.InsertText,
		})
	}
	return list
}

func (s *Session) hover(raw json.RawMessage) *Hover {
	var params HoverParams
	if err := unmarshalParams(raw, &params); err != nil {
		logging.Debug("session", "hover: %v", err)
		return nil
	}
	doc, ok := s.docs.Get(params.TextDocument.URI)
	if !ok {
		return nil
	}

	pos := params.Position
	word, ok := assist.WordAt(doc.Text, pos.Line, pos.Character)
	if !ok {
		return nil
	}
	text, ok := assist.Hover(s.Active(), word)
	if !ok {
		return nil
	}
	return &Hover{Contents: MarkupContent{Kind: MarkupKindMarkdown, Value: text}}
}

// scheduleDiagnostics validates the current snapshot of uri off the read
// loop. A result is published only if no newer pass started meanwhile.
func (s *Session) scheduleDiagnostics(uri DocumentURI) {
	doc, ok := s.docs.Get(uri)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.state == stateShutdown {
		s.mu.Unlock()
		return
	}
	s.generations[uri]++
	gen := s.generations[uri]
	system := s.active
	s.pending.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pending.Done()
		found := s.engine.Run(system, string(uri), doc.Text)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generations[uri] != gen {
			logging.Debug("session", "dropping stale diagnostics for %s", uri)
			return
		}
		s.publishLocked(uri, doc.Version, found)
	}()
}

// validateNow runs a synchronous pass and publishes it, superseding any
// pass in flight.
func (s *Session) validateNow(uri DocumentURI, text string, version int) []Diagnostic {
	found := s.engine.Run(s.Active(), string(uri), text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[uri]++
	return s.publishLocked(uri, version, found)
}

func (s *Session) diskChanged(path string) {
	uri := FilePathToURI(path)
	if s.docs.IsOpen(uri) {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logging.Warn("session", "read %s: %v", path, err)
		return
	}
	s.validateNow(uri, string(data), 0)
}

// publishLocked sends a diagnostics set. s.mu must be held so that a
// stale pass cannot publish after a newer one.
func (s *Session) publishLocked(uri DocumentURI, version int, found []diagnose.Diagnostic) []Diagnostic {
	diags := toProtocol(found)
	err := s.conn.Notify("textDocument/publishDiagnostics", &PublishDiagnosticsParams{
		URI:         uri,
		Version:     version,
		Diagnostics: diags,
	})
	if err != nil {
		logging.Error("session", err, "publish diagnostics for %s", uri)
	}
	return diags
}

func toProtocol(found []diagnose.Diagnostic) []Diagnostic {
	diags := make([]Diagnostic, 0, len(found))
	for _, d := range found {
		diags = append(diags, Diagnostic{
			Range: Range{
				Start: Position{Line: d.Line, Character: d.StartChar},
				End:   Position{Line: d.Line, Character: d.EndChar},
			},
			Severity: diagnosticSeverity(d.Severity),
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	return diags
}

func completionItemKind(k assist.ItemKind) CompletionItemKind {
	switch k {
	case assist.KindFunction:
		return CompletionItemKindFunction
	case assist.KindField:
		return CompletionItemKindField
	case assist.KindKeyword:
		return CompletionItemKindKeyword
	case assist.KindEnum:
		return CompletionItemKindEnum
	case assist.KindValue:
		return CompletionItemKindValue
	default:
		return CompletionItemKindText
	}
}

func diagnosticSeverity(s diagnose.Severity) DiagnosticSeverity {
	if s == diagnose.SeverityWarning {
		return DiagnosticSeverityWarning
	}
	return DiagnosticSeverityError
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return &RPCError{Code: CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	return nil
}
