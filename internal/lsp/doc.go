// Package lsp implements the mqlsp language server.
//
// The server speaks JSON-RPC 2.0 over a Content-Length framed stream,
// normally stdio. It offers completion, hover, diagnostics and a set of
// queue commands for the message-queue system detected in the workspace.
//
// # Architecture
//
//   - Conn: JSON-RPC framing and dispatch
//   - Session: per-connection coordinator owning the active system
//   - DocumentStore: snapshots of open documents
//
// Notifications are applied in delivery order on the read loop. Requests
// run concurrently. Diagnostics for opened and saved documents are computed
// on their own goroutine and published when done; a per-document
// generation counter discards results superseded by a newer pass.
//
// # Usage
//
//	conn := lsp.NewConn(os.Stdin, os.Stdout)
//	session := lsp.NewSession(conn, registry, lsp.Options{Watch: true})
//	if err := session.Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Commands
//
// workspace/executeCommand accepts validate, test-connection, list-queues,
// queue-status, purge-queue, publish and subscribe. Adapter failures are
// returned as RequestFailed errors whose data carries the failure kind and
// the raw tool output.
package lsp
