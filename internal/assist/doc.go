// Package assist implements cursor-context extraction, completion and hover
// for message-queue configuration and command text.
//
// Everything here is a pure function of its inputs and static tables. No
// function performs I/O, so the session can call them directly from request
// handlers.
package assist
