// Package queue defines the contract shared by the message-queue adapters.
//
// Each backing system (Redis Streams, RabbitMQ, NATS JetStream) is driven
// through its command-line tool. Adapters build argument vectors, run the
// tool through a Runner, and map the text or JSON the tool prints onto the
// common shapes in this package. Every failure comes back as an *Error whose
// Kind tells callers whether the tool was unavailable, printed something
// unexpected, addressed a missing queue, or ran past the caller's deadline.
//
// Detection probes adapters in priority order and settles on one System
// for the lifetime of a session.
package queue
