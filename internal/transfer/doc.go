// Package transfer implements the pingdrop sender and receiver.
//
// # Sender
//
// Client runs a stop-and-wait ARQ loop: METADATA (seq 0), DATA (seq 1..N)
// and FIN (seq N+1) are sent one at a time, and each waits for an ACK with
// the same sequence before the next is sent. A frame that is not acknowledged
// within AckTimeout is resent verbatim; after MaxRetries sends the transfer
// aborts with an *AbortError. A background listener reads the socket and
// hands matching ACKs to the send loop through a one-slot channel. Because
// only one frame is ever unacknowledged, the sequence number alone identifies
// which frame an ACK belongs to.
//
// File chunks are read through a bounded look-ahead buffer so reading from
// disk is decoupled from waiting for ACKs without holding the whole file.
//
// # Receiver
//
// Server runs a single receive loop. DATA chunks are written to the output
// file as soon as every earlier chunk is present; chunks that arrive early
// wait in memory. Every DATA frame is acknowledged, including duplicates, so
// a lost ACK only costs the sender a retry. A FIN closes the file. If chunks
// are missing at that point the partial file is kept and the gap is logged.
//
// Invalid METADATA and unsafe filenames are dropped without an ACK, so a
// hostile sender learns nothing.
package transfer
