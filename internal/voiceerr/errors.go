// Package voiceerr defines the shared error taxonomy of the ASR, LLM, and
// TTS clients. The clients return ErrConnect and ErrTransport; ErrProtocol
// and ErrCallback are declared but not returned by any package.
package voiceerr

import "errors"

var (
	// ErrConnect indicates an upstream (ASR or TTS) could not be reached
	// when a client started or dialed.
	ErrConnect = errors.New("upstream connect failed")

	// ErrTransport indicates a mid-stream network failure: a read, write,
	// or liveness check on an already-open connection failed.
	ErrTransport = errors.New("upstream transport failure")

	// ErrProtocol indicates a malformed or unexpected message was
	// received; the offending frame is skipped, not fatal.
	ErrProtocol = errors.New("upstream protocol violation")

	// ErrCallback indicates a user-supplied callback returned an error or
	// exceeded its timeout; logged and swallowed, never fatal to a stream.
	ErrCallback = errors.New("callback failed or timed out")
)
