package stream

import "errors"

// ErrEmptyStream means the backend closed the stream without sending a
// single chunk. It is distinct from a transport error: the connection was
// dropped silently rather than refused.
var ErrEmptyStream = errors.New("no streaming chunks received")

// ErrInvalidChunk is returned by ParseChunkJSON for malformed payloads,
// such as a bad line in a replay recording.
var ErrInvalidChunk = errors.New("invalid chunk payload")
