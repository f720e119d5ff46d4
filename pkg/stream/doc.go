// Package stream reassembles a backend's streamed response into one
// AggregatedResponse.
//
// Backend payloads are first mapped onto the versioned Chunk schema by an
// adapter (FromGenAI for the Gemini SDK, ParseChunkJSON for raw JSON). The
// aggregator then consumes the chunk sequence on a reader goroutine,
// forwarding every classified part to a Sink as it arrives, and builds the
// final candidates once the sequence is exhausted.
package stream
