package agent

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/harun/bounter/pkg/stream"
)

// ReplayPrefix selects the replay backend: "replay:<path>" streams the
// chunks recorded in <path>.
const ReplayPrefix = "replay:"

// ReplayProvider streams recorded raw JSON chunks from disk. A recording is
// JSON Lines with one chunk per line; blank lines separate turns. The turn
// is picked by how many model messages the request history already holds,
// so a recorded tool loop replays in order.
type ReplayProvider struct{}

// NewReplayProvider creates a replay provider
func NewReplayProvider() *ReplayProvider {
	return &ReplayProvider{}
}

// Provider returns the provider name
func (p *ReplayProvider) Provider() string {
	return ProviderReplay
}

// Stream yields the chunks of the current turn. A turn past the end of the
// recording yields nothing.
func (p *ReplayProvider) Stream(ctx context.Context, request LLMRequest) iter.Seq2[*stream.Chunk, error] {
	return func(yield func(*stream.Chunk, error) bool) {
		path := strings.TrimPrefix(strings.TrimSpace(request.Model), ReplayPrefix)
		turns, err := readRecording(path)
		if err != nil {
			yield(nil, newTransportError(ProviderReplay, request.Model, 0, err))
			return
		}

		turn := 0
		for _, m := range request.Messages {
			if m.Role == RoleModel {
				turn++
			}
		}
		if turn >= len(turns) {
			return
		}
		for _, chunk := range turns[turn] {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func readRecording(path string) ([][]*stream.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}

	var (
		turns   [][]*stream.Chunk
		current []*stream.Chunk
		lineNo  int
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			if len(current) > 0 {
				turns = append(turns, current)
				current = nil
			}
			continue
		}
		chunk, err := stream.ParseChunkJSON(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		current = append(current, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	if len(current) > 0 {
		turns = append(turns, current)
	}
	return turns, nil
}
