package ttsclient

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
)

// wavHeaderSize is the fixed RIFF/WAVE header length each inworld chunk
// carries; stripping it yields raw PCM16LE samples ready to forward to the
// client.
const wavHeaderSize = 44

// AudioStream is a lazy, finite, single-shot, cancellable sequence of raw
// PCM16LE audio chunks (SPEC_FULL.md §4.3). Call Next repeatedly until ok
// is false, then Close.
type AudioStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc
	done    bool
}

func newAudioStream(body io.ReadCloser, cancel context.CancelFunc) *AudioStream {
	return &AudioStream{body: body, scanner: bufio.NewScanner(body), cancel: cancel}
}

type synthesisLine struct {
	Result struct {
		AudioContent string `json:"audioContent"`
	} `json:"result"`
}

// Next advances the stream, returning the next chunk of raw PCM16LE audio.
// ok is false once the stream has ended; err is non-nil only on a genuine
// transport failure.
func (s *AudioStream) Next() (pcm []byte, ok bool, err error) {
	if s.done {
		return nil, false, nil
	}
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var sl synthesisLine
		if json.Unmarshal(line, &sl) != nil || sl.Result.AudioContent == "" {
			continue
		}
		wavBytes, err := base64.StdEncoding.DecodeString(sl.Result.AudioContent)
		if err != nil || len(wavBytes) <= wavHeaderSize {
			continue
		}
		return wavBytes[wavHeaderSize:], true, nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// Close releases the underlying HTTP connection and cancels the request
// context. Safe to call multiple times.
func (s *AudioStream) Close() error {
	s.done = true
	if s.cancel != nil {
		s.cancel()
	}
	return s.body.Close()
}
