package ttsclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeWAVChunk builds a minimal 44-byte RIFF/WAVE header followed by pcm.
func fakeWAVChunk(pcm []byte) []byte {
	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	copy(header[8:12], "WAVE")
	return append(header, pcm...)
}

func newFakeInworldServer(t *testing.T, chunks [][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		for _, pcm := range chunks {
			wav := fakeWAVChunk(pcm)
			line, _ := json.Marshal(map[string]any{
				"result": map[string]any{
					"audioContent": base64.StdEncoding.EncodeToString(wav),
				},
			})
			fmt.Fprintf(w, "%s\n", line)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
}

func TestSynthesizeYieldsRawPCMWithoutWAVHeader(t *testing.T) {
	want := [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}
	ts := newFakeInworldServer(t, want)
	defer ts.Close()

	c := New(DefaultConfig("creds", ts.URL))
	stream, err := c.Synthesize(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	defer stream.Close()

	var got [][]byte
	for {
		pcm, ok, err := stream.Next()
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, pcm)
	}

	if len(got) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if string(got[i]) != string(want[i]) {
			t.Errorf("chunk %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestSynthesizeEmptyTextShortCircuits(t *testing.T) {
	c := New(DefaultConfig("creds", "http://unused.invalid"))
	stream, err := c.Synthesize(context.Background(), "   ")
	if err != nil {
		t.Fatalf("expected nil error for empty text, got %v", err)
	}
	if stream != nil {
		t.Fatal("expected nil stream for empty text")
	}
}

func TestSynthesizeErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer ts.Close()

	c := New(DefaultConfig("creds", ts.URL))
	_, err := c.Synthesize(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
