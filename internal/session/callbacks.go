package session

// OnASRFinal is invoked once per final ASR transcript, before the reply
// turn is spawned. The client uses this event to clear any buffered audio.
type OnASRFinal func(text string)

// OnToken is invoked once per LLM token as it streams in.
type OnToken func(token string)

// OnAudioStart is invoked once per segment, the first time synthesized
// audio bytes are available for it.
type OnAudioStart func()

// OnAudioChunk is invoked once per raw PCM16LE audio chunk.
type OnAudioChunk func(pcm []byte)

// OnSegmentDone is invoked once a segment's audio has finished streaming.
type OnSegmentDone func()

// OnTurnDone is invoked once the whole turn (all segments) has completed
// without being interrupted by barge-in.
type OnTurnDone func()

// Callbacks bundles the outbound event hooks a Session drives during a
// turn. Any field left nil is simply not invoked.
type Callbacks struct {
	OnASRFinal    OnASRFinal
	OnToken       OnToken
	OnAudioStart  OnAudioStart
	OnAudioChunk  OnAudioChunk
	OnSegmentDone OnSegmentDone
	OnTurnDone    OnTurnDone
}
