// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to return a controlled Transcript and to inspect which audio
// and Config reached the STT backend.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "hello robot"}}
//	tr, _ := p.Transcribe(ctx, wav, stt.Config{Language: "en-US"})
package mock

import (
	"context"
	"sync"

	"github.com/originalmmd/rift-robotics-ai/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is a copy of the WAV bytes passed to Transcribe.
	Audio []byte
	// Cfg is the Config passed to Transcribe.
	Cfg stt.Config
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when TranscribeErr is nil.
	Result stt.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Result, TranscribeErr.
func (p *Provider) Transcribe(ctx context.Context, wav []byte, cfg stt.Config) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	audioCopy := make([]byte, len(wav))
	copy(audioCopy, wav)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Audio: audioCopy, Cfg: cfg})
	if p.TranscribeErr != nil {
		return stt.Transcript{}, p.TranscribeErr
	}
	return p.Result, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
