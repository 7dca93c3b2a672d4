package testutil

import (
	"context"
	"sync"

	"github.com/GabrielNunesIT/motion-relay/internal/model"
	"github.com/GabrielNunesIT/motion-relay/internal/transport"
)

// FakeTransport records calls and returns configured errors. Safe for
// concurrent use.
type FakeTransport struct {
	name string

	mu           sync.Mutex
	OpenErr      error
	HandshakeErr error
	TextErr      error
	FileErr      error

	// Gate, when set, blocks SendText and SendFile until it is closed.
	Gate chan struct{}

	opens      int
	handshakes int
	closes     int
	wipes      int
	texts      []string
	files      []model.CapturedAsset
}

var _ transport.Transport = (*FakeTransport)(nil)

// NewFakeTransport creates a FakeTransport named name.
func NewFakeTransport(name string) *FakeTransport {
	return &FakeTransport{name: name}
}

func (f *FakeTransport) Name() string { return f.name }

func (f *FakeTransport) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f.OpenErr
}

func (f *FakeTransport) Handshake(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handshakes++
	return f.HandshakeErr
}

func (f *FakeTransport) SendText(ctx context.Context, body, subject string) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, subject+"|"+body)
	return f.TextErr
}

func (f *FakeTransport) SendFile(ctx context.Context, asset model.CapturedAsset) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, asset)
	return f.FileErr
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *FakeTransport) Wipe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wipes++
}

func (f *FakeTransport) wait() {
	f.mu.Lock()
	gate := f.Gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

// SetFileErr changes the error returned by SendFile.
func (f *FakeTransport) SetFileErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FileErr = err
}

// Texts returns the recorded messages as "subject|body".
func (f *FakeTransport) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// Files returns the recorded file sends.
func (f *FakeTransport) Files() []model.CapturedAsset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CapturedAsset(nil), f.files...)
}

// Calls returns the number of Open, Handshake, Close and Wipe calls.
func (f *FakeTransport) Calls() (opens, handshakes, closes, wipes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.handshakes, f.closes, f.wipes
}
