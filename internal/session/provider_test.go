package session

import (
	"context"
	"fmt"
	"sync"
)

// fakeProvider is an in-memory identity provider that emits notifications
// synchronously the way a real client library does.
type fakeProvider struct {
	mu        sync.Mutex
	stored    *Session
	getErr    error
	getGate   chan struct{}
	getCalls  int
	signInErr error
	signUpErr error
	calls     []string
	listeners map[int]func(Event)
	next      int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{listeners: make(map[int]func(Event))}
}

func (p *fakeProvider) GetSession(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	p.getCalls++
	gate := p.getGate
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stored, p.getErr
}

func (p *fakeProvider) OnChange(fn func(Event)) func() {
	p.mu.Lock()
	id := p.next
	p.next++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	p.record("signin")
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	return p.establish(email), nil
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	p.record("signup")
	if p.signUpErr != nil {
		return nil, p.signUpErr
	}
	return p.establish(email), nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.record("signout")
	p.mu.Lock()
	p.stored = nil
	p.mu.Unlock()
	p.emit(Event{Kind: EventSignedOut})
	return nil
}

func (p *fakeProvider) establish(email string) *Session {
	s := &Session{AccessToken: "token-" + email, UserID: "id-" + email, Email: email}
	p.mu.Lock()
	p.stored = s
	p.mu.Unlock()
	p.emit(Event{Kind: EventSignedIn, Session: s})
	return s
}

func (p *fakeProvider) emit(ev Event) {
	p.mu.Lock()
	fns := make([]func(Event), 0, len(p.listeners))
	for i := 0; i < p.next; i++ {
		if fn, ok := p.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (p *fakeProvider) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakeProvider) listenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

func sessionFor(n int) *Session {
	return &Session{AccessToken: fmt.Sprintf("t%d", n), UserID: fmt.Sprintf("u%d", n)}
}
