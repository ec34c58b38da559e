package broadcast

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/KaraAliOsman/Trabajo-3/internal/metrics"
)

type fakeSession struct {
	id   string
	name string
	fail error

	mu  sync.Mutex
	got []Message
}

func (f *fakeSession) ID() string          { return f.id }
func (f *fakeSession) DisplayName() string { return f.name }

func (f *fakeSession) Deliver(m Message) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, m)
	return nil
}

func (f *fakeSession) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.got...)
}

func newTestChannel() (*Channel, *LocalRegistry) {
	logger := log.New(io.Discard, "", 0)
	reg := NewLocalRegistry(logger)
	return NewChannel(reg, logger, metrics.New()), reg
}

func TestOnConnectNotifiesOnlyNewSession(t *testing.T) {
	ch, reg := newTestChannel()
	existing := []*fakeSession{{id: "a"}, {id: "b"}, {id: "c"}}
	for _, s := range existing {
		if err := ch.OnConnect(s); err != nil {
			t.Fatalf("connect %s: %v", s.id, err)
		}
	}

	newcomer := &fakeSession{id: "d"}
	if err := ch.OnConnect(newcomer); err != nil {
		t.Fatalf("connect: %v", err)
	}

	want := Message{Username: SystemUsername, Message: ConnectedNotice}
	if got := newcomer.messages(); len(got) != 1 || got[0] != want {
		t.Fatalf("newcomer got %+v, want one notice", got)
	}
	for _, s := range existing {
		if got := s.messages(); len(got) != 1 {
			t.Fatalf("session %s got %d messages, want only its own notice", s.id, len(got))
		}
	}
	if reg.Len() != 4 {
		t.Fatalf("registry holds %d sessions, want 4", reg.Len())
	}
}

// racingSession broadcasts on behalf of another operator the moment it is
// handed its first message.
type racingSession struct {
	fakeSession
	ch    *Channel
	other Session
	raced bool
}

func (r *racingSession) Deliver(m Message) error {
	if !r.raced {
		r.raced = true
		if _, err := r.ch.OnMessage(r.other, Inbound{Username: "Flight", Message: "T-minus 10"}); err != nil {
			return err
		}
	}
	return r.fakeSession.Deliver(m)
}

func TestOnConnectNoticeComesFirst(t *testing.T) {
	ch, reg := newTestChannel()
	other := &fakeSession{id: "a"}
	_ = ch.OnConnect(other)

	newcomer := &racingSession{fakeSession: fakeSession{id: "b"}, ch: ch, other: other}
	if err := ch.OnConnect(newcomer); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := ch.OnMessage(other, Inbound{Username: "Flight", Message: "go"}); err != nil {
		t.Fatal(err)
	}

	got := newcomer.messages()
	want := Message{Username: SystemUsername, Message: ConnectedNotice}
	if len(got) != 2 || got[0] != want || got[1].Message != "go" {
		t.Fatalf("newcomer got %+v, want the notice first", got)
	}
	if reg.Len() != 2 {
		t.Fatalf("registry holds %d sessions, want 2", reg.Len())
	}
}

func TestOnConnectRegistersDespiteFailedNotice(t *testing.T) {
	ch, reg := newTestChannel()
	if err := ch.OnConnect(&fakeSession{id: "a", fail: ErrSessionClosed}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected notice error, got %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry holds %d sessions, want 1", reg.Len())
	}
}

func TestOnMessageDropsBlankMessages(t *testing.T) {
	ch, _ := newTestChannel()
	a, b := &fakeSession{id: "a"}, &fakeSession{id: "b"}
	_ = ch.OnConnect(a)
	_ = ch.OnConnect(b)

	for _, text := range []string{"", "   ", "\t\n"} {
		n, err := ch.OnMessage(a, Inbound{Username: "Flight", Message: text})
		if !errors.Is(err, ErrEmptyMessage) || n != 0 {
			t.Fatalf("message %q: n=%d err=%v", text, n, err)
		}
	}
	if len(a.messages()) != 1 || len(b.messages()) != 1 {
		t.Fatal("blank messages must not be broadcast")
	}
}

func TestOnMessageBroadcastsToEveryone(t *testing.T) {
	ch, _ := newTestChannel()
	sender, other := &fakeSession{id: "a"}, &fakeSession{id: "b"}
	_ = ch.OnConnect(sender)
	_ = ch.OnConnect(other)

	n, err := ch.OnMessage(sender, Inbound{Username: "Flight", Message: "  Go for launch "})
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if n != 2 {
		t.Fatalf("delivered to %d sessions, want 2", n)
	}
	want := Message{Username: "Flight", Message: "Go for launch"}
	for _, s := range []*fakeSession{sender, other} {
		got := s.messages()
		if len(got) != 2 || got[1] != want {
			t.Fatalf("session %s got %+v", s.id, got)
		}
	}
}

func TestOnMessageDefaultsUsername(t *testing.T) {
	ch, _ := newTestChannel()
	named := &fakeSession{id: "a", name: "Capcom"}
	anon := &fakeSession{id: "b"}
	_ = ch.OnConnect(named)
	_ = ch.OnConnect(anon)

	if _, err := ch.OnMessage(named, Inbound{Message: "copy"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ch.OnMessage(anon, Inbound{Message: "roger"}); err != nil {
		t.Fatal(err)
	}
	got := anon.messages()
	if got[1].Username != "Capcom" || got[2].Username != DefaultUsername {
		t.Fatalf("unexpected usernames: %+v", got)
	}
}

func TestOnDisconnectStopsDelivery(t *testing.T) {
	ch, reg := newTestChannel()
	a, b := &fakeSession{id: "a"}, &fakeSession{id: "b"}
	_ = ch.OnConnect(a)
	_ = ch.OnConnect(b)
	ch.OnDisconnect(b)

	if _, err := ch.OnMessage(a, Inbound{Username: "Flight", Message: "hold"}); err != nil {
		t.Fatal(err)
	}
	if len(b.messages()) != 1 {
		t.Fatalf("disconnected session received %+v", b.messages())
	}
	if len(a.messages()) != 2 {
		t.Fatalf("remaining session got %+v", a.messages())
	}
	if reg.Len() != 1 {
		t.Fatalf("registry holds %d sessions", reg.Len())
	}
}

func TestFanOutSkipsFailingSessions(t *testing.T) {
	_, reg := newTestChannel()
	ok := &fakeSession{id: "ok"}
	reg.Register(ok)
	reg.Register(&fakeSession{id: "slow", fail: ErrSessionBackpressure})

	if n := reg.FanOut(Message{Username: "x", Message: "y"}); n != 1 {
		t.Fatalf("delivered %d, want 1", n)
	}
	if len(ok.messages()) != 1 {
		t.Fatal("healthy session missed the message")
	}
}

func TestRegistryConcurrentMutation(t *testing.T) {
	_, reg := newTestChannel()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s := &fakeSession{id: fmt.Sprintf("s%d", i)}
			reg.Register(s)
			reg.FanOut(Message{Username: "x", Message: "y"})
			reg.Unregister(s.id)
		}(i)
		go func() {
			defer wg.Done()
			reg.FanOut(Message{Username: "z", Message: "w"})
		}()
	}
	wg.Wait()
	if reg.Len() != 0 {
		t.Fatalf("registry not empty: %d", reg.Len())
	}
}
