package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/halogen-labs/halogen/internal/app/domain/notification"
	"github.com/halogen-labs/halogen/internal/app/domain/user"
	"github.com/halogen-labs/halogen/internal/app/storage/memory"
	"github.com/halogen-labs/halogen/pkg/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	events []json.RawMessage
}

func (r *recordingSink) SendEvent(_ string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []notification.DeviceMessage
	errs []error
}

func (f *fakeSender) Send(_ context.Context, msg notification.DeviceMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var sessionSeq int

func newSession(t *testing.T, store *memory.Store, userID string) string {
	t.Helper()
	ctx := context.Background()
	sessionSeq++
	token := fmt.Sprintf("session-%s-%d", userID, sessionSeq)
	sess := user.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return token
}

func newUser(t *testing.T, store *memory.Store) string {
	t.Helper()
	u, err := store.CreateUser(context.Background())
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func registerToken(t *testing.T, store *memory.Store, sessionToken, fcmToken string) {
	t.Helper()
	tok := user.DeviceToken{Token: fcmToken, SessionToken: sessionToken}
	if err := store.UpsertDeviceToken(context.Background(), tok); err != nil {
		t.Fatalf("register device token: %v", err)
	}
}

func TestNotifyUserPrefersOpenPages(t *testing.T) {
	store := memory.New()
	sender := &fakeSender{}
	svc := New(store, sender, logger.NewDefault("test"))

	userID := newUser(t, store)
	token := newSession(t, store, userID)
	registerToken(t, store, token, "fcm-1")

	sink := &recordingSink{}
	remove := svc.AddPage(token, sink)
	defer remove()

	payload := notification.Payload{Data: json.RawMessage(`{"room":"r1"}`)}
	if err := svc.NotifyUser(context.Background(), userID, payload); err != nil {
		t.Fatalf("notify user: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 page event, got %d", sink.count())
	}
	if len(svc.queue) != 0 {
		t.Fatalf("expected no queued push when a page is open, got %d", len(svc.queue))
	}
}

func TestPageEventCarriesNotificationFields(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, logger.NewDefault("test"))

	userID := newUser(t, store)
	token := newSession(t, store, userID)

	sink := &recordingSink{}
	remove := svc.AddPage(token, sink)
	defer remove()

	payload := notification.Payload{
		Data:  json.RawMessage(`{"room":"r1"}`),
		Title: "New message",
		Body:  "hello there",
	}
	if err := svc.NotifyUser(context.Background(), userID, payload); err != nil {
		t.Fatalf("notify user: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 page event, got %d", sink.count())
	}

	var event struct {
		Data         json.RawMessage `json:"data"`
		Notification *struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"notification"`
	}
	sink.mu.Lock()
	raw := sink.events[0]
	sink.mu.Unlock()
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("decode event %s: %v", raw, err)
	}
	if string(event.Data) != `{"room":"r1"}` {
		t.Fatalf("unexpected event data %s", event.Data)
	}
	if event.Notification == nil || event.Notification.Title != "New message" || event.Notification.Body != "hello there" {
		t.Fatalf("unexpected notification %+v", event.Notification)
	}
}

func TestNotifyUserFallsBackToPush(t *testing.T) {
	store := memory.New()
	sender := &fakeSender{}
	svc := New(store, sender, logger.NewDefault("test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	userID := newUser(t, store)
	token := newSession(t, store, userID)
	registerToken(t, store, token, "fcm-1")

	payload := notification.Payload{Title: "hi", Data: json.RawMessage(`{}`)}
	if err := svc.NotifyUser(ctx, userID, payload); err != nil {
		t.Fatalf("notify user: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sender.sentCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("push was never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sender.mu.Lock()
	got := sender.sent[0]
	sender.mu.Unlock()
	if got.Token != "fcm-1" {
		t.Fatalf("expected token fcm-1, got %q", got.Token)
	}
	if got.Payload.Title != "hi" {
		t.Fatalf("expected title to survive, got %q", got.Payload.Title)
	}
}

func TestNotifyUserWithoutDeviceTokensIsNoop(t *testing.T) {
	store := memory.New()
	svc := New(store, &fakeSender{}, logger.NewDefault("test"))

	userID := newUser(t, store)
	newSession(t, store, userID)
	if err := svc.NotifyUser(context.Background(), userID, notification.Payload{}); err != nil {
		t.Fatalf("notify user: %v", err)
	}
}

func TestInvalidTokenIsDeleted(t *testing.T) {
	store := memory.New()
	sender := &fakeSender{errs: []error{&SendError{InvalidToken: true}}}
	svc := New(store, sender, logger.NewDefault("test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	userID := newUser(t, store)
	token := newSession(t, store, userID)
	registerToken(t, store, token, "fcm-stale")

	if err := svc.NotifyUser(ctx, userID, notification.Payload{}); err != nil {
		t.Fatalf("notify user: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := store.GetSessionDeviceToken(ctx, token); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stale device token was not deleted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerErrorRequeuesAfterDelay(t *testing.T) {
	store := memory.New()
	sender := &fakeSender{errs: []error{&SendError{RetryAfter: 10 * time.Millisecond}}}
	svc := New(store, sender, logger.NewDefault("test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	userID := newUser(t, store)
	token := newSession(t, store, userID)
	registerToken(t, store, token, "fcm-1")

	if err := svc.NotifyUser(ctx, userID, notification.Payload{}); err != nil {
		t.Fatalf("notify user: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sender.sentCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a retry delivery, got %d sends", sender.sentCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotifyUserFansOutToAllDeviceTokens(t *testing.T) {
	store := memory.New()
	sender := &fakeSender{}
	svc := New(store, sender, logger.NewDefault("test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	userID := newUser(t, store)
	tokA := newSession(t, store, userID)
	tokB := newSession(t, store, userID)
	registerToken(t, store, tokA, "fcm-a")
	registerToken(t, store, tokB, "fcm-b")

	if err := svc.NotifyUser(ctx, userID, notification.Payload{Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("notify user: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sender.sentCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a push per device token, got %d", sender.sentCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	sender.mu.Lock()
	got := map[string]bool{}
	for _, m := range sender.sent {
		got[m.Token] = true
	}
	sender.mu.Unlock()
	if !got["fcm-a"] || !got["fcm-b"] {
		t.Fatalf("expected both tokens pushed, got %v", got)
	}
}

func TestNotifyUserSkipsPushWhenAnyPageIsOpen(t *testing.T) {
	store := memory.New()
	sender := &fakeSender{}
	svc := New(store, sender, logger.NewDefault("test"))

	userID := newUser(t, store)
	tokA := newSession(t, store, userID)
	tokB := newSession(t, store, userID)

	sink := &recordingSink{}
	remove := svc.AddPage(tokA, sink)
	defer remove()
	registerToken(t, store, tokB, "fcm-b")

	if err := svc.NotifyUser(context.Background(), userID, notification.Payload{Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("notify user: %v", err)
	}

	if sink.count() != 1 {
		t.Fatalf("expected open page to get the event, got %d", sink.count())
	}
	if len(svc.queue) != 0 {
		t.Fatalf("expected no queued push while a page is open, got %d", len(svc.queue))
	}
}

func TestRemovePageDropsSessionEntry(t *testing.T) {
	svc := New(memory.New(), nil, logger.NewDefault("test"))
	remove := svc.AddPage("tok", &recordingSink{})
	if svc.OpenPages("tok") != 1 {
		t.Fatal("page not registered")
	}
	remove()
	if svc.OpenPages("tok") != 0 {
		t.Fatal("page not removed")
	}
}
