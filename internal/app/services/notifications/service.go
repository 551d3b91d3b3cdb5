// Package notifications routes events to open WebSocket pages and falls back
// to FCM push for sessions with nothing open.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/halogen-labs/halogen/internal/app/domain/notification"
	"github.com/halogen-labs/halogen/internal/app/metrics"
	"github.com/halogen-labs/halogen/internal/app/storage"
	"github.com/halogen-labs/halogen/pkg/logger"
)

// EventSink receives events for one open page, typically a WebSocket
// connection's write pump.
type EventSink interface {
	SendEvent(event string, data json.RawMessage)
}

// eventName labels the push payload fanned out to pages.
const eventName = "NewMessage"

// Stores is the persistence surface the service needs.
type Stores interface {
	storage.SessionStore
	storage.DeviceTokenStore
}

type sessionPages struct {
	pages map[int]EventSink
	next  int
}

// Service tracks open pages per session and delivers notifications.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*sessionPages

	stores Stores
	sender Sender
	queue  chan notification.DeviceMessage
	log    *logger.Logger
}

// New creates the service. sender may be nil, push delivery is then disabled
// and only open pages are notified.
func New(stores Stores, sender Sender, log *logger.Logger) *Service {
	return &Service{
		sessions: make(map[string]*sessionPages),
		stores:   stores,
		sender:   sender,
		queue:    make(chan notification.DeviceMessage, 256),
		log:      log,
	}
}

// AddPage registers an open page for a session and returns its removal
// function.
func (s *Service) AddPage(sessionToken string, sink EventSink) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionToken]
	if sess == nil {
		sess = &sessionPages{pages: make(map[int]EventSink)}
		s.sessions[sessionToken] = sess
	}
	key := sess.next
	sess.next++
	sess.pages[key] = sink

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sess, ok := s.sessions[sessionToken]; ok {
			delete(sess.pages, key)
			if len(sess.pages) == 0 {
				delete(s.sessions, sessionToken)
			}
		}
	}
}

// OpenPages reports how many pages a session has open.
func (s *Service) OpenPages(sessionToken string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[sessionToken]; ok {
		return len(sess.pages)
	}
	return 0
}

// pageEvent is the frame sent to open pages. It mirrors the push payload so
// clients render the same notification either way.
type pageEvent struct {
	Data         json.RawMessage   `json:"data,omitempty"`
	Notification *pageNotification `json:"notification,omitempty"`
}

type pageNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// notifyPages sends the payload to every open page of a session. It reports
// whether any page was open.
func (s *Service) notifyPages(sessionToken string, payload notification.Payload) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionToken]
	if !ok || len(sess.pages) == 0 {
		return false
	}
	event := pageEvent{Data: payload.Data}
	if payload.Title != "" || payload.Body != "" {
		event.Notification = &pageNotification{Title: payload.Title, Body: payload.Body}
	}
	raw, err := json.Marshal(event)
	if err != nil {
		s.log.WithError(err).Errorf("failed to encode page event")
		return false
	}
	for _, sink := range sess.pages {
		sink.SendEvent(eventName, raw)
		metrics.RecordPushDelivery("ws", "sent")
	}
	return true
}

// NotifyUser delivers a payload to every live session of a user, including
// the sender's own other sessions. When no session has a page open the
// payload is pushed to each of the user's registered device tokens instead.
func (s *Service) NotifyUser(ctx context.Context, userID string, payload notification.Payload) error {
	sessionTokens, err := s.stores.ListUserSessionTokens(ctx, userID, time.Now())
	if err != nil {
		return err
	}
	delivered := false
	for _, sessionToken := range sessionTokens {
		if s.notifyPages(sessionToken, payload) {
			delivered = true
		}
	}
	if delivered {
		return nil
	}

	deviceTokens, err := s.stores.ListUserDeviceTokens(ctx, userID)
	if err != nil {
		return err
	}
	for _, tok := range deviceTokens {
		s.enqueue(notification.DeviceMessage{Token: tok, Payload: payload})
	}
	return nil
}

func (s *Service) enqueue(msg notification.DeviceMessage) {
	if s.sender == nil {
		return
	}
	select {
	case s.queue <- msg:
	default:
		metrics.RecordPushDelivery("fcm", "dropped")
		s.log.Warnf("push queue full, dropping message")
	}
}

// Run consumes the push queue until ctx is cancelled. Invalid tokens are
// deleted; server errors with a retry delay re-queue the message.
func (s *Service) Run(ctx context.Context) {
	if s.sender == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			s.deliver(ctx, msg)
		}
	}
}

func (s *Service) deliver(ctx context.Context, msg notification.DeviceMessage) {
	err := s.sender.Send(ctx, msg)
	if err == nil {
		metrics.RecordPushDelivery("fcm", "sent")
		return
	}

	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		metrics.RecordPushDelivery("fcm", "error")
		s.log.WithError(err).Errorf("push delivery failed")
		return
	}

	switch {
	case sendErr.InvalidToken:
		metrics.RecordPushDelivery("fcm", "invalid_token")
		if err := s.stores.DeleteDeviceToken(ctx, msg.Token); err != nil {
			s.log.WithError(err).Errorf("failed to delete stale device token")
		}
	case sendErr.RetryAfter > 0:
		metrics.RecordPushDelivery("fcm", "retry")
		go func() {
			select {
			case <-ctx.Done():
			case <-time.After(sendErr.RetryAfter):
				s.enqueue(msg)
			}
		}()
	default:
		metrics.RecordPushDelivery("fcm", "error")
		s.log.WithError(err).Errorf("push delivery failed")
	}
}
