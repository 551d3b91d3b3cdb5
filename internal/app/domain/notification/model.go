// Package notification defines push payloads shared by the in-app and FCM
// delivery channels.
package notification

import "encoding/json"

// Payload is what gets delivered: opaque data for the client plus an
// optional human-readable notification.
type Payload struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Title string          `json:"title,omitempty"`
	Body  string          `json:"body,omitempty"`
}

// DeviceMessage is a payload addressed to one FCM registration token.
type DeviceMessage struct {
	Token   string
	Payload Payload
}
