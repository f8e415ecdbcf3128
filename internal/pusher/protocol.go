package pusher

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Protocol event names.
const (
	eventConnectionEstablished = "pusher:connection_established"
	eventError                 = "pusher:error"
	eventPing                  = "pusher:ping"
	eventPong                  = "pusher:pong"
	eventSubscribe             = "pusher:subscribe"
	eventUnsubscribe           = "pusher:unsubscribe"
	eventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	eventSubscriptionError     = "pusher:subscription_error"
)

// protocolVersion is the Pusher wire protocol spoken by this client.
const protocolVersion = "7"

// frame is a single message on the wire in either direction.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// payload returns the frame data. Servers usually double-encode data as a
// JSON string; objects are passed through unchanged.
func (f frame) payload() json.RawMessage {
	if len(f.Data) == 0 || f.Data[0] != '"' {
		return f.Data
	}
	var s string
	if err := json.Unmarshal(f.Data, &s); err != nil {
		return f.Data
	}
	return json.RawMessage(s)
}

type connectionEstablished struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

type subscribeData struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

type unsubscribeData struct {
	Channel string `json:"channel"`
}

// Error is a pusher:error frame or a websocket close in the 4000-4299 range.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("pusher error %d: %s", e.Code, e.Message)
}

// Permanent reports whether the server asked the client not to reconnect.
func (e *Error) Permanent() bool {
	return e.Code >= 4000 && e.Code < 4100
}

// Immediate reports whether the client may reconnect without backing off.
func (e *Error) Immediate() bool {
	return e.Code >= 4200 && e.Code < 4300
}

// needsAuth reports whether channel requires a signed subscription.
func needsAuth(channel string) bool {
	return strings.HasPrefix(channel, "private-") || strings.HasPrefix(channel, "presence-")
}

func encodeFrame(event, channel string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s data: %w", event, err)
	}
	return json.Marshal(frame{Event: event, Channel: channel, Data: raw})
}
