package events

// Gateway frame types exchanged over the /ws socket.
const (
	FrameSubscribe    = "subscribe"
	FrameUnsubscribe  = "unsubscribe"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameEvent        = "event"
	FrameError        = "error"
)

// ClientFrame is sent by gateway clients.
type ClientFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// ServerFrame is sent by the gateway.
type ServerFrame struct {
	Type     string    `json:"type"`
	Topic    string    `json:"topic,omitempty"`
	Envelope *Envelope `json:"envelope,omitempty"`
	Error    string    `json:"error,omitempty"`
}
