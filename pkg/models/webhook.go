package models

// WebhookPayload represents the incoming JSON payload from the LINE
// platform. Destination is the bot user id of the channel the events were
// delivered to; it is how a batch gets attributed to a shop.
type WebhookPayload struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is a single webhook event. Only follow, unfollow and text messages
// are acted on; everything else is logged and skipped.
type Event struct {
	Type       string          `json:"type"`
	Timestamp  int64           `json:"timestamp"`
	ReplyToken string          `json:"replyToken,omitempty"`
	Source     EventSource     `json:"source"`
	Message    *MessageContent `json:"message,omitempty"`
}

// EventSource identifies who triggered the event.
type EventSource struct {
	Type    string `json:"type"` // user, group, room
	UserID  string `json:"userId"`
	GroupID string `json:"groupId,omitempty"`
}

// MessageContent is the message block of a message event.
type MessageContent struct {
	ID   string `json:"id"`
	Type string `json:"type"` // text, image, sticker, ...
	Text string `json:"text,omitempty"`
}
