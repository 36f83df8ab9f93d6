package line

// Flex message payload structures for the LINE Messaging API. Only the
// pieces the notification cards use are modelled; every field is a named
// optional with omitempty rather than a free-form map.

// Message is one entry of the messages array in a push or reply request.
type Message struct {
	Type     string  `json:"type"` // text, flex
	Text     string  `json:"text,omitempty"`
	AltText  string  `json:"altText,omitempty"`
	Contents *Bubble `json:"contents,omitempty"`
}

// Bubble is a single-bubble flex container.
type Bubble struct {
	Type   string `json:"type"` // always "bubble"
	Hero   *Image `json:"hero,omitempty"`
	Body   *Box   `json:"body,omitempty"`
	Footer *Box   `json:"footer,omitempty"`
}

// Box lays out child components vertically or horizontally.
type Box struct {
	Type     string      `json:"type"` // always "box"
	Layout   string      `json:"layout"`
	Spacing  string      `json:"spacing,omitempty"`
	Margin   string      `json:"margin,omitempty"`
	Contents []Component `json:"contents"`
}

// Component is anything placeable inside a box.
type Component struct {
	Type     string      `json:"type"` // text, separator, box, button
	Text     string      `json:"text,omitempty"`
	Weight   string      `json:"weight,omitempty"`
	Size     string      `json:"size,omitempty"`
	Color    string      `json:"color,omitempty"`
	Wrap     bool        `json:"wrap,omitempty"`
	Flex     *int        `json:"flex,omitempty"`
	Margin   string      `json:"margin,omitempty"`
	Layout   string      `json:"layout,omitempty"`
	Spacing  string      `json:"spacing,omitempty"`
	Contents []Component `json:"contents,omitempty"`
	Style    string      `json:"style,omitempty"`
	Height   string      `json:"height,omitempty"`
	Action   *Action     `json:"action,omitempty"`
}

// Image is used as the bubble hero block.
type Image struct {
	Type        string `json:"type"` // always "image"
	URL         string `json:"url"`
	Size        string `json:"size,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	AspectMode  string `json:"aspectMode,omitempty"`
}

// Action is a tap action, only URI actions are used here.
type Action struct {
	Type  string `json:"type"` // always "uri"
	Label string `json:"label"`
	URI   string `json:"uri"`
}

// NewTextMessage builds a plain text message.
func NewTextMessage(text string) Message {
	return Message{Type: "text", Text: text}
}
