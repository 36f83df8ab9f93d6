package notify

import (
	"petgroom-gateway/internal/line"
	"petgroom-gateway/internal/models"
)

// CardInput carries everything a notification card can show. Absent fields
// fall back to literal placeholders; a row is never dropped.
type CardInput struct {
	PetName     string
	ServiceType string
	Date        string
	Time        string
	Reason      string // decline only
	Message     string // optional free-text block
	ImageURL    string // optional hero image
	LiffURL     string // call-to-action target; empty hides the footer
}

const placeholder = "未提供"

// NewCardInput fills a CardInput from an appointment plus the shop's LIFF
// deep link.
func NewCardInput(shop *models.Shop, appt *models.Appointment) CardInput {
	in := CardInput{
		PetName:     appt.PetName,
		ServiceType: appt.ServiceType,
		Date:        appt.Date,
		Time:        appt.Time,
	}
	if shop.LiffID != "" {
		in.LiffURL = "https://liff.line.me/" + shop.LiffID + "?shopId=" + shop.ID
	}
	return in
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

// ConfirmationCard announces that a pending appointment was confirmed.
func ConfirmationCard(in CardInput) line.Message {
	return card("預約確認通知", "✅ 預約已確認", "#1DB446", in)
}

// CancellationCard announces that a confirmed appointment was cancelled.
func CancellationCard(in CardInput) line.Message {
	return card("預約取消通知", "❌ 預約已取消", "#FF5551", in)
}

// DeclineCard announces an admin-declined appointment, reason included.
func DeclineCard(in CardInput) line.Message {
	in.Message = "婉拒原因：" + orPlaceholder(in.Reason)
	return card("預約婉拒通知", "🙇 很抱歉，無法接受此預約", "#FF5551", in)
}

// CompletionCard covers both completion variants: the plain system notice
// (no image, no note) and the rich completion share, which sets ImageURL
// and Message on the input.
func CompletionCard(in CardInput) line.Message {
	return card("服務完成通知", "🎉 服務已完成", "#1DB446", in)
}

// ProgressCard is the mid-service progress report.
func ProgressCard(in CardInput) line.Message {
	return card("服務進度回報", "🛁 服務進行中", "#4A90D9", in)
}

// card builds the shared bubble layout: title, separator, labelled
// key-value rows, optional free-text block, optional hero image, CTA
// footer. Pure construction, no I/O.
func card(altText, title, titleColor string, in CardInput) line.Message {
	labelFlex := 2
	valueFlex := 5

	row := func(label, value string) line.Component {
		return line.Component{
			Type:   "box",
			Layout: "horizontal",
			Contents: []line.Component{
				{Type: "text", Text: label, Size: "sm", Color: "#8C8C8C", Flex: &labelFlex},
				{Type: "text", Text: orPlaceholder(value), Size: "sm", Wrap: true, Flex: &valueFlex},
			},
		}
	}

	body := []line.Component{
		{Type: "text", Text: title, Weight: "bold", Size: "md", Color: titleColor, Wrap: true},
		{Type: "separator", Margin: "md"},
		{
			Type:    "box",
			Layout:  "vertical",
			Margin:  "md",
			Spacing: "sm",
			Contents: []line.Component{
				row("寵物", in.PetName),
				row("服務項目", in.ServiceType),
				row("日期", in.Date),
				row("時間", in.Time),
			},
		},
	}

	if in.Message != "" {
		body = append(body,
			line.Component{Type: "separator", Margin: "md"},
			line.Component{Type: "text", Text: in.Message, Size: "sm", Wrap: true, Margin: "md"},
		)
	}

	bubble := &line.Bubble{
		Type: "bubble",
		Body: &line.Box{
			Type:     "box",
			Layout:   "vertical",
			Contents: body,
		},
	}

	if in.ImageURL != "" {
		bubble.Hero = &line.Image{
			Type:        "image",
			URL:         in.ImageURL,
			Size:        "full",
			AspectRatio: "20:13",
			AspectMode:  "cover",
		}
	}

	if in.LiffURL != "" {
		bubble.Footer = &line.Box{
			Type:   "box",
			Layout: "vertical",
			Contents: []line.Component{
				{
					Type:   "button",
					Style:  "link",
					Height: "sm",
					Action: &line.Action{Type: "uri", Label: "查看詳情", URI: in.LiffURL},
				},
			},
		}
	}

	return line.Message{
		Type:     "flex",
		AltText:  altText,
		Contents: bubble,
	}
}
