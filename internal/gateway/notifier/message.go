package notifier

import (
	"strings"
	"time"

	"bracketbot/internal/pkg/text"
)

const maxMessageLen = 3800

// Field is one "label: value" line of a notification.
type Field struct {
	Label string
	Value string
}

// Message is the uniform layout of every notification: icon and bold title,
// label/value lines, optional footer and a local timestamp.
type Message struct {
	Icon      string
	Title     string
	Fields    []Field
	Footer    string
	Timestamp time.Time
	Location  *time.Location
}

// RenderMarkdown produces Telegram Markdown, truncated to a safe length.
func (m Message) RenderMarkdown() string {
	var b strings.Builder
	title := strings.TrimSpace(m.Title)
	if title != "" {
		title = "*" + sanitize(title) + "*"
	}
	if header := strings.TrimSpace(m.Icon + " " + title); header != "" {
		b.WriteString(header + "\n")
	}
	for _, f := range m.Fields {
		label := strings.TrimSpace(f.Label)
		value := strings.TrimSpace(f.Value)
		if label == "" && value == "" {
			continue
		}
		if label == "" {
			b.WriteString(sanitize(value) + "\n")
			continue
		}
		b.WriteString(sanitize(label) + ": `" + strings.ReplaceAll(value, "`", "'") + "`\n")
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(sanitize(footer) + "\n")
	}
	if !m.Timestamp.IsZero() {
		ts := m.Timestamp
		if m.Location != nil {
			ts = ts.In(m.Location)
		}
		b.WriteString("🕒 " + ts.Format("2006-01-02 15:04:05 MST"))
	}
	return text.Truncate(strings.TrimSpace(b.String()), maxMessageLen)
}

// sanitize drops characters that would open an unbalanced Markdown entity.
func sanitize(s string) string {
	return strings.NewReplacer("*", "", "_", " ", "`", "'", "[", "(", "]", ")").Replace(s)
}
