package alert

import (
	"bytes"
	"text/template"
	"time"

	"github.com/pkg/errors"
)

// DefaultMessageTemplate is the body sent to recipients for automatic alerts.
const DefaultMessageTemplate = `AUTOMATIC FLOOD ALERT
Location: {{.Location}}
Water Level: {{.Distance}} cm
Status: {{.Status}}
Time: {{.Time}}

Please stay alert and follow advisories from local authorities.`

// TimeLayout is the layout of the localized timestamp in messages.
const TimeLayout = "Jan 2, 2006 3:04 PM"

// Message is a composed alert body. It cannot be changed once built.
type Message struct {
	text string
}

func (m Message) String() string {
	return m.text
}

// MessageData is the information available to message templates.
type MessageData struct {
	Location string
	// Distance rounded to a whole unit.
	Distance int64
	Status   string
	// Time localized and formatted with TimeLayout.
	Time string
}

// Composer renders alert messages from a template in a fixed time zone.
type Composer struct {
	tmpl *template.Template
	loc  *time.Location
}

func NewComposer(text string, loc *time.Location) (*Composer, error) {
	if text == "" {
		text = DefaultMessageTemplate
	}
	if loc == nil {
		loc = time.UTC
	}
	tmpl, err := template.New("message").Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "invalid message template")
	}
	return &Composer{
		tmpl: tmpl,
		loc:  loc,
	}, nil
}

// Compose builds the message for a classified reading.
func (c *Composer) Compose(location string, distance float64, s Severity, t time.Time) (Message, error) {
	data := MessageData{
		Location: location,
		Distance: RoundDistance(distance),
		Status:   s.String(),
		Time:     t.In(c.loc).Format(TimeLayout),
	}
	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return Message{}, errors.Wrap(err, "failed to render message")
	}
	return Message{text: buf.String()}, nil
}
