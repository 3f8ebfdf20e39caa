package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

// Kind identifies the message template.
type Kind string

const (
	KindConfirmation     Kind = "confirmation"
	KindReschedule       Kind = "reschedule"
	KindCancellation     Kind = "cancellation"
	KindReminderDayAhead Kind = "reminder_24h"
	KindReminderSameDay  Kind = "reminder_same_day"
)

// ParseKind accepts the canonical names plus "reminder" as an alias for the
// day-ahead reminder.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindConfirmation, KindReschedule, KindCancellation, KindReminderDayAhead, KindReminderSameDay:
		return k, nil
	case "reminder":
		return KindReminderDayAhead, nil
	}
	return "", fmt.Errorf("notify: unknown notification kind %q", raw)
}

// Channel is the delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func ParseChannel(raw string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(raw))); c {
	case ChannelEmail, ChannelSMS:
		return c, nil
	}
	return "", fmt.Errorf("notify: unknown channel %q", raw)
}

// TemplateData fills a message template.
type TemplateData struct {
	PatientName string
	DoctorName  string
	Date        schedule.Date
	Time        schedule.TimeOfDay
	Reason      string
	ClinicName  string
}

func (d TemplateData) patient() string {
	if strings.TrimSpace(d.PatientName) == "" {
		return "there"
	}
	return d.PatientName
}

func (d TemplateData) doctor() string {
	if strings.TrimSpace(d.DoctorName) == "" {
		return "your doctor"
	}
	return d.DoctorName
}

// RenderedEmail is a ready-to-send email body.
type RenderedEmail struct {
	Subject string
	Text    string
	HTML    string
}

var emailHeadlines = map[Kind]struct{ subject, lead string }{
	KindConfirmation:     {"✅ Appointment Confirmed", "Your appointment has been confirmed."},
	KindReminderDayAhead: {"⏰ Appointment Tomorrow", "This is a reminder that you have an appointment tomorrow."},
	KindReminderSameDay:  {"🔔 Appointment Today!", "Your appointment is today."},
	KindCancellation:     {"❌ Appointment Cancelled", "Your appointment has been cancelled. Please contact us if you would like to rebook."},
	KindReschedule:       {"🔄 Appointment Rescheduled", "Your appointment has been moved to a new time."},
}

// RenderEmail builds subject, plain text and HTML for kind.
func RenderEmail(kind Kind, d TemplateData) (RenderedEmail, error) {
	head, ok := emailHeadlines[kind]
	if !ok {
		return RenderedEmail{}, fmt.Errorf("notify: no email template for %q", kind)
	}
	subject := head.subject
	if d.ClinicName != "" {
		subject += " - " + d.ClinicName
	}

	details := []string{
		"Date: " + d.Date.Long(),
		"Time: " + d.Time.Kitchen(),
		"Doctor: " + d.doctor(),
	}
	if d.Reason != "" {
		details = append(details, "Reason: "+d.Reason)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\n%s\n\n", d.patient(), head.lead)
	for _, line := range details {
		text.WriteString(line + "\n")
	}
	if kind == KindConfirmation || kind == KindReminderDayAhead {
		text.WriteString("\nPlease arrive 10 minutes early.\n")
	}
	if d.ClinicName != "" {
		fmt.Fprintf(&text, "\n%s\n", d.ClinicName)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<h2>%s</h2><p>Hi %s,</p><p>%s</p><ul>",
		html.EscapeString(head.subject), html.EscapeString(d.patient()), html.EscapeString(head.lead))
	for _, line := range details {
		fmt.Fprintf(&body, "<li>%s</li>", html.EscapeString(line))
	}
	body.WriteString("</ul>")
	if d.ClinicName != "" {
		fmt.Fprintf(&body, "<p>%s</p>", html.EscapeString(d.ClinicName))
	}

	return RenderedEmail{Subject: subject, Text: text.String(), HTML: body.String()}, nil
}

// RenderSMS builds the SMS body for kind.
func RenderSMS(kind Kind, d TemplateData) (string, error) {
	clinic := d.ClinicName
	if clinic == "" {
		clinic = "the clinic"
	}
	switch kind {
	case KindConfirmation:
		return fmt.Sprintf("Hi %s, your appointment at %s is confirmed for %s at %s with %s. Please arrive 10 mins early.",
			d.patient(), clinic, d.Date.Long(), d.Time.Kitchen(), d.doctor()), nil
	case KindReminderDayAhead:
		return fmt.Sprintf("REMINDER: Hi %s, you have an appointment tomorrow at %s with %s at %s. Reply YES to confirm.",
			d.patient(), d.Time.Kitchen(), d.doctor(), clinic), nil
	case KindReminderSameDay:
		return fmt.Sprintf("Hi %s, your appointment is TODAY at %s with %s. See you soon! - %s",
			d.patient(), d.Time.Kitchen(), d.doctor(), clinic), nil
	case KindCancellation:
		return fmt.Sprintf("Hi %s, your appointment on %s at %s has been cancelled. Contact us to rebook. - %s",
			d.patient(), d.Date.Long(), d.Time.Kitchen(), clinic), nil
	case KindReschedule:
		return fmt.Sprintf("RESCHEDULED: Hi %s, your appointment is now on %s at %s with %s. - %s",
			d.patient(), d.Date.Long(), d.Time.Kitchen(), d.doctor(), clinic), nil
	}
	return "", fmt.Errorf("notify: no sms template for %q", kind)
}
