package notify

import (
	"fmt"
	"time"

	"github.com/matcornic/hermes/v2"

	"tradejournal/internal/events"
)

func hermesConfig() hermes.Hermes {
	return hermes.Hermes{
		Theme: new(hermes.Default),
		Product: hermes.Product{
			Name:      "Trade Journal",
			Link:      "https://localhost",
			Copyright: "Trade Journal",
		},
	}
}

// renderAlertEmail builds the subject/plain-text/HTML body for one stop-loss
// or take-profit crossing.
func renderAlertEmail(alert events.AlertEvent, at time.Time) (subject, text, html string) {
	direction := "Stop-Loss"
	if alert.Direction == "take_profit" {
		direction = "Take-Profit"
	}

	subject = fmt.Sprintf("%s triggered: %s @ %.2f", direction, alert.Code, alert.Price)

	h := hermesConfig()
	email := hermes.Email{
		Body: hermes.Body{
			Title: fmt.Sprintf("%s alert for %s", direction, alert.Code),
			Intros: []string{
				fmt.Sprintf("The current price of %s has crossed your %s threshold.", alert.Code, direction),
			},
			Dictionary: []hermes.Entry{
				{Key: "Instrument", Value: alert.Code},
				{Key: "Direction", Value: direction},
				{Key: "Current Price", Value: fmt.Sprintf("%.2f", alert.Price)},
				{Key: "Target Price", Value: fmt.Sprintf("%.2f", alert.Target)},
				{Key: "Time", Value: at.Format("2006-01-02 15:04:05 MST")},
			},
			Outros: []string{
				"Review this position in your trade journal.",
			},
		},
	}

	html, _ = h.GenerateHTML(email)
	text, _ = h.GeneratePlainText(email)
	return subject, text, html
}

// RenderTestEmail builds the body for the user-triggered "send test email"
// action, confirming the configured sender path is reachable.
func RenderTestEmail(username string, at time.Time) (subject, text, html string) {
	subject = "Trade Journal test email"

	h := hermesConfig()
	email := hermes.Email{
		Body: hermes.Body{
			Title: fmt.Sprintf("Hi %s,", username),
			Intros: []string{
				"This is a test email confirming your trade journal alert delivery is configured correctly.",
			},
			Dictionary: []hermes.Entry{
				{Key: "Sent at", Value: at.Format("2006-01-02 15:04:05 MST")},
			},
		},
	}

	html, _ = h.GenerateHTML(email)
	text, _ = h.GeneratePlainText(email)
	return subject, text, html
}
