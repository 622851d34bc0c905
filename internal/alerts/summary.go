package alerts

import (
	"strings"
	"unicode"

	"github.com/kjstillabower/commute-dashboard/internal/models"
)

// SummaryStatus is the headline state of the alert summary card.
type SummaryStatus string

const (
	StatusSevere  SummaryStatus = "severe"
	StatusWarning SummaryStatus = "warning"
	StatusOK      SummaryStatus = "ok"
)

// NoProblemsText is shown when no SEVERE or WARNING alert is present.
const NoProblemsText = "No major problems"

// Summary is the one-line view of the most urgent alert.
type Summary struct {
	Status SummaryStatus `json:"status"`
	Text   string        `json:"text"`
	Future bool          `json:"future,omitempty"`
	Alert  *models.Alert `json:"alert,omitempty"`
}

// Summarize picks the first SEVERE alert, else the first WARNING one.
func Summarize(in []models.Alert, day Day) Summary {
	pick := func(sev models.Severity) *models.Alert {
		for i := range in {
			if in[i].Severity() == sev {
				a := in[i]
				return &a
			}
		}
		return nil
	}

	status := StatusSevere
	top := pick(models.SeveritySevere)
	if top == nil {
		status = StatusWarning
		top = pick(models.SeverityWarning)
	}
	if top == nil {
		return Summary{Status: StatusOK, Text: NoProblemsText}
	}

	future := !day.Overlaps(top.ActivePeriod)
	text := SummaryText(*top)
	if future {
		text += " (future)"
	}
	return Summary{Status: status, Text: text, Future: future, Alert: top}
}

// SummaryText prefers the first effect_detail translation and falls back to the effect code.
func SummaryText(alert models.Alert) string {
	if text, ok := alert.EffectDetail.FirstText(); ok && text != "" {
		return text
	}
	return HumanizeCode(string(alert.Effect))
}

// HumanizeCode turns "SIGNIFICANT_DELAYS" into "Significant Delays".
// Codes that are not fully upper case are returned unchanged.
func HumanizeCode(code string) string {
	if code == "" || code != strings.ToUpper(code) {
		return code
	}
	words := strings.Split(code, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
