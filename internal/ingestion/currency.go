package ingestion

import (
	"regexp"
	"strconv"
	"strings"
)

// MinPlausibleValue is the floor below which an extracted project value is
// re-checked against the document text (Rs. 1,00,000).
const MinPlausibleValue = 100000

var amountPattern = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(lakhs?|lacs?|crores?|cr\b)?`)

// ParseAmount reads the first amount in s, understanding Indian digit
// grouping and lakh/crore multipliers ("Rs. 2,00,000", "INR 1.5 crore").
func ParseAmount(s string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch unit := strings.ToLower(m[2]); {
	case strings.HasPrefix(unit, "la"):
		v *= 1e5
	case strings.HasPrefix(unit, "cr"):
		v *= 1e7
	}
	return v, true
}

var valueLabels = []string{
	"total estimated cost",
	"estimated cost",
	"contract value",
	"tender value",
	"project value",
	"estimated value",
}

// valuePatterns match a label followed, within a short gap, by a currency amount.
var valuePatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(valueLabels))
	for i, label := range valueLabels {
		out[i] = regexp.MustCompile(`(?i)` + strings.ReplaceAll(label, " ", `\s+`) +
			`[^\d₹]{0,40}?((?:(?:rs\.?|inr|₹)\s*)?\d[\d,]*(?:\.\d+)?(?:\s*(?:lakhs?|lacs?|crores?))?)`)
	}
	return out
}()

// recoverProjectValue searches the full document text for a labelled project
// value. Labels are tried in order of specificity.
func recoverProjectValue(text string) (string, float64, bool) {
	for _, re := range valuePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			display := strings.TrimRight(strings.TrimSpace(m[1]), ",")
			if v, ok := ParseAmount(display); ok && v > 0 {
				return display, v, true
			}
		}
	}
	return "", 0, false
}

// correctValues fixes the common confusion between project value and
// earnest money deposit. A deposit is always a small fraction of the value.
func correctValues(d *Details, fullText string) {
	value, valueOK := ParseAmount(d.ProjectValue)
	emd, emdOK := ParseAmount(d.EMDAmount)

	if valueOK && emdOK && emd > value {
		if display, _, ok := recoverProjectValue(fullText); ok {
			d.ProjectValue = display
		} else {
			d.ProjectValue, d.EMDAmount = d.EMDAmount, d.ProjectValue
		}
		d.Corrected = true
	}

	if v, ok := ParseAmount(d.ProjectValue); ok && v < MinPlausibleValue {
		if display, recovered, ok := recoverProjectValue(fullText); ok && recovered > v {
			d.ProjectValue = display
			d.Corrected = true
		}
	}
}
