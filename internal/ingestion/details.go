package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/knoguchi/tender/internal/llm"
	"github.com/knoguchi/tender/internal/repository"
)

// DefaultExtractionPrefix is how much of the document the extraction prompt sees.
const DefaultExtractionPrefix = 25000

// Details is the display view of the extracted tender metadata. Empty
// fields were not found in the document.
type Details struct {
	TenderID           string
	ProjectTitle       string
	IssuingAuthority   string
	Location           string
	ProjectValue       string
	EMDAmount          string
	Summary            string
	IssueDate          string
	SubmissionDeadline string

	Degraded  bool // extraction failed; all fields are empty
	Corrected bool // value/EMD consistency correction was applied
}

// MarshalJSON renders missing fields as null.
func (d Details) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]*string{
		"tender_id":           nullable(d.TenderID),
		"project_title":       nullable(d.ProjectTitle),
		"issuing_authority":   nullable(d.IssuingAuthority),
		"location":            nullable(d.Location),
		"project_value":       nullable(d.ProjectValue),
		"emd_amount":          nullable(d.EMDAmount),
		"summary":             nullable(d.Summary),
		"issue_date":          nullable(d.IssueDate),
		"submission_deadline": nullable(d.SubmissionDeadline),
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Record is the normalized storage view of the same extraction.
type Record struct {
	TenderNumber       string
	Title              string
	IssuingAuthority   string
	Location           string
	TenderDate         *time.Time
	SubmissionDeadline *time.Time
	Status             string
	Value              *float64
}

// Normalize converts display strings into typed values. A tender whose
// deadline is before now is Closed.
func (d Details) Normalize(now time.Time) Record {
	rec := Record{
		TenderNumber:       d.TenderID,
		Title:              d.ProjectTitle,
		IssuingAuthority:   d.IssuingAuthority,
		Location:           d.Location,
		TenderDate:         ParseDate(d.IssueDate),
		SubmissionDeadline: ParseDate(d.SubmissionDeadline),
		Status:             repository.StatusOpen,
	}
	if v, ok := ParseAmount(d.ProjectValue); ok {
		rec.Value = &v
	}
	if rec.SubmissionDeadline != nil && rec.SubmissionDeadline.Before(now) {
		rec.Status = repository.StatusClosed
	}
	return rec
}

// ============================================================================
// LLM extraction
// ============================================================================

var (
	jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

	errNoJSON = errors.New("no JSON object in response")
)

var sentinels = map[string]struct{}{
	"not found": {}, "n/a": {}, "na": {}, "null": {}, "none": {}, "nil": {},
	"not specified": {}, "not mentioned": {}, "not available": {}, "unknown": {},
	"-": {}, "": {},
}

// DetailsExtractor asks the language model for the tender's key facts.
type DetailsExtractor struct {
	llm         llm.LLM
	prefixChars int
	logger      *slog.Logger
}

// NewDetailsExtractor creates an extractor that sends the first prefixChars
// characters of a document to client.
func NewDetailsExtractor(client llm.LLM, prefixChars int, logger *slog.Logger) *DetailsExtractor {
	if prefixChars <= 0 {
		prefixChars = DefaultExtractionPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailsExtractor{llm: client, prefixChars: prefixChars, logger: logger}
}

// Extract never fails: on any generation or parse error it returns
// Details with Degraded set so ingestion can continue.
func (e *DetailsExtractor) Extract(ctx context.Context, text string) Details {
	resp, err := e.llm.Generate(ctx, buildDetailsPrompt(prefix(text, e.prefixChars)), llm.GenerateOptions{
		Temperature: 0.1,
	})
	if err != nil {
		e.logger.Warn("detail extraction failed, continuing without details", "error", err)
		return Details{Degraded: true}
	}

	d, err := parseDetails(resp)
	if err != nil {
		e.logger.Warn("detail extraction returned unusable output", "error", err)
		return Details{Degraded: true}
	}

	correctValues(&d, text)
	if d.Corrected {
		e.logger.Info("corrected project value", "project_value", d.ProjectValue, "emd_amount", d.EMDAmount)
	}
	return d
}

func buildDetailsPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("You are reading an Indian government tender document. Extract its key facts.\n\n")
	sb.WriteString("Return ONLY a JSON object with exactly these keys:\n")
	sb.WriteString(`{"tender_id": "", "project_title": "", "issuing_authority": "", "location": "", ` +
		`"project_value": "", "emd_amount": "", "summary": "", "issue_date": "", "submission_deadline": ""}`)
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("- Copy amounts exactly as written, with currency (e.g. \"Rs. 2,00,000\").\n")
	sb.WriteString("- The EMD (earnest money deposit / bid security) is NOT the project value.\n")
	sb.WriteString("- project_value is the total estimated cost or contract value of the work.\n")
	sb.WriteString("- summary is at most three sentences.\n")
	sb.WriteString("- Write \"Not found\" for anything the document does not state.\n\n")
	sb.WriteString("## Document\n")
	sb.WriteString(text)
	return sb.String()
}

func parseDetails(resp string) (Details, error) {
	raw := jsonObject.FindString(resp)
	if raw == "" {
		return Details{}, errNoJSON
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Details{}, fmt.Errorf("decoding details: %w", err)
	}

	get := func(key string) string { return normalizeField(fields[key]) }
	return Details{
		TenderID:           get("tender_id"),
		ProjectTitle:       get("project_title"),
		IssuingAuthority:   get("issuing_authority"),
		Location:           get("location"),
		ProjectValue:       get("project_value"),
		EMDAmount:          get("emd_amount"),
		Summary:            get("summary"),
		IssueDate:          get("issue_date"),
		SubmissionDeadline: get("submission_deadline"),
	}, nil
}

func normalizeField(v any) string {
	var s string
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		s = strings.TrimSpace(fmt.Sprint(v))
	}
	if _, sentinel := sentinels[strings.ToLower(s)]; sentinel {
		return ""
	}
	return s
}

func prefix(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// ============================================================================
// Dates
// ============================================================================

var ordinalSuffix = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)

// Day-first layouts come before month-first ones; Indian tenders write dates day first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2-1-2006 15:04",
	"2-1-2006 3:04 PM",
	"2-1-2006",
	"2/1/2006 15:04",
	"2/1/2006 3:04 PM",
	"2/1/2006",
	"2.1.2006",
	"2-Jan-2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January, 2006",
}

// ParseDate parses the date formats commonly found in tenders. It returns
// nil for anything it does not recognise.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(ordinalSuffix.ReplaceAllString(s, "$1"))
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
