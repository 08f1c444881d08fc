package service

import (
	"fmt"
	"strings"

	"github.com/knoguchi/tender/internal/memory"
	"github.com/knoguchi/tender/internal/repository"
)

const (
	simpleAudience = "You are helping someone new to public procurement understand a tender document.\n" +
		"Use simple words and short sentences, and explain any technical terms."
	professionalAudience = "You are a professional tender consultant."
)

func buildQAPrompt(level repository.SummaryLevel, question string, results []repository.SearchResult, history []memory.Message) string {
	var sb strings.Builder

	if level == repository.SummarySimple {
		sb.WriteString(simpleAudience)
	} else {
		sb.WriteString(professionalAudience)
	}
	sb.WriteString("\n\n")

	if len(history) > 0 {
		sb.WriteString("Earlier in this conversation:\n")
		sb.WriteString(memory.FormatForPrompt(history))
		sb.WriteString("\n")
	}

	sb.WriteString("Relevant sections from the document:\n\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "[Section %d]\n%s\n\n", i+1, r.Chunk.Text)
	}

	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")

	if level == repository.SummarySimple {
		sb.WriteString("Provide a clear, simple answer. Explain any technical terms.\n")
	} else {
		sb.WriteString("Provide a precise, professional answer based on the document sections.\n")
	}
	return sb.String()
}

func buildSummaryPrompt(level repository.SummaryLevel, content string) string {
	if level == repository.SummarySimple {
		return `You are summarizing a tender document for someone new to tenders.
Use simple language, short sentences, and explain technical terms.

Document content:
` + content + `

Provide a clear, simple summary that covers:
1. What the tender is about
2. Who can apply
3. Important deadlines
4. Key requirements

Keep it friendly and easy to understand.
`
	}
	return `You are a professional tender analyst. Provide a comprehensive summary.

Document content:
` + content + `

Provide a structured summary covering:
1. Tender Overview
2. Scope of Work
3. Eligibility Criteria
4. Submission Requirements
5. Timeline and Deadlines
6. Evaluation Criteria

Use professional terminology and be precise.
`
}

func buildPartialSummaryPrompt(part, total int, content string) string {
	return fmt.Sprintf(`You are reading part %d of %d of a tender document.
Summarize this part in a few paragraphs. Keep every amount, date, deadline,
eligibility condition and document requirement you find.

Document part:
%s
`, part, total, content)
}

// keyPoints returns up to 10 numbered or bulleted lines of a summary with
// their markers removed.
func keyPoints(summary string) []string {
	points := []string{}
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first := line[0]
		if !(first >= '0' && first <= '9') && !strings.HasPrefix(line, "•") && !strings.HasPrefix(line, "-") {
			continue
		}
		point := strings.TrimLeft(line, "0123456789.•- ")
		if point == "" {
			continue
		}
		points = append(points, point)
		if len(points) == 10 {
			break
		}
	}
	return points
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
