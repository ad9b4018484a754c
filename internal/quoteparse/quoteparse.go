// Package quoteparse extracts structured quote options from text pasted
// out of charter marketplace emails, e.g.
//
//	Option 1
//	$35,590.87 - Citation Ultra - (7 passengers, Light) - ARGUS Gold; Click here to view quote for ORL-RBW-CHO-RBW-ORL 10/8/2025-10/9/2025
package quoteparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

var (
	optionHeader = regexp.MustCompile(`(?mi)^[ \t]*Option[ \t]+(\d+)[ \t]*:?`)

	quoteLine = regexp.MustCompile(
		`(\$[\d,]+(?:\.\d{1,2})?)\s*-\s*(.+?)\s*-\s*\((\d+)\s+passengers?,\s*([^)]+)\)(?:[ \t]*-[ \t]*([^;\n]+))?`)

	routeDates = regexp.MustCompile(
		`(?i)quote for\s+([A-Z0-9]{3,4}(?:-[A-Z0-9]{3,4})+)(?:\s+(\d{1,2}/\d{1,2}/\d{4}(?:\s*-\s*\d{1,2}/\d{1,2}/\d{4})?))?`)
)

// Parse splits text into one ParsedQuote per option block. Text without
// "Option N" headers yields one quote per matching price line, numbered
// from 1. Blocks without a recognisable price line are skipped.
func Parse(text string) []domain.ParsedQuote {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	headers := optionHeader.FindAllStringSubmatchIndex(text, -1)
	if len(headers) == 0 {
		return parseLines(text)
	}

	quotes := make([]domain.ParsedQuote, 0, len(headers))
	for i, h := range headers {
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		block := text[h[1]:end]

		q, ok := parseBlock(block)
		if !ok {
			continue
		}
		q.Option, _ = strconv.Atoi(text[h[2]:h[3]])
		quotes = append(quotes, q)
	}
	return quotes
}

func parseLines(text string) []domain.ParsedQuote {
	var quotes []domain.ParsedQuote
	for _, line := range strings.Split(text, "\n") {
		q, ok := parseBlock(line)
		if !ok {
			continue
		}
		q.Option = len(quotes) + 1
		quotes = append(quotes, q)
	}
	return quotes
}

func parseBlock(block string) (domain.ParsedQuote, bool) {
	m := quoteLine.FindStringSubmatch(block)
	if m == nil {
		return domain.ParsedQuote{}, false
	}

	q := domain.ParsedQuote{
		Price:        m[1],
		Aircraft:     strings.TrimSpace(m[2]),
		Passengers:   m[3],
		Category:     strings.TrimSpace(m[4]),
		SafetyRating: strings.TrimSpace(m[5]),
	}

	if rd := routeDates.FindStringSubmatch(block); rd != nil {
		q.Route = strings.ToUpper(rd[1])
		q.Dates = strings.ReplaceAll(rd[2], " ", "")
	}
	return q, true
}

// PriceValue converts a display price such as "$35,590.87" into a number.
func PriceValue(price string) (float64, bool) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(price)
	if clean == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SplitDates splits "10/8/2025-10/9/2025" into departure and return dates.
// A single date returns an empty return date.
func SplitDates(dates string) (departure, ret string) {
	parts := strings.SplitN(dates, "-", 2)
	departure = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		ret = strings.TrimSpace(parts[1])
	}
	return departure, ret
}
