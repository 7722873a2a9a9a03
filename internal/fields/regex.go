package fields

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateFamilies are tried in this fixed priority order. A family earlier in
// the list wins over a later one even when the later match appears earlier
// in the text. Two-digit-first layouts are day-first.
var dateFamilies = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`), "02/01/2006"},
	{regexp.MustCompile(`\b\d{2}-\d{2}-\d{4}\b`), "02-01-2006"},
	{regexp.MustCompile(`\b\d{4}/\d{2}/\d{2}\b`), "2006/01/02"},
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), "2006-01-02"},
}

var (
	// $-prefixed, optional thousands separators, exactly two decimal digits.
	reAmount = regexp.MustCompile(`\$\s*\d+(?:,\d{3})*\.\d{2}`)
	reEmail  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// RegexExtractor is the deterministic fallback strategy. It never returns an
// error: any field it cannot find is simply left nil.
//
// Positional assignment rules:
//   - first matched date -> invoice date; second -> due date; rest ignored
//   - first matched amount -> amount; second -> tax; last -> total
//   - first matched email -> vendor email; second -> client email
//
// Invoice numbers are not extracted here; no pattern is reliable enough
// across layouts, so the field stays nil on the fallback path.
type RegexExtractor struct {
	logger *slog.Logger
}

func NewRegexExtractor(logger *slog.Logger) *RegexExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegexExtractor{logger: logger}
}

func (e *RegexExtractor) ExtractFields(_ context.Context, ocrText string) (InvoiceFields, []byte, error) {
	var out InvoiceFields

	dates := findDates(ocrText)
	if len(dates) > 0 {
		out.Date = Str(dates[0])
	}
	if len(dates) > 1 {
		out.DueDate = Str(dates[1])
	}

	amounts := reAmount.FindAllString(ocrText, -1)
	if len(amounts) > 0 {
		out.Amount = Num(ParseAmount(amounts[0]))
		out.Total = Num(ParseAmount(amounts[len(amounts)-1]))
	}
	if len(amounts) > 1 {
		out.Tax = Num(ParseAmount(amounts[1]))
	}

	emails := reEmail.FindAllString(ocrText, -1)
	if len(emails) > 0 {
		out.VendorInfo.Email = Str(emails[0])
	}
	if len(emails) > 1 {
		out.ClientInfo.Email = Str(emails[1])
	}

	e.logger.Debug("regex.extract.ok",
		"dates", len(dates), "amounts", len(amounts), "emails", len(emails),
	)
	return out, nil, nil
}

// findDates collects matches family by family and normalizes each to
// ISO-8601. Matches that are not valid calendar dates are skipped so a
// populated date field is always a real date.
func findDates(text string) []string {
	var dates []string
	for _, fam := range dateFamilies {
		for _, m := range fam.re.FindAllString(text, -1) {
			t, err := time.Parse(fam.layout, m)
			if err != nil {
				continue
			}
			dates = append(dates, t.Format("2006-01-02"))
		}
	}
	return dates
}

// ParseAmount normalizes a matched currency string to a float. Currency
// symbols, spaces, and thousands separators are stripped first. Unparseable
// input yields 0.0 rather than an error.
func ParseAmount(s string) float64 {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return f
}
