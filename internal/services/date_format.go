package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// dateTokens are the supported date format tokens, longest first.
var dateTokens = []struct {
	token   string
	pattern string
	layout  func(t time.Time) string
}{
	{"YYYY", `\d{4}`, func(t time.Time) string { return fmt.Sprintf("%04d", t.Year()) }},
	{"MM", `\d{2}`, func(t time.Time) string { return fmt.Sprintf("%02d", int(t.Month())) }},
	{"DD", `\d{2}`, func(t time.Time) string { return fmt.Sprintf("%02d", t.Day()) }},
	{"hh", `\d{2}`, func(t time.Time) string { return fmt.Sprintf("%02d", t.Hour()) }},
	{"mm", `\d{2}`, func(t time.Time) string { return fmt.Sprintf("%02d", t.Minute()) }},
	{"ss", `\d{2}`, func(t time.Time) string { return fmt.Sprintf("%02d", t.Second()) }},
}

// walkDateFormat calls token for every recognised token in format and
// literal for every other character run.
func walkDateFormat(format string, token func(i int), literal func(s string)) {
	var lit strings.Builder
	for i := 0; i < len(format); {
		matched := false
		for idx, tok := range dateTokens {
			if strings.HasPrefix(format[i:], tok.token) {
				if lit.Len() > 0 {
					literal(lit.String())
					lit.Reset()
				}
				token(idx)
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			lit.WriteByte(format[i])
			i++
		}
	}
	if lit.Len() > 0 {
		literal(lit.String())
	}
}

// FormatDate renders t with a YYYY/MM/DD/hh/mm/ss format string.
func FormatDate(t time.Time, format string) string {
	var sb strings.Builder
	walkDateFormat(format,
		func(i int) { sb.WriteString(dateTokens[i].layout(t)) },
		func(s string) { sb.WriteString(s) },
	)
	return sb.String()
}

// DateFormatPattern returns a regexp matching exactly the names FormatDate produces for format.
func DateFormatPattern(format string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("^")
	walkDateFormat(format,
		func(i int) { sb.WriteString(dateTokens[i].pattern) },
		func(s string) { sb.WriteString(regexp.QuoteMeta(s)) },
	)
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}
