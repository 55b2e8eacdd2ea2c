package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDate(t *testing.T) {
	at := time.Date(2024, time.March, 7, 9, 5, 3, 0, time.UTC)

	tests := []struct {
		format string
		want   string
	}{
		{"YYYYMMDDhhmmss", "20240307090503"},
		{"YYYY-MM-DD hh.mm.ss", "2024-03-07 09.05.03"},
		{"chat YYYY", "chat 2024"},
		{"DD/MM", "07/03"},
		{"no tokens", "no tokens"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDate(at, tt.format))
		})
	}
}

func TestDateFormatPattern(t *testing.T) {
	tests := []struct {
		format string
		name   string
		want   bool
	}{
		{"YYYYMMDDhhmmss", "20240307090503", true},
		{"YYYYMMDDhhmmss", "2024030709050", false},
		{"YYYYMMDDhhmmss", "Trip to Rome", false},
		{"YYYYMMDDhhmmss", "20240307090503 (1)", false},
		{"YYYY-MM-DD", "2024-03-07", true},
		{"YYYY-MM-DD", "2024x03-07", false},
		{"YYYY.MM", "2024.03", true},
		{"YYYY.MM", "2024303", false},
	}

	for _, tt := range tests {
		t.Run(tt.format+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateFormatPattern(tt.format).MatchString(tt.name))
		})
	}
}

func TestDateFormatPattern_MatchesFormatDate(t *testing.T) {
	format := "YYYY-MM-DD_hhmmss"
	name := FormatDate(time.Now(), format)
	assert.True(t, DateFormatPattern(format).MatchString(name))
}
