package status

import (
	"testing"
	"time"
)

func TestExtractMonthKey(t *testing.T) {
	now := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		period string
		want   string
	}{
		{"GenitiveMonthName", "2025 декабря", "202512"},
		{"MonthNameFirst", "Отчёт за апреля 2024", "202404"},
		{"MixedCase", "2025 ЯНВАРЯ", "202501"},
		{"NumericKey", "202512", "202512"},
		{"NumericKeyEmbedded", "отчёт-202309-final", "202309"},
		{"YearWithoutMonthName", "итоги 2025 года", "202603"},
		{"Garbage", "ежемесячный отчёт", "202603"},
		{"Empty", "", "202603"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractMonthKeyAt(tc.period, now); got != tc.want {
				t.Errorf("extractMonthKeyAt(%q) = %q, want %q", tc.period, got, tc.want)
			}
		})
	}
}

func TestExtractMonthKeyAllMonths(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	for name, num := range monthNames {
		if got := extractMonthKeyAt("2025 "+name, now); got != "2025"+num {
			t.Errorf("month %q: got %q, want %q", name, got, "2025"+num)
		}
	}
}
