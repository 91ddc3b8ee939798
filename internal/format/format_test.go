package format

import (
	"strings"
	"testing"
	"time"
)

func TestBucketTime(t *testing.T) {
	// Saturday.
	now := time.Date(2026, 8, 15, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		ts   time.Time
		want string
	}{
		{
			name: "zero renders empty",
			ts:   time.Time{},
			want: "",
		},
		{
			name: "same day shows time of day",
			ts:   time.Date(2026, 8, 15, 9, 5, 0, 0, time.UTC),
			want: "09:05",
		},
		{
			name: "yesterday shows weekday",
			ts:   time.Date(2026, 8, 14, 23, 59, 0, 0, time.UTC),
			want: "Fri",
		},
		{
			name: "six days ago shows weekday",
			ts:   time.Date(2026, 8, 9, 1, 0, 0, 0, time.UTC),
			want: "Sun",
		},
		{
			name: "seven days ago falls to day/month",
			ts:   time.Date(2026, 8, 8, 12, 0, 0, 0, time.UTC),
			want: "08/08",
		},
		{
			name: "same year shows day/month",
			ts:   time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC),
			want: "03/03",
		},
		{
			name: "previous year shows full date",
			ts:   time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC),
			want: "31/12/25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BucketTime(tt.ts, now); got != tt.want {
				t.Errorf("BucketTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageTime(t *testing.T) {
	now := time.Date(2026, 8, 15, 14, 30, 0, 0, time.UTC)

	if got := MessageTime(time.Date(2026, 8, 15, 9, 5, 0, 0, time.UTC), now); got != "09:05" {
		t.Errorf("same-day MessageTime() = %q, want %q", got, "09:05")
	}
	if got := MessageTime(time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), now); got != "03/03/26 08:00" {
		t.Errorf("older MessageTime() = %q, want %q", got, "03/03/26 08:00")
	}
	if got := MessageTime(time.Time{}, now); got != "" {
		t.Errorf("zero MessageTime() = %q, want empty", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{
			name: "short text unchanged",
			text: "hola",
			max:  30,
			want: "hola",
		},
		{
			name: "exact length unchanged",
			text: strings.Repeat("a", 30),
			max:  30,
			want: strings.Repeat("a", 30),
		},
		{
			name: "long text truncated with ellipsis",
			text: strings.Repeat("a", 31),
			max:  30,
			want: strings.Repeat("a", 30) + Ellipsis,
		},
		{
			name: "multibyte runes counted as one",
			text: strings.Repeat("ñ", 31),
			max:  30,
			want: strings.Repeat("ñ", 30) + Ellipsis,
		},
		{
			name: "non-positive max renders empty",
			text: "hola",
			max:  0,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.text, tt.max); got != tt.want {
				t.Errorf("Truncate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("x", PreviewLength+5)
	want := strings.Repeat("x", PreviewLength) + Ellipsis
	if got := Preview(long); got != want {
		t.Errorf("Preview() = %q, want %q", got, want)
	}
}
