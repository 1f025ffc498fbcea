package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/muesli/reflow/wordwrap"
)

func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	return wordwrap.String(text, width)
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	if limit <= 3 {
		return text[:limit]
	}
	return text[:limit-3] + "..."
}

func compactSingleLine(text string, limit int) string {
	compact := strings.Join(strings.Fields(text), " ")
	return truncate(compact, limit)
}

// formatCountdown renders d as "4m05s", "12s" or "expired".
func formatCountdown(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%dm%02ds", minutes, seconds)
}

func shortClock(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Local().Format("15:04:05")
}

func onOff(value bool) string {
	if value {
		return "on"
	}
	return "off"
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func nullCoalesce(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func derefOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return nullCoalesce(*value, fallback)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func ternary[T any](condition bool, whenTrue T, whenFalse T) T {
	if condition {
		return whenTrue
	}
	return whenFalse
}
