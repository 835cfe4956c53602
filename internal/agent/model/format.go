package model

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// FormatAmount renders a rupee amount with digit grouping, or NotAvailable.
func FormatAmount(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return "₹" + humanize.Comma(int64(math.Round(*v)))
}

// FormatPercent renders a ratio (0.35) as a percentage ("35.0%"), or NotAvailable.
func FormatPercent(ratio *float64) string {
	if ratio == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.1f%%", *ratio*100)
}

// FormatInt renders an optional integer, or NotAvailable.
func FormatInt(v *int) string {
	if v == nil {
		return NotAvailable
	}
	return humanize.Comma(int64(*v))
}
