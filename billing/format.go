package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatMoney renders an amount with two decimals and Indian digit grouping
// (12,34,567.89), prefixed by symbol. Negative amounts get a leading minus.
func FormatMoney(amount decimal.Decimal, symbol string) string {
	s := amount.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var grouped string
	if len(intPart) <= 3 {
		grouped = intPart
	} else {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		var parts []string
		for len(head) > 2 {
			parts = append([]string{head[len(head)-2:]}, parts...)
			head = head[:len(head)-2]
		}
		if head != "" {
			parts = append([]string{head}, parts...)
		}
		grouped = strings.Join(parts, ",") + "," + tail
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return sign + symbol + grouped + "." + frac
}

// dateLayouts maps the operator's display formats to Go layouts.
var dateLayouts = map[string]string{
	"DD/MM/YYYY": "02/01/2006",
	"MM/DD/YYYY": "01/02/2006",
	"YYYY-MM-DD": "2006-01-02",
	"DD-MM-YYYY": "02-01-2006",
}

// FormatDate renders t using a display format such as "DD/MM/YYYY".
// Unknown formats fall back to DD/MM/YYYY.
func FormatDate(t time.Time, format string) string {
	layout, ok := dateLayouts[strings.ToUpper(format)]
	if !ok {
		layout = dateLayouts["DD/MM/YYYY"]
	}
	return t.Format(layout)
}

// FormatHours renders decimal hours as h:mm (5.5 -> "5:30").
func FormatHours(hours decimal.Decimal) string {
	totalMinutes := hours.Mul(sixty).Round(0).IntPart()
	h, m := totalMinutes/60, totalMinutes%60
	if m < 0 {
		m = -m
	}
	return fmt.Sprintf("%d:%02d", h, m)
}
