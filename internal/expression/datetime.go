package expression

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EvaluateDateTime resolves a date/time expression against a base
// instant. The grammar is an optional anchor ("now" or "today")
// followed by any number of signed offsets: "today + 2 days",
// "now - 1 hour + 30 minutes". An empty expression returns the base.
func EvaluateDateTime(exprText string, base time.Time) (time.Time, error) {
	fields := strings.Fields(strings.ToLower(exprText))
	result := base

	i := 0
	if i < len(fields) {
		switch fields[i] {
		case "now":
			i++
		case "today":
			result = time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, base.Location())
			i++
		}
	}

	for i < len(fields) {
		sign := 1
		switch fields[i] {
		case "+":
			sign = 1
		case "-":
			sign = -1
		default:
			return time.Time{}, fmt.Errorf("expected + or - in expression %q, got %q", exprText, fields[i])
		}
		i++

		if i >= len(fields) {
			return time.Time{}, fmt.Errorf("expression %q ends after a sign", exprText)
		}
		n, err := strconv.Atoi(fields[i])
		if err != nil {
			return time.Time{}, fmt.Errorf("expected a number in expression %q, got %q", exprText, fields[i])
		}
		i++

		if i >= len(fields) {
			return time.Time{}, fmt.Errorf("expression %q ends before a unit", exprText)
		}
		unit := strings.TrimSuffix(fields[i], "s")
		i++

		amount := sign * n
		switch unit {
		case "year":
			result = result.AddDate(amount, 0, 0)
		case "month":
			result = result.AddDate(0, amount, 0)
		case "week":
			result = result.AddDate(0, 0, 7*amount)
		case "day":
			result = result.AddDate(0, 0, amount)
		case "hour":
			result = result.Add(time.Duration(amount) * time.Hour)
		case "minute":
			result = result.Add(time.Duration(amount) * time.Minute)
		case "second":
			result = result.Add(time.Duration(amount) * time.Second)
		default:
			return time.Time{}, fmt.Errorf("unknown unit %q in expression %q", unit, exprText)
		}
	}

	return result, nil
}
