// CLAUDE:SUMMARY MAWB normalization, formatting, and clipboard batch parsing.
// Package mawbinput turns free-form pasted text into ordered batch items.
//
// Accepted shapes per line: tab or comma separated 5-column rows
// (Port, Customer, Broker, HAWBs, Master), 3-column rows
// (Port, Customer, Master), 2-column rows, whitespace-separated rows,
// and bare MAWB tokens. Vertical spreadsheet pastes (one cell per line,
// no tabs) are reconstructed into rows before parsing.
package mawbinput

import (
	"fmt"
	"regexp"
	"strings"
)

// Item is one parsed input row. MAWB is always 11 digits with no
// separators; the other fields are empty when absent from the input.
type Item struct {
	MAWB           string
	AirportCode    string
	Customer       string
	CheckbookHAWBs string
}

var mawbTokenRe = regexp.MustCompile(`\d{11}`)

// Normalize strips non-digits from raw and requires exactly 11 digits.
func Normalize(raw string) (string, error) {
	digits := digitsOf(raw)
	if len(digits) != 11 {
		return "", fmt.Errorf("mawbinput: %q must contain exactly 11 digits, found %d", raw, len(digits))
	}
	return digits, nil
}

// Format renders a normalized MAWB as XXX-XXXXXXXX. Values that do not
// reduce to 11 digits are returned with separators stripped but unchanged
// otherwise.
func Format(mawb string) string {
	digits := digitsOf(mawb)
	if len(digits) != 11 {
		return digits
	}
	return digits[:3] + "-" + digits[3:]
}

// Parse extracts ordered items from a text blob. Lines without a valid
// MAWB are dropped silently; callers detect loss by comparing counts.
func Parse(text string) []Item {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := nonEmptyLines(text)
	if !strings.Contains(text, "\t") && len(lines) > 1 {
		if rebuilt := reconstructVertical(lines); len(rebuilt) > 0 {
			lines = rebuilt
		}
	}

	var items []Item
	for _, line := range lines {
		raw, ok := parseLine(line)
		if !ok {
			continue
		}
		mawb, err := Normalize(raw.MAWB)
		if err != nil {
			continue
		}
		raw.MAWB = mawb
		items = append(items, raw)
	}
	return items
}

func parseLine(line string) (Item, bool) {
	switch {
	case strings.Contains(line, "\t"):
		return parseDelimited(splitTrim(line, "\t"))
	case strings.Contains(line, ","):
		return parseDelimited(splitTrim(line, ","))
	case strings.Count(line, " ") >= 2 || regexp.MustCompile(`\s{2,}`).MatchString(line):
		return parseSpaced(strings.Fields(line))
	default:
		return Item{MAWB: line}, true
	}
}

// parseDelimited handles tab and comma separated rows. A 5-column row is
// Port, Customer, Broker (ignored), HAWBs, Master; a 3-column row drops
// Broker and HAWBs.
func parseDelimited(parts []string) (Item, bool) {
	switch {
	case len(parts) >= 5 && mawbTokenRe.MatchString(parts[4]):
		return Item{
			MAWB:           parts[4],
			AirportCode:    parts[0],
			Customer:       parts[1],
			CheckbookHAWBs: parts[3],
		}, true
	case len(parts) >= 3:
		return Item{MAWB: parts[2], AirportCode: parts[0], Customer: parts[1]}, true
	case len(parts) == 2:
		// Identify the MAWB side by its digit run.
		if mawbTokenRe.MatchString(parts[0]) {
			it := Item{MAWB: parts[0]}
			if parts[1] != "" && !mawbTokenRe.MatchString(parts[1]) {
				it.AirportCode = parts[1]
			}
			return it, true
		}
		if mawbTokenRe.MatchString(parts[1]) {
			it := Item{MAWB: parts[1]}
			if parts[0] != "" && !mawbTokenRe.MatchString(parts[0]) {
				it.AirportCode = parts[0]
			}
			return it, true
		}
		return Item{}, false
	case len(parts) == 1:
		return Item{MAWB: parts[0]}, true
	}
	return Item{}, false
}

// parseSpaced locates the MAWB column by digit run. When the MAWB sits at
// index 4 the row follows 5-column semantics with checkbook HAWBs at
// index 3; otherwise the columns before the MAWB are airport and customer.
func parseSpaced(parts []string) (Item, bool) {
	if len(parts) == 0 {
		return Item{}, false
	}
	mawbIdx := -1
	for i, p := range parts {
		if mawbTokenRe.MatchString(p) {
			mawbIdx = i
			break
		}
	}
	if mawbIdx < 0 {
		it := Item{MAWB: parts[0]}
		if len(parts) > 1 {
			it.AirportCode = parts[1]
		}
		if len(parts) > 2 {
			it.Customer = parts[2]
		}
		return it, true
	}

	it := Item{MAWB: parts[mawbIdx]}
	if len(parts) >= 5 && mawbIdx == 4 {
		it.AirportCode = parts[0]
		it.Customer = parts[1]
		it.CheckbookHAWBs = parts[3]
		return it, true
	}
	before := parts[:mawbIdx]
	if len(before) >= 1 {
		it.AirportCode = before[0]
	}
	if len(before) >= 2 {
		it.Customer = before[1]
	}
	return it, true
}

// reconstructVertical regroups a one-cell-per-line spreadsheet paste into
// tab-joined rows. At each position it prefers a 5-column group (MAWB at
// offset 4), then a 3-column group, then scans up to 10 lines ahead for
// the next MAWB token.
func reconstructVertical(lines []string) []string {
	var out []string
	i := 0
	for i < len(lines) {
		if i+4 < len(lines) && len(digitsOf(lines[i+4])) == 11 {
			out = append(out, strings.Join(lines[i:i+5], "\t"))
			i += 5
			continue
		}
		if i+2 < len(lines) && len(digitsOf(lines[i+2])) == 11 {
			out = append(out, strings.Join(lines[i:i+3], "\t"))
			i += 3
			continue
		}
		found := false
		for j := i; j < min(i+10, len(lines)); j++ {
			if len(digitsOf(lines[j])) != 11 || j-i < 2 {
				continue
			}
			out = append(out, strings.Join(lines[i:j+1], "\t"))
			i = j + 1
			found = true
			break
		}
		if !found {
			i++
		}
	}
	return out
}

func digitsOf(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitTrim(line, sep string) []string {
	parts := strings.Split(line, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
