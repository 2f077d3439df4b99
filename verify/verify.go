// CLAUDE:SUMMARY Pure reconciliation checks over a result summary.
// Package verify holds the two consistency checks the pipeline runs
// around the 7501 PDF stage. Both are total functions over the summary
// map; unparseable figures degrade to zero rather than erroring so a
// partially scraped summary still gets a verdict.
package verify

import (
	"fmt"
	"strconv"
	"strings"
)

// Tolerance is the maximum absolute duty difference still considered a
// match. Duty figures are dollars and cents; anything past a cent is a
// real discrepancy.
const Tolerance = 0.01

// ParseValue reads a summary figure as a float. "$" and thousands
// separators are stripped; empty, "N/A", and garbage become 0.
func ParseValue(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || strings.EqualFold(s, "n/a") {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// PreGate decides whether the 7501 PDF should be generated at all:
// every house count must agree, nothing may be rejected, and the AMS
// and report duties must match to the cent.
func PreGate(summary map[string]string) (bool, []string) {
	amsHAWBs := ParseValue(summary["AMS Total HAWBs"])
	houses7501 := ParseValue(summary["7501 Total Houses"])
	reportHouses := ParseValue(summary["Report Total House"])
	checkbook := ParseValue(summary["Checkbook HAWBs"])
	rejected := ParseValue(summary["Rejected Entries"])
	amsDuty := ParseValue(summary["AMS Duty"])
	reportDuty := ParseValue(summary["Report Duty"])

	var issues []string
	if !(amsHAWBs == houses7501 && houses7501 == reportHouses && reportHouses == checkbook) {
		issues = append(issues, fmt.Sprintf(
			"houses mismatch (AMS: %g, 7501: %g, Report: %g, Checkbook: %g)",
			amsHAWBs, houses7501, reportHouses, checkbook))
	}
	if rejected != 0 {
		issues = append(issues, fmt.Sprintf("rejected entries: %g", rejected))
	}
	if abs(amsDuty-reportDuty) > Tolerance {
		issues = append(issues, fmt.Sprintf(
			"duty mismatch (AMS: $%.2f, Report: $%.2f)", amsDuty, reportDuty))
	}
	return len(issues) == 0, issues
}

// Reconcile is the post-PDF check: the three duty figures must agree
// pairwise and the T-11 counts from AMS and the PDF must match. The
// result is informational; the pipeline logs issues but never fails on
// them.
func Reconcile(summary map[string]string) (bool, []string) {
	amsDuty := ParseValue(summary["AMS Duty"])
	reportDuty := ParseValue(summary["Report Duty"])
	duty7501 := ParseValue(summary["7501 Duty"])
	amsT11 := ParseValue(summary["AMS Total T-11 Entries"])
	t117501 := ParseValue(summary["7501 Total T-11 Entries"])

	var issues []string
	if abs(amsDuty-reportDuty) > Tolerance ||
		abs(amsDuty-duty7501) > Tolerance ||
		abs(reportDuty-duty7501) > Tolerance {
		issues = append(issues, fmt.Sprintf(
			"duty mismatch (AMS: $%.2f, Report: $%.2f, 7501: $%.2f)",
			amsDuty, reportDuty, duty7501))
	}
	if amsT11 != t117501 {
		issues = append(issues, fmt.Sprintf(
			"T-11 mismatch (AMS: %g, 7501: %g)", amsT11, t117501))
	}
	return len(issues) == 0, issues
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
