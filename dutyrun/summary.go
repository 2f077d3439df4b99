// CLAUDE:SUMMARY Fixed-key result summary for one MAWB run.
// Package dutyrun runs the per-MAWB reconciliation pipeline and the
// sequential batch orchestrator over it.
package dutyrun

// SummaryKeys is the complete, ordered key set of a run summary. The
// set is part of the result protocol; adding a key is a breaking
// change for every consumer of stored results.
var SummaryKeys = []string{
	"MAWB Number",
	"AMS Total HAWBs",
	"AMS Duty",
	"AMS Total T-11 Entries",
	"AMS Entries Accepted",
	"Rejected Entries",
	"7501 Total T-11 Entries",
	"7501 Total Houses",
	"7501 Duty",
	"Report Duty",
	"Report Total House",
	"Total Informal Duty",
	"Complete Total Duty",
	"Entry Date",
	"Cargo Release Date",
	"7501 Batch PDF URL",
	"Checkbook HAWBs",
}

// Summary maps each key in SummaryKeys to its scraped value. Stages
// that never ran or failed leave their fields at "N/A".
type Summary map[string]string

// NewSummary initializes every key to "N/A", then stamps the normalized
// MAWB digits and the checkbook HAWB count from the input row. Display
// surfaces format the MAWB themselves.
func NewSummary(mawb, checkbookHAWBs string) Summary {
	s := make(Summary, len(SummaryKeys))
	for _, k := range SummaryKeys {
		s[k] = "N/A"
	}
	s["MAWB Number"] = mawb
	if checkbookHAWBs != "" {
		s["Checkbook HAWBs"] = checkbookHAWBs
	}
	return s
}

// Merge copies the given fields over the summary, ignoring keys outside
// the protocol set.
func (s Summary) Merge(fields map[string]string) {
	for k, v := range fields {
		if _, ok := s[k]; ok {
			s[k] = v
		}
	}
}
