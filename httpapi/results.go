// CLAUDE:SUMMARY Result queries and the Excel export.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/clearway/dutyrec/mawbinput"
	"github.com/clearway/dutyrec/store"
)

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	q := r.URL.Query()
	results, err := s.store.ListResults(r.Context(), q.Get("mawb"), q.Get("batch_id"), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "result not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// presignResult issues a fresh download URL for a result's 7501 PDF.
// Stored URLs expire; the key does not.
func (s *Server) presignResult(w http.ResponseWriter, r *http.Request) {
	if s.presigner == nil {
		writeError(w, http.StatusServiceUnavailable, "artifact storage not configured")
		return
	}
	res, err := s.store.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "result not found")
		return
	}
	if res.PDFPath == "" {
		writeError(w, http.StatusNotFound, "result has no stored PDF")
		return
	}
	url, err := s.presigner.Presign(r.Context(), res.PDFPath, s.ttl)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pdf_url": url})
}

// exportSummaryFields is the summary column order of the export sheet.
var exportSummaryFields = []string{
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
}

var exportCurrencyFields = map[string]bool{
	"AMS Duty":            true,
	"7501 Duty":           true,
	"Report Duty":         true,
	"Total Informal Duty": true,
	"Complete Total Duty": true,
}

// exportResults streams the matching results as an Excel workbook.
func (s *Server) exportResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := s.store.ListResults(r.Context(), q.Get("mawb"), q.Get("batch_id"), 10000, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data, err := buildResultsWorkbook(results)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="duty-results.xlsx"`)
	w.Write(data)
}

func buildResultsWorkbook(results []*store.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Duty Results"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("httpapi: new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headers := append([]string{
		"Airport Code",
		"Customer",
		"Broker Name",
		"Checkbook HAWBs",
		"MAWB",
	}, exportSummaryFields...)
	headers = append(headers, "Verification", "Template Name")
	if err := setRow(f, sheet, 1, headers); err != nil {
		return nil, err
	}

	for i, res := range results {
		var summary map[string]string
		if res.SummaryJSON != "" {
			if err := json.Unmarshal([]byte(res.SummaryJSON), &summary); err != nil {
				summary = nil
			}
		}

		verification := "Failed"
		if res.Status == "success" {
			verification = "Verified"
		}

		row := []string{
			res.AirportCode,
			res.Customer,
			res.BrokerName,
			summary["Checkbook HAWBs"],
			mawbinput.Format(res.MAWB),
		}
		for _, field := range exportSummaryFields {
			row = append(row, exportValue(field, summary[field]))
		}
		row = append(row, verification, res.TemplateName)
		if err := setRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("httpapi: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("httpapi: cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("httpapi: set cell: %w", err)
		}
	}
	return nil
}

// exportValue renders a summary field for the sheet: currency fields
// get "$#,###.##", N/A and empty become blank.
func exportValue(field, value string) string {
	if value == "" || value == "N/A" {
		return ""
	}
	if !exportCurrencyFields[field] {
		return value
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(value, "$", ""), ",", "")), 64)
	if err != nil {
		return "$0.00"
	}
	return "$" + formatThousands(v)
}

// formatThousands renders 1234567.8 as "1,234,567.80".
func formatThousands(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]
	var sb strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(c)
	}
	out := sb.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
