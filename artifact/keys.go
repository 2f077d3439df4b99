// CLAUDE:SUMMARY Deterministic artifact key construction.
package artifact

import "strings"

const (
	reportCategory = "customizable-reports"
	pdfCategory    = "7501-batch-pdfs"
)

// ExcelKey builds the object key for a custom report workbook. The
// Shoaib template gets a _V2 suffix so both dialect outputs can coexist
// for one master.
func ExcelKey(prefix, mawb, airport, customer, templateName string) string {
	name := objectName(mawb, airport, customer)
	if strings.Contains(strings.ToLower(templateName), "shoaib") {
		name += "_V2"
	}
	return prefix + "/" + reportCategory + "/" + name + ".xlsx"
}

// PDFKey builds the object key for a 7501 batch PDF.
func PDFKey(prefix, mawb, airport, customer string) string {
	return prefix + "/" + pdfCategory + "/" + objectName(mawb, airport, customer) + ".pdf"
}

// objectName renders "XXX-XXXXXXXX airport customer" with path
// separators scrubbed. Keys are recomputable from these inputs alone;
// the original download filename never matters.
func objectName(mawb, airport, customer string) string {
	digits := strings.NewReplacer("/", "-", "\\", "-", " ", "", "-", "").Replace(mawb)
	formatted := digits
	if len(digits) == 11 {
		formatted = digits[:3] + "-" + digits[3:]
	}

	parts := []string{formatted}
	for _, extra := range []string{airport, customer} {
		safe := strings.NewReplacer("/", "-", "\\", "-").Replace(strings.TrimSpace(extra))
		if safe != "" {
			parts = append(parts, safe)
		}
	}
	return strings.Join(parts, " ")
}
