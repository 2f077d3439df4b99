package artifact

import "testing"

// WHAT: keys are deterministic from the item fields alone.
// WHY: results persist the key, and presigned URLs are regenerated
// from it long after the original filename is gone.
func TestExcelKey(t *testing.T) {
	cases := []struct {
		name     string
		mawb     string
		airport  string
		customer string
		template string
		want     string
	}{
		{
			name: "plain", mawb: "23594731221", airport: "ORD", customer: "MZZ",
			template: "FTE Match",
			want:     "netchb-duty/customizable-reports/235-94731221 ORD MZZ.xlsx",
		},
		{
			name: "shoaib suffix", mawb: "23594731221", airport: "ORD", customer: "MZZ",
			template: "Shoaib Match",
			want:     "netchb-duty/customizable-reports/235-94731221 ORD MZZ_V2.xlsx",
		},
		{
			name: "no extras", mawb: "235-94731221",
			template: "",
			want:     "netchb-duty/customizable-reports/235-94731221.xlsx",
		},
		{
			name: "separators scrubbed", mawb: "23594731221", airport: " O/RD ", customer: `A\B`,
			template: "fte",
			want:     "netchb-duty/customizable-reports/235-94731221 O-RD A-B.xlsx",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExcelKey("netchb-duty", tc.mawb, tc.airport, tc.customer, tc.template)
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPDFKey(t *testing.T) {
	got := PDFKey("netchb-duty", "23594731221", "ORD", "MZZ")
	want := "netchb-duty/7501-batch-pdfs/235-94731221 ORD MZZ.pdf"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// WHAT: the PDF key never carries the _V2 suffix; only the Shoaib
// Excel artifact is versioned.
func TestPDFKeyNoTemplateSuffix(t *testing.T) {
	got := PDFKey("p", "23594731221", "", "")
	if got != "p/7501-batch-pdfs/235-94731221.pdf" {
		t.Fatalf("got %q", got)
	}
}
