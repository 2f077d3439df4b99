package store

// Broker holds portal credentials for one brokerage login. Password and
// OTPURI are stored sealed when the store carries a secrets box.
type Broker struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Username      string `json:"username"`
	Password      string `json:"password,omitempty"`
	Company       string `json:"company,omitempty"`
	IsActive      bool   `json:"is_active"`
	AuthRequired  bool   `json:"is_authentication_required"`
	OTPURI        string `json:"otp_uri,omitempty"`
	EntriesFormat string `json:"entries_format,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// Format describes one Custom Report template: its portal field arrays
// plus the spreadsheet dialect selector (TemplateIdentifier).
type Format struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	TemplateIdentifier string `json:"template_identifier"`
	Description        string `json:"description,omitempty"`
	TemplatePayload    string `json:"template_payload"` // JSON, see portal.TemplatePayload
	IsActive           bool   `json:"is_active"`
	CreatedAt          int64  `json:"created_at"`
	UpdatedAt          int64  `json:"updated_at"`
}

// Result is the consolidated outcome of one MAWB run, upserted on
// (mawb, broker_id, format_id).
type Result struct {
	ID           string `json:"id"`
	MAWB         string `json:"mawb"`
	BrokerID     string `json:"broker_id"`
	FormatID     string `json:"format_id"`
	BatchID      string `json:"batch_id,omitempty"`
	Status       string `json:"status"` // success | failed
	BrokerName   string `json:"broker_name,omitempty"`
	TemplateName string `json:"template_name,omitempty"`
	AirportCode  string `json:"airport_code,omitempty"`
	Customer     string `json:"customer,omitempty"`
	SectionsJSON string `json:"sections_json,omitempty"`
	SummaryJSON  string `json:"summary_json,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	ArtifactURL  string `json:"artifact_url,omitempty"`
	PDFPath      string `json:"pdf_path,omitempty"`
	PDFURL       string `json:"pdf_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	StartedAt    int64  `json:"started_at"`
	CompletedAt  int64  `json:"completed_at,omitempty"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Batch groups the items of one submission.
type Batch struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SectionsJSON string `json:"sections_json"`
	Status       string `json:"status"` // pending | running | completed | cancelled | failed
	InitiatedBy  string `json:"initiated_by,omitempty"`
	StartedAt    int64  `json:"started_at,omitempty"`
	CompletedAt  int64  `json:"completed_at,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// BatchItem is one MAWB inside a batch.
type BatchItem struct {
	ID                string `json:"id"`
	BatchID           string `json:"batch_id"`
	MAWB              string `json:"mawb"`
	AirportCode       string `json:"airport_code,omitempty"`
	Customer          string `json:"customer,omitempty"`
	CheckbookHAWBs    string `json:"checkbook_hawbs,omitempty"`
	BrokerID          string `json:"broker_id"`
	FormatID          string `json:"format_id"`
	ResultID          string `json:"result_id,omitempty"`
	Status            string `json:"status"` // pending | running | success | failed | cancelled
	Position          int    `json:"position"`
	LogsJSON          string `json:"logs_json,omitempty"`
	ProcessingSeconds int64  `json:"processing_time_seconds,omitempty"`
	StartedAt         int64  `json:"started_at,omitempty"`
	CompletedAt       int64  `json:"completed_at,omitempty"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

// BatchCounts aggregates item statuses for the batch status endpoint.
type BatchCounts struct {
	Total     int `json:"item_count"`
	Pending   int `json:"pending_count"`
	Running   int `json:"running_count"`
	Success   int `json:"success_count"`
	Failed    int `json:"failed_count"`
	Cancelled int `json:"cancelled_count"`
}
