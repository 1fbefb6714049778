package internal

// Field names the fixed roster output columns. Every Transaction carries exactly
// one FusedField per Field, even when no extractor produced a value.
type Field string

const (
	FieldTransactionType Field = "Transaction Type"
	FieldProviderName    Field = "Provider Name"
	FieldProviderNPI     Field = "Provider NPI"
	FieldSpecialty       Field = "Provider Specialty"
	FieldLicense         Field = "License"
	FieldOrganization    Field = "Organization Name"
	FieldTIN             Field = "TIN"
	FieldGroupNPI        Field = "Group NPI"
	FieldPhone           Field = "Phone"
	FieldFax             Field = "Fax"
	FieldAddress         Field = "Address"
	FieldPPGID           Field = "PPG ID"
	FieldLineOfBusiness  Field = "Line of Business"
	FieldEffectiveDate   Field = "Effective Date"
	FieldTermDate        Field = "Term Date"
	FieldTermReason      Field = "Term Reason"
)

// FieldOrder is the column order of the output template.
var FieldOrder = []Field{
	FieldTransactionType,
	FieldProviderName,
	FieldProviderNPI,
	FieldSpecialty,
	FieldLicense,
	FieldOrganization,
	FieldTIN,
	FieldGroupNPI,
	FieldPhone,
	FieldFax,
	FieldAddress,
	FieldPPGID,
	FieldLineOfBusiness,
	FieldEffectiveDate,
	FieldTermDate,
	FieldTermReason,
}

type CandidateSource string

const (
	SourcePattern CandidateSource = "pattern"
	SourceTable   CandidateSource = "table"
	SourceEntity  CandidateSource = "entity"
)

type TransactionType string

const (
	TxAdd     TransactionType = "add"
	TxUpdate  TransactionType = "update"
	TxTerm    TransactionType = "term"
	TxUnknown TransactionType = "unknown"
)

type ValidationStatus string

const (
	StatusValid     ValidationStatus = "valid"
	StatusInvalid   ValidationStatus = "invalid"
	StatusUnchecked ValidationStatus = "unchecked"
)

// Attachment is a decoded attachment payload produced by the ingest stage.
// Table extraction from it may fail per-attachment without failing the message.
type Attachment struct {
	Filename string
	Content  []byte
}

// TableData is a structured table recovered from HTML, aligned text, or an
// attachment, before header-to-field mapping.
type TableData struct {
	Headers []string
	Rows    [][]string
	Origin  string
}

// Message is the canonical decoded email. Immutable once built by ingest.
type Message struct {
	Subject     string
	Sender      string
	Text        string
	HTML        string
	Attachments []Attachment

	// Tables recovered from attachments at ingest time, so extractors stay
	// pure over text/HTML and never touch attachment decoding themselves.
	AttachmentTables []TableData
}

// Section is one provider/transaction block inside a Message.
type Section struct {
	Index int
	Text  string
	HTML  string
	Start int // line offset into the normalized message text
	End   int
	Hint  TransactionType
}

// FieldCandidate is one extractor's proposed value for one field in one section.
type FieldCandidate struct {
	Field      Field
	Value      string
	Source     CandidateSource
	Confidence float64
	Pos        int // byte offset into the section text, -1 when not positional
	Context    string
}

// FusedField is the single authoritative value for a field in a section.
// Value is empty when no extractor found anything; Candidates keeps the full
// provenance trail regardless of which candidate won.
type FusedField struct {
	Field      Field
	Value      string
	Confidence float64
	Status     ValidationStatus
	Candidates []FieldCandidate
}

// Transaction is the terminal per-section record handed to the export stage.
type Transaction struct {
	SectionIndex int
	Type         TransactionType
	Fields       map[Field]FusedField
	FieldsValid  int
	FieldsFound  int
	Partial      bool
}

type StageOutcome string

const (
	OutcomeOK      StageOutcome = "ok"
	OutcomePartial StageOutcome = "partial"
	OutcomeFailed  StageOutcome = "failed"
)

// StageMetric is emitted once per stage invocation per message and never
// mutated afterwards.
type StageMetric struct {
	Stage   string
	Millis  float64
	Outcome StageOutcome
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

// RegistryRecord is a cached NPI registry lookup result.
type RegistryRecord struct {
	NPI        string
	Name       string
	Type       string
	VerifiedAt string
	Found      bool
}

// ExportRow is the flattened per-transaction row written to the output template.
type ExportRow struct {
	EmailID      int
	SectionIndex int
	Values       map[Field]string
	Confidences  map[Field]float64
	Statuses     map[Field]ValidationStatus
	FieldsValid  int
	FieldsFound  int
	Partial      bool
}
