package analysis

import "time"

// RecordID tipe untuk AnalysisRecord
type RecordID string

const (
	// NotAvailable fills every detail field the parser could not extract.
	// Downstream display code never has to branch on missing keys.
	NotAvailable = "Information non disponible"

	// UnidentifiedName is the degraded result name used when the model
	// cannot identify the medication.
	UnidentifiedName = "Médicament non identifié"

	// UnidentifiedDescription accompanies the degraded result.
	UnidentifiedDescription = "L'image ne permet pas d'identifier le médicament avec certitude. Veuillez réessayer avec une image plus claire."
)

// MaxImageBytes is the upper bound on accepted image payloads (5 MiB).
const MaxImageBytes = 5 << 20

// SourceImage is a validated, transport-ready image.
type SourceImage struct {
	MIME string
	Data []byte
}

// MedicationDetails is a total mapping: every field is always present, set
// either to a real value or to NotAvailable. JSON tags follow the inference
// contract field names.
type MedicationDetails struct {
	CommercialName     string `json:"nomCommercial"`
	Manufacturer       string `json:"laboratoire"`
	ActiveIngredient   string `json:"dci"`
	DosageForm         string `json:"formePharmaceutique"`
	Dosage             string `json:"dosage"`
	TherapeuticClass   string `json:"classeTherapeutique"`
	Indications        string `json:"indicationsTherapeutiques"`
	DosingInstructions string `json:"posologie"`
	Contraindications  string `json:"contreIndications"`
	SideEffects        string `json:"effetsSecondaires"`
	Interactions       string `json:"interactions"`
	Precautions        string `json:"precautionsEmploi"`
	StorageConditions  string `json:"conservation"`
}

// MedicationAnalysis is the normalized output of one analysis request.
// Constructed fresh per request and never mutated afterwards.
type MedicationAnalysis struct {
	Name        string            `json:"nom"`
	Description string            `json:"description"`
	ImageURL    string            `json:"image_url"`
	Details     MedicationDetails `json:"details_analyse"`
}

// Aggregate Root: AnalysisRecord, a persisted analysis owned by one user.
type AnalysisRecord struct {
	ID          RecordID          `json:"id"`
	OwnerID     string            `json:"user_id"`
	Name        string            `json:"nom"`
	Description string            `json:"description"`
	ImageURL    string            `json:"image_url"`
	Details     MedicationDetails `json:"details_analyse"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
