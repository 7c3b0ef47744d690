package analysis

import (
	"encoding/json"
	"strings"
)

// Field names of the inference contract. The prompt asks the model for these
// exact JSON keys; the fallback strategies map free-text labels onto them.
const (
	fieldName               = "nom"
	fieldDescription        = "description"
	fieldCommercialName     = "nomCommercial"
	fieldManufacturer       = "laboratoire"
	fieldActiveIngredient   = "dci"
	fieldDosageForm         = "formePharmaceutique"
	fieldDosage             = "dosage"
	fieldTherapeuticClass   = "classeTherapeutique"
	fieldIndications        = "indicationsTherapeutiques"
	fieldDosingInstructions = "posologie"
	fieldContraindications  = "contreIndications"
	fieldSideEffects        = "effetsSecondaires"
	fieldInteractions       = "interactions"
	fieldPrecautions        = "precautionsEmploi"
	fieldStorage            = "conservation"
)

var detailFields = []string{
	fieldCommercialName,
	fieldManufacturer,
	fieldActiveIngredient,
	fieldDosageForm,
	fieldDosage,
	fieldTherapeuticClass,
	fieldIndications,
	fieldDosingInstructions,
	fieldContraindications,
	fieldSideEffects,
	fieldInteractions,
	fieldPrecautions,
	fieldStorage,
}

// ParsedResponse is the partial output of one parsing strategy. Normalize
// turns it into a total MedicationAnalysis.
type ParsedResponse struct {
	Name        string
	Description string
	Fields      map[string]string

	// Identified is false when the model explicitly answered with the
	// "not identified" sentinel, or when no strategy extracted anything.
	Identified bool

	// Degraded is true when every strategy failed and the default result
	// was substituted. Not an error: the documented degraded outcome.
	Degraded bool

	// Strategy names the extraction path taken: "json", "embedded-json",
	// "lines" or "none".
	Strategy string
}

// Parse extracts medication fields from raw model output. Strategies are
// attempted in priority order, first success wins; it never fails.
func Parse(raw string) ParsedResponse {
	trimmed := strings.TrimSpace(raw)

	if p, ok := parseStrictJSON(trimmed); ok {
		p.Strategy = "json"
		return p
	}
	if p, ok := parseEmbeddedJSON(trimmed); ok {
		p.Strategy = "embedded-json"
		return p
	}
	if p, ok := parseLabelledLines(trimmed); ok {
		p.Strategy = "lines"
		return p
	}

	return ParsedResponse{
		Name:        UnidentifiedName,
		Description: UnidentifiedDescription,
		Fields:      map[string]string{},
		Strategy:    "none",
		Degraded:    true,
	}
}

// Normalize merges the partial parse into a total MedicationAnalysis: every
// detail field absent from the parse is set to NotAvailable.
func (p ParsedResponse) Normalize(imageURL string) MedicationAnalysis {
	name := p.Name
	if strings.TrimSpace(name) == "" {
		name = UnidentifiedName
	}
	desc := p.Description
	if strings.TrimSpace(desc) == "" {
		desc = "Aucune description disponible"
	}

	get := func(key string) string {
		if v, ok := p.Fields[key]; ok && strings.TrimSpace(v) != "" {
			return v
		}
		return NotAvailable
	}

	details := MedicationDetails{
		CommercialName:     get(fieldCommercialName),
		Manufacturer:       get(fieldManufacturer),
		ActiveIngredient:   get(fieldActiveIngredient),
		DosageForm:         get(fieldDosageForm),
		Dosage:             get(fieldDosage),
		TherapeuticClass:   get(fieldTherapeuticClass),
		Indications:        get(fieldIndications),
		DosingInstructions: get(fieldDosingInstructions),
		Contraindications:  get(fieldContraindications),
		SideEffects:        get(fieldSideEffects),
		Interactions:       get(fieldInteractions),
		Precautions:        get(fieldPrecautions),
		StorageConditions:  get(fieldStorage),
	}
	// The commercial name defaults to the medication name, not the sentinel.
	if details.CommercialName == NotAvailable {
		details.CommercialName = name
	}

	return MedicationAnalysis{
		Name:        name,
		Description: desc,
		ImageURL:    imageURL,
		Details:     details,
	}
}

// parseStrictJSON handles the primary contract: the whole response is one
// JSON object.
func parseStrictJSON(text string) (ParsedResponse, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return ParsedResponse{}, false
	}
	return fromObject(obj)
}

// parseEmbeddedJSON handles JSON wrapped in prose or code fences: greedy
// match from the first '{' to the last '}'.
func parseEmbeddedJSON(text string) (ParsedResponse, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ParsedResponse{}, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return ParsedResponse{}, false
	}
	return fromObject(obj)
}

func fromObject(obj map[string]any) (ParsedResponse, bool) {
	p := ParsedResponse{Fields: map[string]string{}, Identified: true}

	str := func(key string) string {
		if v, ok := obj[key].(string); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}

	p.Name = str(fieldName)
	p.Description = str(fieldDescription)
	for _, key := range detailFields {
		if v := str(key); v != "" {
			p.Fields[key] = v
		}
	}

	// The explicit "not identified" answer is a minimal object carrying only
	// nom/description. Propagate it as-is instead of backfilling.
	if p.Name == UnidentifiedName && len(p.Fields) == 0 {
		p.Identified = false
		return p, true
	}

	if p.Name == "" && len(p.Fields) == 0 {
		return ParsedResponse{}, false
	}
	return p, true
}

// labelRule maps a normalized label onto a contract field. A label matches
// when it contains every keyword of the rule; rules are tried in order and
// the first match wins per line.
type labelRule struct {
	field    string
	keywords []string
}

var labelRules = []labelRule{
	{fieldContraindications, []string{"contre", "indication"}},
	{fieldCommercialName, []string{"nom commercial"}},
	{fieldManufacturer, []string{"laboratoire"}},
	{fieldManufacturer, []string{"fabricant"}},
	{fieldActiveIngredient, []string{"principe"}},
	{fieldActiveIngredient, []string{"dci"}},
	{fieldDosageForm, []string{"forme"}},
	{fieldDosingInstructions, []string{"posologie"}},
	{fieldDosage, []string{"dosage"}},
	{fieldTherapeuticClass, []string{"classe"}},
	{fieldTherapeuticClass, []string{"classification"}},
	{fieldIndications, []string{"indication"}},
	{fieldSideEffects, []string{"effet"}},
	{fieldInteractions, []string{"interaction"}},
	{fieldPrecautions, []string{"précaution"}},
	{fieldPrecautions, []string{"precaution"}},
	{fieldStorage, []string{"conservation"}},
	{fieldDescription, []string{"description"}},
	{fieldName, []string{"nom"}},
}

// parseLabelledLines is the last-resort strategy for "Label: value" lines
// and markdown table rows.
func parseLabelledLines(text string) (ParsedResponse, bool) {
	p := ParsedResponse{Fields: map[string]string{}, Identified: true}

	for _, line := range strings.Split(text, "\n") {
		label, value, ok := splitLabelledLine(line)
		if !ok {
			continue
		}
		field, ok := matchLabel(label)
		if !ok {
			continue
		}
		switch field {
		case fieldName:
			if p.Name == "" {
				p.Name = value
			}
		case fieldDescription:
			if p.Description == "" {
				p.Description = value
			}
		default:
			if _, seen := p.Fields[field]; !seen {
				p.Fields[field] = value
			}
		}
	}

	if p.Name == "" && len(p.Fields) == 0 {
		return ParsedResponse{}, false
	}
	return p, true
}

// splitLabelledLine accepts "Label: value" or "| Label | value |".
func splitLabelledLine(line string) (label, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", false
	}

	if strings.HasPrefix(line, "|") {
		cells := strings.Split(strings.Trim(line, "|"), "|")
		if len(cells) < 2 {
			return "", "", false
		}
		label = strings.TrimSpace(cells[0])
		value = strings.TrimSpace(cells[1])
	} else {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			return "", "", false
		}
		label = strings.TrimSpace(line[:idx])
		value = strings.TrimSpace(line[idx+1:])
	}

	// Skip separator rows and markdown emphasis around labels.
	label = strings.Trim(label, "*_# ")
	if label == "" || value == "" || strings.Trim(value, "-: ") == "" {
		return "", "", false
	}
	return label, value, true
}

func matchLabel(label string) (string, bool) {
	norm := strings.ToLower(strings.TrimSpace(label))
	for _, rule := range labelRules {
		all := true
		for _, kw := range rule.keywords {
			if !strings.Contains(norm, kw) {
				all = false
				break
			}
		}
		if all {
			return rule.field, true
		}
	}
	return "", false
}
