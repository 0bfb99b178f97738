package lifecycle

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the format of every date field in the payload.
const DateLayout = "2006-01-02"

var (
	ErrMissingRequired = errors.New("missing required fields")
	ErrInvalidField    = errors.New("invalid field value")
)

// Payload is the guardian form. Unknown keys in stored or submitted JSON
// are ignored.
type Payload struct {
	NomEnfant                string         `json:"nomEnfant,omitempty"`
	PrenomEnfant             string         `json:"prenomEnfant,omitempty"`
	DateNaissance            string         `json:"dateNaissance,omitempty"`
	Poids                    FlexibleNumber `json:"poids,omitempty"`
	Sexe                     string         `json:"sexe,omitempty"`
	NomParents               string         `json:"nomParents,omitempty"`
	PrenomsParents           string         `json:"prenomsParents,omitempty"`
	Adresse                  string         `json:"adresse,omitempty"`
	Telephone                string         `json:"telephone,omitempty"`
	PersonnesAutorisees      string         `json:"personnesAutorisees,omitempty"`
	TraitementMedical        string         `json:"traitementMedical,omitempty"`
	TraitementDetail         string         `json:"traitementDetail,omitempty"`
	DateVaccinAvant2018      string         `json:"dateVaccinAvant2018,omitempty"`
	DateVaccinApres2018      string         `json:"dateVaccinApres2018,omitempty"`
	Asthme                   string         `json:"asthme,omitempty"`
	AllergiesMedicamenteuses string         `json:"allergiesMedicamenteuses,omitempty"`
	AllergiesAlimentaires    string         `json:"allergiesAlimentaires,omitempty"`
	AutresAllergies          string         `json:"autresAllergies,omitempty"`
	PrecisionAllergies       string         `json:"precisionAllergies,omitempty"`
	DifficulteSante          string         `json:"difficulteSante,omitempty"`
	AutorisationTransport    string         `json:"autorisationTransport,omitempty"`
	AutorisationPhotos       string         `json:"autorisationPhotos,omitempty"`
	Date                     string         `json:"date,omitempty"`
}

// RequiredFields must all be non-empty before a submission is accepted.
var RequiredFields = []string{
	"nomEnfant", "prenomEnfant", "dateNaissance", "sexe",
	"nomParents", "telephone", "autorisationTransport", "autorisationPhotos",
}

// EnumFields lists the closed-choice fields and their options.
var EnumFields = map[string][]string{
	"sexe":                  {"F", "M"},
	"traitementMedical":     {"oui", "non"},
	"autorisationTransport": {"oui", "non"},
	"autorisationPhotos":    {"oui", "non"},
}

var dateFields = []string{"dateNaissance", "dateVaccinAvant2018", "dateVaccinApres2018", "date"}

// Field returns a field by its JSON name, "" when unknown.
func (p *Payload) Field(name string) string {
	switch name {
	case "nomEnfant":
		return p.NomEnfant
	case "prenomEnfant":
		return p.PrenomEnfant
	case "dateNaissance":
		return p.DateNaissance
	case "poids":
		return p.Poids.String()
	case "sexe":
		return p.Sexe
	case "nomParents":
		return p.NomParents
	case "prenomsParents":
		return p.PrenomsParents
	case "adresse":
		return p.Adresse
	case "telephone":
		return p.Telephone
	case "personnesAutorisees":
		return p.PersonnesAutorisees
	case "traitementMedical":
		return p.TraitementMedical
	case "traitementDetail":
		return p.TraitementDetail
	case "dateVaccinAvant2018":
		return p.DateVaccinAvant2018
	case "dateVaccinApres2018":
		return p.DateVaccinApres2018
	case "asthme":
		return p.Asthme
	case "allergiesMedicamenteuses":
		return p.AllergiesMedicamenteuses
	case "allergiesAlimentaires":
		return p.AllergiesAlimentaires
	case "autresAllergies":
		return p.AutresAllergies
	case "precisionAllergies":
		return p.PrecisionAllergies
	case "difficulteSante":
		return p.DifficulteSante
	case "autorisationTransport":
		return p.AutorisationTransport
	case "autorisationPhotos":
		return p.AutorisationPhotos
	case "date":
		return p.Date
	}
	return ""
}

// MissingRequired names the required fields left blank.
func (p *Payload) MissingRequired() []string {
	var missing []string
	for _, f := range RequiredFields {
		if strings.TrimSpace(p.Field(f)) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Validate reports a single aggregate ErrMissingRequired when any required
// field is blank, then checks enum, date and number formats.
func (p *Payload) Validate() error {
	if len(p.MissingRequired()) > 0 {
		return ErrMissingRequired
	}
	for name, options := range EnumFields {
		v := p.Field(name)
		if v == "" {
			continue
		}
		if !contains(options, v) {
			return fmt.Errorf("%w: %s", ErrInvalidField, name)
		}
	}
	for _, name := range dateFields {
		v := p.Field(name)
		if v == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, v); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidField, name)
		}
	}
	if p.Poids != "" {
		w, err := p.Poids.Float()
		if err != nil || math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: poids", ErrInvalidField)
		}
	}
	return nil
}

// StampDate fills the submission date when the guardian left it empty.
func (p *Payload) StampDate(now time.Time) {
	if p.Date == "" {
		p.Date = now.UTC().Format(DateLayout)
	}
}

// Prefill is what a guardian sees before anything was submitted.
func Prefill(nom, prenom string) Payload {
	return Payload{NomEnfant: nom, PrenomEnfant: prenom}
}

// SimulatedPayload is the canned answer used by the console's test-fill.
func SimulatedPayload(nom, prenom string, now time.Time) Payload {
	return Payload{
		NomEnfant:             nom,
		PrenomEnfant:          prenom,
		DateNaissance:         "2020-03-15",
		Poids:                 "18",
		Sexe:                  "M",
		NomParents:            "Dupont",
		PrenomsParents:        "Jean et Marie",
		Adresse:               "12 rue des Alpes, 73000 Chambéry",
		Telephone:             "06 12 34 56 78",
		PersonnesAutorisees:   "Grand-mère : Mme Dupont - 06 98 76 54 32",
		TraitementMedical:     "non",
		DateVaccinApres2018:   "2021-06-15",
		AutorisationTransport: "oui",
		AutorisationPhotos:    "oui",
		Date:                  now.UTC().Format(DateLayout),
	}
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
