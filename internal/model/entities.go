package model

// Collection names of the dispatch domain.
const (
	Ambulances    = "ambulances"
	Chauffeurs    = "chauffeurs"
	Interventions = "interventions"
	Hopitaux      = "hopitaux"
	Patients      = "patients"
)

// Collections lists every collection in navigation order.
var Collections = []string{Ambulances, Chauffeurs, Interventions, Hopitaux, Patients}

// Ambulance statuses.
const (
	StatutDisponible     = "Disponible"
	StatutEnIntervention = "En Intervention"
	StatutHorsService    = "Hors Service"
)

// InterventionTypes are the emergency categories charted on the dashboard.
var InterventionTypes = []string{"Accident", "Maladie", "Transfert"}

// DefaultSchemas returns the canonical entity schemas.
func DefaultSchemas() Schemas {
	return NewSchemas(
		Schema{Collection: Ambulances, Fields: []Field{
			{Name: "matricule", Kind: KindString, Required: true},
			{Name: "modele", Kind: KindString, Required: true},
			{Name: "statut", Kind: KindEnum, Required: true, Values: []string{StatutDisponible, StatutEnIntervention, StatutHorsService}},
			{Name: "localisation", Kind: KindString},
		}},
		Schema{Collection: Chauffeurs, Fields: []Field{
			{Name: "nom", Kind: KindString, Required: true},
			{Name: "prenom", Kind: KindString, Required: true},
			{Name: "statut", Kind: KindEnum, Required: true, Values: []string{"Actif", "Inactif", "En congé"}},
			{Name: "telephone", Kind: KindString},
		}},
		Schema{Collection: Interventions, Fields: []Field{
			{Name: "type", Kind: KindEnum, Required: true, Values: InterventionTypes},
			{Name: "statut", Kind: KindEnum, Required: true, Values: []string{"Ouverte", "En cours", "Terminée", "Annulée"}},
			{Name: "lieu", Kind: KindString, Required: true},
			{Name: "date", Kind: KindDate},
			{Name: "ambulanceId", Kind: KindInt},
			{Name: "chauffeurId", Kind: KindInt},
			{Name: "patientId", Kind: KindInt},
			{Name: "hopitalId", Kind: KindInt},
			{Name: "description", Kind: KindString},
		}},
		Schema{Collection: Hopitaux, Fields: []Field{
			{Name: "nom", Kind: KindString, Required: true},
			{Name: "ville", Kind: KindString, Required: true},
			{Name: "adresse", Kind: KindString},
			{Name: "telephone", Kind: KindString},
			{Name: "capacite", Kind: KindInt},
		}},
		Schema{Collection: Patients, Fields: []Field{
			{Name: "nom", Kind: KindString, Required: true},
			{Name: "prenom", Kind: KindString, Required: true},
			{Name: "age", Kind: KindInt},
			{Name: "telephone", Kind: KindString},
			{Name: "adresse", Kind: KindString},
		}},
	)
}
