package domain

import "time"

// Noms des colonnes du jeu de données clients
const (
	ColCustomerID   = "customer_id"
	ColAge          = "age"
	ColGender       = "sexe"
	ColZone         = "zone_geographique"
	ColClientType   = "type_client"
	ColConsumption  = "montant_consommation"
	ColCalls        = "nombre_appels"
	ColDataVolume   = "volume_data"
	ColSMS          = "nombre_sms"
	ColSubscription = "type_abonnement"
	ColDuration     = "duree_abonnement"
	ColSubscribedAt = "date_abonnement"
)

// DateLayout format des dates d'abonnement
const DateLayout = "2006-01-02"

// CustomerRecord un client synthétique ou importé.
// Numérique manquant = NaN, catégoriel manquant = "".
type CustomerRecord struct {
	CustomerID   string
	Age          float64
	Gender       string
	Zone         string
	ClientType   string
	Consumption  float64
	Calls        float64
	DataVolume   float64
	SMS          float64
	Subscription string
	Duration     float64
	SubscribedAt time.Time
}

// RecordsToFrame convertit des enregistrements en tableau (ordre de colonnes canonique)
func RecordsToFrame(records []CustomerRecord) *Frame {
	n := len(records)
	ids := make([]string, n)
	ages := make([]float64, n)
	genders := make([]string, n)
	zones := make([]string, n)
	types := make([]string, n)
	consumption := make([]float64, n)
	calls := make([]float64, n)
	data := make([]float64, n)
	sms := make([]float64, n)
	subscriptions := make([]string, n)
	durations := make([]float64, n)
	dates := make([]string, n)

	for i, r := range records {
		ids[i] = r.CustomerID
		ages[i] = r.Age
		genders[i] = r.Gender
		zones[i] = r.Zone
		types[i] = r.ClientType
		consumption[i] = r.Consumption
		calls[i] = r.Calls
		data[i] = r.DataVolume
		sms[i] = r.SMS
		subscriptions[i] = r.Subscription
		durations[i] = r.Duration
		if !r.SubscribedAt.IsZero() {
			dates[i] = r.SubscribedAt.Format(DateLayout)
		}
	}

	// Longueurs identiques par construction: les erreurs de SetX sont impossibles
	f := NewFrame(n)
	_ = f.SetText(ColCustomerID, ids)
	_ = f.SetNumeric(ColAge, ages)
	_ = f.SetText(ColGender, genders)
	_ = f.SetText(ColZone, zones)
	_ = f.SetText(ColClientType, types)
	_ = f.SetNumeric(ColConsumption, consumption)
	_ = f.SetNumeric(ColCalls, calls)
	_ = f.SetNumeric(ColDataVolume, data)
	_ = f.SetNumeric(ColSMS, sms)
	_ = f.SetText(ColSubscription, subscriptions)
	_ = f.SetNumeric(ColDuration, durations)
	_ = f.SetText(ColSubscribedAt, dates)
	return f
}
