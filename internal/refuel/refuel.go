package refuel

import "time"

// Candidate is a refuel as submitted, before missing values are inferred.
// Nil numeric fields were not provided.
type Candidate struct {
	Amount        *float64  `json:"amount,omitempty"`          // Currency units
	Liters        *float64  `json:"liters,omitempty"`
	PricePerLiter *float64  `json:"price_per_liter,omitempty"`
	Odometer      *float64  `json:"odometer,omitempty"`        // Absolute reading
	TripDistance  *float64  `json:"trip_distance,omitempty"`   // Distance since the previous refuel
	IsFullTank    bool      `json:"is_full_tank"`
	Date          time.Time `json:"date"`
	Notes         string    `json:"notes,omitempty"`
	EvidenceFile  string    `json:"evidence_file,omitempty"`
}

// Record is a fully resolved refuel as persisted
type Record struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"`
	Amount        float64   `json:"amount"`
	Liters        float64   `json:"liters"`
	PricePerLiter float64   `json:"price_per_liter"`
	Odometer      float64   `json:"odometer"`
	TripDistance  float64   `json:"trip_distance"`
	IsFullTank    bool      `json:"is_full_tank"`
	IsEstimated   bool      `json:"is_estimated"` // Some value came from an average or a consumption guess
	Notes         string    `json:"notes,omitempty"`
	EvidenceFile  string    `json:"evidence_file,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Candidate returns the record as a candidate with every numeric field set
func (r *Record) Candidate() Candidate {
	amount, liters, price := r.Amount, r.Liters, r.PricePerLiter
	odometer, trip := r.Odometer, r.TripDistance
	return Candidate{
		Amount:        &amount,
		Liters:        &liters,
		PricePerLiter: &price,
		Odometer:      &odometer,
		TripDistance:  &trip,
		IsFullTank:    r.IsFullTank,
		Date:          r.Date,
		Notes:         r.Notes,
		EvidenceFile:  r.EvidenceFile,
	}
}

// Averages are the historical means used when nothing better is known
type Averages struct {
	AvgPricePerLiter       float64 `json:"avg_price_per_liter"`
	AvgConsumptionPer100km float64 `json:"avg_consumption_per_100km"`
}

// History is the read-only context a candidate is resolved against
type History struct {
	LastRecord *Record
	Averages
}

// Summary aggregates the whole refuel log
type Summary struct {
	Records           int      `json:"records"`
	EstimatedRecords  int      `json:"estimated_records"`
	TotalSpent        float64  `json:"total_spent"`
	TotalLiters       float64  `json:"total_liters"`
	AvgPaidPerLiter   float64  `json:"avg_paid_per_liter"`            // TotalSpent / TotalLiters
	LatestConsumption *float64 `json:"latest_consumption,omitempty"` // L/100km between the two latest refuels
	Averages          Averages `json:"averages"`
}

// TripCost is an estimate for driving a distance at historical averages
type TripCost struct {
	DistanceKm float64 `json:"distance_km"`
	Liters     float64 `json:"liters"`
	Cost       float64 `json:"cost"`
}

// Scan is the result of extracting values from a ticket photo
type Scan struct {
	EvidenceFile  string   `json:"evidence_file"`
	ContentType   string   `json:"content_type"`
	Amount        *float64 `json:"amount"`
	Liters        *float64 `json:"liters"`
	PricePerLiter *float64 `json:"price_per_liter"`
	Odometer      *float64 `json:"odometer"`
}
