package refuel

const (
	msgInsufficientData  = "insufficient data to estimate the refuel: at least the amount must be provided"
	msgOdometerRequired  = "odometer is mandatory for the first record"
	msgNoMileageBaseline = "cannot estimate mileage without prior history"
)

// resolution is the working state threaded through the stages
type resolution struct {
	amount, liters, price  *float64
	odometer, tripDistance *float64
	estimated              bool
}

// Resolve fills in the values missing from c using h and returns the
// resulting record, or a *RejectionError when c cannot be completed.
// The record has no ID or timestamps. Resolve has no side effects.
func Resolve(c Candidate, h History) (*Record, error) {
	r := &resolution{
		amount:       positive(c.Amount),
		liters:       positive(c.Liters),
		price:        positive(c.PricePerLiter),
		odometer:     copyOf(c.Odometer),
		tripDistance: copyOf(c.TripDistance),
	}

	r.resolvePrice(h.AvgPricePerLiter)
	r.resolveLiters()
	r.resolveAmount()
	if !resolved(r.amount) || !resolved(r.liters) {
		return nil, reject(KindInsufficientData, msgInsufficientData)
	}
	if err := r.resolveDistance(h); err != nil {
		return nil, err
	}

	return &Record{
		Date:          c.Date,
		Amount:        *r.amount,
		Liters:        *r.liters,
		PricePerLiter: *r.price,
		Odometer:      *r.odometer,
		TripDistance:  *r.tripDistance,
		IsFullTank:    c.IsFullTank,
		IsEstimated:   r.estimated,
		Notes:         c.Notes,
		EvidenceFile:  c.EvidenceFile,
	}, nil
}

func (r *resolution) resolvePrice(avg float64) {
	switch {
	case r.price != nil:
	case r.amount != nil && r.liters != nil:
		r.price = value(*r.amount / *r.liters)
	default:
		r.price = value(avg)
		r.estimated = true
	}
}

// resolveLiters marks the record estimated even though the division is exact:
// a volume the user did not enter is treated as inferred.
func (r *resolution) resolveLiters() {
	if r.liters != nil || r.amount == nil || r.price == nil || *r.price <= 0 {
		return
	}
	r.liters = value(*r.amount / *r.price)
	r.estimated = true
}

func (r *resolution) resolveAmount() {
	if r.amount != nil || r.liters == nil || r.price == nil {
		return
	}
	r.amount = value(*r.liters * *r.price)
	r.estimated = true
}

func (r *resolution) resolveDistance(h History) error {
	last := h.LastRecord
	switch {
	case r.odometer != nil && r.tripDistance != nil:
	case r.tripDistance != nil:
		if last == nil {
			return reject(KindMissingHistory, msgOdometerRequired)
		}
		r.odometer = value(last.Odometer + *r.tripDistance)
	case r.odometer != nil:
		if last == nil {
			r.tripDistance = value(0)
		} else {
			r.tripDistance = value(*r.odometer - last.Odometer)
		}
	default:
		// A zero consumption average means there is no usable history either.
		if last == nil || h.AvgConsumptionPer100km <= 0 {
			return reject(KindMissingHistory, msgNoMileageBaseline)
		}
		r.tripDistance = value(*r.liters * 100 / h.AvgConsumptionPer100km)
		r.estimated = true
		r.odometer = value(last.Odometer + *r.tripDistance)
	}
	return nil
}

func positive(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return value(*v)
}

func resolved(v *float64) bool {
	return v != nil && *v > 0
}

func copyOf(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return value(*v)
}

func value(v float64) *float64 {
	return &v
}
