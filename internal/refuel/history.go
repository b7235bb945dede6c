package refuel

import "sort"

// Fallbacks used until the log has enough data to average
const (
	DefaultPricePerLiter       = 1.5
	DefaultConsumptionPer100km = 6.0
)

// BuildHistory derives the context a new refuel is resolved against
func BuildHistory(records []*Record) History {
	return History{
		LastRecord: LastRecord(records),
		Averages:   ComputeAverages(records),
	}
}

// LastRecord returns the most recent record by date, or nil for an empty log
func LastRecord(records []*Record) *Record {
	var last *Record
	for _, r := range records {
		if last == nil || newer(r, last) {
			last = r
		}
	}
	return last
}

// ComputeAverages averages price over every record and consumption over
// full-tank records that know both liters and trip distance.
func ComputeAverages(records []*Record) Averages {
	var (
		priceSum, consumptionSum float64
		priceN, consumptionN     int
	)
	for _, r := range records {
		if r.PricePerLiter > 0 {
			priceSum += r.PricePerLiter
			priceN++
		}
		if r.IsFullTank && r.Liters > 0 && r.TripDistance > 0 {
			consumptionSum += r.Liters / r.TripDistance * 100
			consumptionN++
		}
	}

	avg := Averages{
		AvgPricePerLiter:       DefaultPricePerLiter,
		AvgConsumptionPer100km: DefaultConsumptionPer100km,
	}
	if priceN > 0 && priceSum > 0 {
		avg.AvgPricePerLiter = priceSum / float64(priceN)
	}
	if consumptionN > 0 && consumptionSum > 0 {
		avg.AvgConsumptionPer100km = consumptionSum / float64(consumptionN)
	}
	return avg
}

// SortByDateDesc orders records newest first, in place
func SortByDateDesc(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return newer(records[i], records[j])
	})
}

func newer(a, b *Record) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
