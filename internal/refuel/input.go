package refuel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Input field names shared by forms and JSON bodies
const (
	fieldAmount        = "amount"
	fieldLiters        = "liters"
	fieldPricePerLiter = "price_per_liter"
	fieldOdometer      = "odometer"
	fieldTripDistance  = "trip_distance"
	fieldIsFullTank    = "is_full_tank"
	fieldDate          = "date"
	fieldNotes         = "notes"
	fieldEvidenceFile  = "evidence_file"
)

var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	dateLayout,
}

// Edit holds the fields present in a submission. Nil means not provided.
type Edit struct {
	Amount        *float64
	Liters        *float64
	PricePerLiter *float64
	Odometer      *float64
	TripDistance  *float64
	IsFullTank    *bool
	Date          *time.Time
	Notes         *string
	EvidenceFile  *string

	// dateOnly is set when Date carried no time of day
	dateOnly bool
}

// Candidate applies the submission defaults: a full tank, dated now
func (e *Edit) Candidate(now time.Time) Candidate {
	c := Candidate{
		Amount:        e.Amount,
		Liters:        e.Liters,
		PricePerLiter: e.PricePerLiter,
		Odometer:      e.Odometer,
		TripDistance:  e.TripDistance,
		IsFullTank:    true,
		Date:          now,
	}
	if e.IsFullTank != nil {
		c.IsFullTank = *e.IsFullTank
	}
	if e.Date != nil {
		c.Date = e.dateAt(now)
	}
	if e.Notes != nil {
		c.Notes = *e.Notes
	}
	if e.EvidenceFile != nil {
		c.EvidenceFile = *e.EvidenceFile
	}
	return c
}

// Apply overwrites the record's fields with the ones present in the edit
func (e *Edit) Apply(r *Record) {
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat(&r.Amount, e.Amount)
	setFloat(&r.Liters, e.Liters)
	setFloat(&r.PricePerLiter, e.PricePerLiter)
	setFloat(&r.Odometer, e.Odometer)
	setFloat(&r.TripDistance, e.TripDistance)
	if e.IsFullTank != nil {
		r.IsFullTank = *e.IsFullTank
	}
	if e.Date != nil {
		r.Date = e.dateAt(r.Date)
	}
	if e.Notes != nil {
		r.Notes = *e.Notes
	}
	if e.EvidenceFile != nil {
		r.EvidenceFile = *e.EvidenceFile
	}
}

// dateAt returns the edit's date. A date given without a time of day takes
// the clock time of ref, so same-day records keep their submission order.
func (e *Edit) dateAt(ref time.Time) time.Time {
	if !e.dateOnly || ref.IsZero() {
		return *e.Date
	}
	y, m, d := e.Date.Date()
	return time.Date(y, m, d, ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
}

// ParseEditForm coerces form values into an Edit. Decimal commas are
// accepted and every number must be positive.
func ParseEditForm(values url.Values) (*Edit, error) {
	var (
		e    Edit
		verr ValidationError
	)

	e.Amount = parseNumber(values, fieldAmount, false, &verr)
	e.Liters = parseNumber(values, fieldLiters, false, &verr)
	e.PricePerLiter = parseNumber(values, fieldPricePerLiter, false, &verr)
	e.Odometer = parseNumber(values, fieldOdometer, true, &verr)
	e.TripDistance = parseNumber(values, fieldTripDistance, false, &verr)

	if raw, ok := field(values, fieldIsFullTank); ok {
		full, err := parseBool(raw)
		if err != nil {
			verr.add(fieldIsFullTank, err.Error())
		} else {
			e.IsFullTank = &full
		}
	}

	if raw, ok := field(values, fieldDate); ok {
		d, dateOnly, err := parseDate(raw)
		if err != nil {
			verr.add(fieldDate, err.Error())
		} else {
			e.Date = &d
			e.dateOnly = dateOnly
		}
	}

	if raw, ok := field(values, fieldNotes); ok {
		e.Notes = &raw
	}
	if raw, ok := field(values, fieldEvidenceFile); ok {
		if !validStorageName(raw) {
			verr.add(fieldEvidenceFile, "invalid file name")
		} else {
			e.EvidenceFile = &raw
		}
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return &e, nil
}

// ParseEditJSON accepts a JSON object with the same field names as the
// form. Numbers may be sent as JSON numbers or as strings.
func ParseEditJSON(r io.Reader) (*Edit, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"body": "invalid JSON object"}}
	}

	values := url.Values{}
	var verr ValidationError
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		if len(v) == 0 || string(v) == "null" {
			continue
		}

		var s string
		switch v[0] {
		case '"':
			if err := json.Unmarshal(v, &s); err != nil {
				verr.add(k, "invalid string")
				continue
			}
		case '{', '[':
			verr.add(k, "must be a scalar value")
			continue
		default:
			s = string(v)
		}
		values.Set(k, s)
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return ParseEditForm(values)
}

// ParseCandidateForm parses a new refuel submitted as a form
func ParseCandidateForm(values url.Values, now time.Time) (Candidate, error) {
	e, err := ParseEditForm(values)
	if err != nil {
		return Candidate{}, err
	}
	return e.Candidate(now), nil
}

// ParseCandidateJSON parses a new refuel submitted as JSON
func ParseCandidateJSON(r io.Reader, now time.Time) (Candidate, error) {
	e, err := ParseEditJSON(r)
	if err != nil {
		return Candidate{}, err
	}
	return e.Candidate(now), nil
}

// ValidateRecord checks a record that was edited without re-triangulation.
// It accepts every record Resolve can produce, including a negative trip
// derived from an odometer below the previous reading.
func ValidateRecord(r *Record) error {
	var verr ValidationError
	finite := func(v float64) bool {
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	}
	check := func(name string, v float64) {
		if !finite(v) || v <= 0 {
			verr.add(name, "must be greater than 0")
		}
	}
	check(fieldAmount, r.Amount)
	check(fieldLiters, r.Liters)
	check(fieldPricePerLiter, r.PricePerLiter)
	if !finite(r.Odometer) || r.Odometer < 0 {
		verr.add(fieldOdometer, "must not be negative")
	}
	if !finite(r.TripDistance) {
		verr.add(fieldTripDistance, "must be a number")
	}
	if r.Date.IsZero() {
		verr.add(fieldDate, "is required")
	}
	return verr.orNil()
}

// field returns the trimmed value of name, and false when it is absent or blank
func field(values url.Values, name string) (string, bool) {
	raw := strings.TrimSpace(values.Get(name))
	return raw, raw != ""
}

func parseNumber(values url.Values, name string, integer bool, verr *ValidationError) *float64 {
	raw, ok := field(values, name)
	if !ok {
		return nil
	}
	raw = strings.Replace(raw, ",", ".", 1)

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		verr.add(name, "must be a number")
		return nil
	}
	if v <= 0 {
		verr.add(name, "must be greater than 0")
		return nil
	}
	if integer && v != math.Trunc(v) {
		verr.add(name, "must be a whole number")
		return nil
	}
	return &v
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("must be a boolean")
}

// parseDate also reports whether raw was a calendar day without a time
func parseDate(raw string) (time.Time, bool, error) {
	for _, layout := range dateFormats {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, layout == dateLayout, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("must be a date (YYYY-MM-DD)")
}
