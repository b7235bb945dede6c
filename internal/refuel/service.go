package refuel

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/zombor/refuel-tracker/internal/metrics"
	"github.com/zombor/refuel-tracker/internal/scanning"
)

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// ulidGenerator produces lexically sortable, monotonic IDs
type ulidGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newULIDGenerator() *ulidGenerator {
	return &ulidGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles refuel operations.
//
// Submissions are serialised: the history snapshot a candidate is resolved
// against must not change before the resulting record is stored.
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource

	writeMu sync.Mutex
}

// NewService creates a Service with ULID IDs and the wall clock.
// scanner may be nil when ticket scanning is disabled.
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(db, scanner, storage, newULIDGenerator(), &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Now returns the service clock, used as the default refuel date
func (s *Service) Now() time.Time {
	return s.timeSource.Now()
}

// AddRefuel completes a candidate from history and stores it.
// Nothing is stored when the candidate is rejected.
func (s *Service) AddRefuel(c Candidate) (*Record, error) {
	start := time.Now()

	record, err := s.addRefuel(c)

	result := metrics.ResultSaved
	switch KindOf(err) {
	case "":
		if err != nil {
			result = metrics.ResultError
		}
	case KindInsufficientData:
		result = metrics.ResultRejectedInsufficient
	case KindMissingHistory:
		result = metrics.ResultRejectedHistory
	default:
		result = metrics.ResultInvalid
	}
	metrics.ObserveSubmission(result, record != nil && record.IsEstimated, time.Since(start))

	return record, err
}

func (s *Service) addRefuel(c Candidate) (*Record, error) {
	if c.EvidenceFile != "" && !validStorageName(c.EvidenceFile) {
		return nil, &ValidationError{Fields: map[string]string{fieldEvidenceFile: "invalid file name"}}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	records, err := s.db.ListRefuels()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	history := BuildHistory(records)
	record, err := Resolve(c, history)
	if err != nil {
		slog.Info("Refuel rejected", "reason", err.Error(), "has_history", history.LastRecord != nil)
		return nil, err
	}

	now := s.timeSource.Now()
	if record.Date.IsZero() {
		record.Date = now
	}
	record.ID = s.idGenerator.Generate()
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := s.db.SaveRefuel(record); err != nil {
		return nil, fmt.Errorf("saving refuel: %w", err)
	}

	slog.Info("Refuel saved",
		"id", record.ID,
		"amount", record.Amount,
		"liters", record.Liters,
		"odometer", record.Odometer,
		"is_estimated", record.IsEstimated,
	)
	return record, nil
}

// UpdateRefuel overwrites the provided fields of a stored record.
// Missing values are not re-inferred and the estimated flag is kept.
func (s *Service) UpdateRefuel(id string, edit *Edit) (*Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	record, err := s.db.GetRefuel(id)
	if err != nil {
		return nil, fmt.Errorf("getting refuel: %w", err)
	}

	edit.Apply(record)
	if err := ValidateRecord(record); err != nil {
		return nil, err
	}
	record.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveRefuel(record); err != nil {
		return nil, fmt.Errorf("saving refuel: %w", err)
	}
	return record, nil
}

// GetRefuel retrieves a record by ID
func (s *Service) GetRefuel(id string) (*Record, error) {
	record, err := s.db.GetRefuel(id)
	if err != nil {
		return nil, fmt.Errorf("getting refuel: %w", err)
	}
	return record, nil
}

// ListRefuels returns the newest records first. A limit of zero or less returns all.
func (s *Service) ListRefuels(limit int) ([]*Record, error) {
	records, err := s.db.ListRefuels()
	if err != nil {
		return nil, fmt.Errorf("listing refuels: %w", err)
	}
	SortByDateDesc(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// DeleteRefuel removes a record and its evidence file
func (s *Service) DeleteRefuel(id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	record, err := s.db.GetRefuel(id)
	if err != nil {
		return fmt.Errorf("getting refuel for deletion: %w", err)
	}

	if record.EvidenceFile != "" {
		if err := s.storage.Delete(record.EvidenceFile); err != nil {
			slog.Warn("Failed to delete evidence file", "filename", record.EvidenceFile, "error", err)
		}
	}

	if err := s.db.DeleteRefuel(id); err != nil {
		return fmt.Errorf("deleting refuel from database: %w", err)
	}
	return nil
}

// ErrScannerDisabled is returned by ScanTicket when no scanner is configured
var ErrScannerDisabled = errors.New("ticket scanning is not configured")

// ScanTicket stores a ticket photo and extracts candidate values from it.
// The photo is removed again when extraction fails.
func (s *Service) ScanTicket(filename string, data []byte, contentType string) (*Scan, error) {
	if s.scanner == nil {
		return nil, ErrScannerDisabled
	}

	name := fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename))
	savedName, err := s.storage.Save(name, data)
	if err != nil {
		metrics.IncScan(metrics.ResultFailure)
		return nil, fmt.Errorf("saving file: %w", err)
	}

	ticket, err := s.scanner.ScanTicket(data, contentType)
	if err != nil {
		slog.Error("Failed to scan ticket",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if delErr := s.storage.Delete(savedName); delErr != nil {
			slog.Warn("Failed to clean up ticket file", "filename", savedName, "error", delErr)
		}
		metrics.IncScan(metrics.ResultFailure)
		return nil, fmt.Errorf("scanning ticket: %w", err)
	}
	metrics.IncScan(metrics.ResultSuccess)

	return &Scan{
		EvidenceFile:  savedName,
		ContentType:   contentType,
		Amount:        ticket.Amount,
		Liters:        ticket.Liters,
		PricePerLiter: ticket.PricePerLiter,
		Odometer:      ticket.Odometer,
	}, nil
}

// GetEvidence returns the ticket photo attached to a record
func (s *Service) GetEvidence(id string) ([]byte, string, error) {
	record, err := s.db.GetRefuel(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting refuel: %w", err)
	}
	if record.EvidenceFile == "" {
		return nil, "", fmt.Errorf("refuel %s has no evidence: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(record.EvidenceFile)
	if err != nil {
		return nil, "", fmt.Errorf("getting evidence file: %w", err)
	}
	return data, contentTypeFor(record.EvidenceFile), nil
}

// Summary aggregates the whole log
func (s *Service) Summary() (*Summary, error) {
	records, err := s.ListRefuels(0)
	if err != nil {
		return nil, err
	}
	return Summarize(records), nil
}

// Summarize computes totals and averages over records sorted newest first
func Summarize(records []*Record) *Summary {
	sum := &Summary{
		Records:  len(records),
		Averages: ComputeAverages(records),
	}
	for _, r := range records {
		sum.TotalSpent += r.Amount
		sum.TotalLiters += r.Liters
		if r.IsEstimated {
			sum.EstimatedRecords++
		}
	}
	if sum.TotalLiters > 0 {
		sum.AvgPaidPerLiter = sum.TotalSpent / sum.TotalLiters
	}
	if len(records) > 1 {
		if distance := records[0].Odometer - records[1].Odometer; distance > 0 {
			consumption := records[0].Liters / distance * 100
			sum.LatestConsumption = &consumption
		}
	}
	return sum
}

// EstimateTripCost prices a trip at the historical consumption and fuel price
func (s *Service) EstimateTripCost(distanceKm float64) (*TripCost, error) {
	if distanceKm <= 0 {
		return nil, &ValidationError{Fields: map[string]string{"distance": "must be greater than 0"}}
	}
	records, err := s.db.ListRefuels()
	if err != nil {
		return nil, fmt.Errorf("listing refuels: %w", err)
	}

	avg := ComputeAverages(records)
	liters := distanceKm * avg.AvgConsumptionPer100km / 100
	return &TripCost{
		DistanceKm: distanceKm,
		Liters:     liters,
		Cost:       liters * avg.AvgPricePerLiter,
	}, nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename shortens phone-generated names to something safe to store
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))
	base = strings.ReplaceAll(base, " ", "_")
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "ticket"
	}
	return base + ext
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}
