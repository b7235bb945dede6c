package scanning

// TicketData holds the values read from a fuel ticket or pump display.
// A nil field was not legible.
type TicketData struct {
	Amount        *float64 `json:"amount"`
	Liters        *float64 `json:"liters"`
	PricePerLiter *float64 `json:"price_per_liter"`
	Odometer      *float64 `json:"odometer"`
}

// Scanner extracts refuel values from an image or PDF
type Scanner interface {
	// ScanTicket reads a ticket, pump display or dashboard photo
	ScanTicket(imageData []byte, contentType string) (*TicketData, error)

	// Close closes the scanner and releases resources
	Close() error
}
