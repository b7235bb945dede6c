package scanning

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// looseNumber accepts a JSON number, a numeric string with either decimal
// separator, or null.
type looseNumber struct {
	value *float64
}

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		s = strings.TrimRight(s, " €$L")
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Models sometimes answer "n/a"; treat it as unreadable
		return nil
	}
	n.value = &v
	return nil
}

type rawTicket struct {
	Amount             looseNumber `json:"amount"`
	Liters             looseNumber `json:"liters"`
	PricePerLiter      looseNumber `json:"price_per_liter"`
	PricePerLiterCamel looseNumber `json:"pricePerLiter"`
	Odometer           looseNumber `json:"odometer"`
}

// parseTicketJSON extracts the ticket object from a model response.
// Non-positive values are discarded.
func parseTicketJSON(text string) (*TicketData, error) {
	text = stripCodeFence(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	var raw rawTicket
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	price := raw.PricePerLiter.value
	if price == nil {
		price = raw.PricePerLiterCamel.value
	}

	return &TicketData{
		Amount:        positiveOrNil(raw.Amount.value),
		Liters:        positiveOrNil(raw.Liters.value),
		PricePerLiter: positiveOrNil(price),
		Odometer:      positiveOrNil(raw.Odometer.value),
	}, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func positiveOrNil(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}
