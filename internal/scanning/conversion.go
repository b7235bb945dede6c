package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ticketScanPrompt is shared by every vision backend
const ticketScanPrompt = `You are reading a photo of a fuel station receipt, a fuel pump display, or a car instrument panel. Read all visible text and extract:

1. **amount**: the total price paid for the fuel, as a number (e.g. 62.35 for 62,35 €).
2. **liters**: the volume of fuel dispensed, in liters.
3. **price_per_liter**: the unit price per liter.
4. **odometer**: the total distance shown on the instrument panel, in kilometers, as a whole number.

Return ONLY valid JSON in this exact format:
{
  "amount": 0.00,
  "liters": 0.00,
  "price_per_liter": 0.000,
  "odometer": 0
}

Important:
- Use a dot as the decimal separator
- Use numbers, not strings
- Use null for any value that is not visible; never guess
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

type imageKind int

const (
	kindPNG imageKind = iota
	kindPDF
	kindHEIC
	kindOther
)

// classify picks the decoder for the upload, trusting magic bytes over the declared type
func classify(data []byte, mimeType string) imageKind {
	switch {
	case hasHEICSignature(data) || strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif"):
		return kindHEIC
	case bytes.HasPrefix(data, []byte("%PDF")) || mimeType == "application/pdf":
		return kindPDF
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) || mimeType == "image/png":
		return kindPNG
	}
	return kindOther
}

// hasHEICSignature looks for an ftyp box with a HEIF family brand
func hasHEICSignature(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// toPNG returns the upload as PNG bytes, rendering the first page of a PDF
func toPNG(data []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	var (
		img image.Image
		err error
	)
	switch classify(data, mimeType) {
	case kindPNG:
		return data, nil
	case kindPDF:
		img, err = renderFirstPage(data)
	case kindHEIC:
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("unsupported image format (supported: JPEG, PNG, GIF, HEIC, PDF): %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func renderFirstPage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}
