package refuel

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/zombor/refuel-tracker/internal/metrics"
)

const (
	maxUploadSize    = int64(50 << 20) // high-resolution phone photos
	defaultListLimit = 10
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Kind   Kind              `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeError maps domain errors to status codes. Rejection messages are
// passed through verbatim; anything unexpected is logged and hidden.
func writeError(w http.ResponseWriter, err error) {
	setCORSHeaders(w)

	var verr *ValidationError
	var rej *RejectionError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Kind: KindValidation, Fields: verr.Fields})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found", Kind: KindNotFound})
	case errors.As(err, &rej):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: rej.Message, Kind: rej.Kind})
	case errors.Is(err, ErrScannerDisabled):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		slog.Error("Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name": "Refuel Tracker",
		"endpoints": []string{
			"POST /api/refuels",
			"GET /api/refuels",
			"GET /api/refuels/{id}",
			"PUT /api/refuels/{id}",
			"DELETE /api/refuels/{id}",
			"GET /api/refuels/{id}/evidence",
			"POST /api/scans",
			"GET /api/summary",
			"GET /api/trip-cost?distance=",
			"GET /api/export.xlsx",
			"GET /api/export.pdf",
			"GET /metrics",
		},
	})
}

// parseEdit reads a submission as JSON or as a (multipart) form
func parseEdit(r *http.Request) (*Edit, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		return ParseEditJSON(io.LimitReader(r.Body, 1<<20))
	case "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return nil, &ValidationError{Fields: map[string]string{"body": "invalid form"}}
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, &ValidationError{Fields: map[string]string{"body": "invalid form"}}
		}
	}
	return ParseEditForm(r.Form)
}

func (s *Server) handleCreateRefuel(w http.ResponseWriter, r *http.Request) {
	edit, err := parseEdit(r)
	if err != nil {
		metrics.CountSubmission(metrics.ResultInvalid)
		writeError(w, err)
		return
	}

	record, err := s.service.AddRefuel(edit.Candidate(s.service.Now()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListRefuels(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, &ValidationError{Fields: map[string]string{"limit": "must be a non-negative integer"}})
			return
		}
		limit = n
	}

	records, err := s.service.ListRefuels(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetRefuel(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetRefuel(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleUpdateRefuel(w http.ResponseWriter, r *http.Request) {
	edit, err := parseEdit(r)
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := s.service.UpdateRefuel(r.PathValue("id"), edit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteRefuel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRefuel(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetEvidence(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleScanTicket extracts values from an uploaded photo. Nothing is saved
// as a refuel; the client reviews the values and submits them.
func (s *Server) handleScanTicket(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, &ValidationError{Fields: map[string]string{"file": msg}})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, &ValidationError{Fields: map[string]string{"file": "No file was selected. Please choose a file to upload."}})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, err)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(header.Filename)
	}

	scan, err := s.service.ScanTicket(header.Filename, data, contentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.service.Summary()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleTripCost(w http.ResponseWriter, r *http.Request) {
	raw := strings.Replace(strings.TrimSpace(r.URL.Query().Get("distance")), ",", ".", 1)
	distance, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeError(w, &ValidationError{Fields: map[string]string{"distance": "must be a number"}})
		return
	}

	cost, err := s.service.EstimateTripCost(distance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cost)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.export(w, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", BuildRefuelXLSX)
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	s.export(w, "pdf", "application/pdf", BuildRefuelPDF)
}

func (s *Server) export(w http.ResponseWriter, format, contentType string, build func([]*Record) ([]byte, error)) {
	records, err := s.service.ListRefuels(0)
	if err != nil {
		metrics.IncExport(format, metrics.ResultFailure)
		writeError(w, err)
		return
	}

	data, err := build(records)
	if err != nil {
		metrics.IncExport(format, metrics.ResultFailure)
		writeError(w, err)
		return
	}
	metrics.IncExport(format, metrics.ResultSuccess)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="refuels.`+format+`"`)
	w.Write(data)
}
