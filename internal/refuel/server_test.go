package refuel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		scanner     *mockScanner
		service     *Service
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = newMockScanner()
		service = NewServiceWithDeps(db, scanner, storage,
			&mockIDGenerator{id: "test-id-123"},
			&mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		)
		server = NewServerWithMux(service, BasicAuth{}, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	do := func(method, path, contentType string, body io.Reader) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response) map[string]interface{} {
		defer resp.Body.Close()
		var body map[string]interface{}
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return body
	}

	postJSON := func(body string) *http.Response {
		return do(http.MethodPost, "/api/refuels", "application/json", strings.NewReader(body))
	}

	Describe("handleIndex", func() {
		It("should describe the API", func() {
			resp := do(http.MethodGet, "/", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)).To(HaveKeyWithValue("name", "Refuel Tracker"))
		})

		It("should not serve unknown paths", func() {
			resp := do(http.MethodGet, "/unknown", "", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleCreateRefuel", func() {
		When("a JSON candidate resolves", func() {
			It("should return status Created with the completed record", func() {
				resp := postJSON(`{"amount": 60, "liters": 40, "odometer": 10000, "date": "2024-01-14"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				body := decode(resp)
				Expect(body).To(HaveKeyWithValue("id", "test-id-123"))
				Expect(body).To(HaveKeyWithValue("price_per_liter", 1.5))
				Expect(body).To(HaveKeyWithValue("is_estimated", false))
				Expect(body).To(HaveKeyWithValue("is_full_tank", true))
				Expect(db.refuels).To(HaveKey("test-id-123"))
			})
		})

		When("a form candidate resolves", func() {
			It("should return status Created", func() {
				form := url.Values{"amount": {"50"}, "price_per_liter": {"1,5"}, "odometer": {"10000"}}
				resp := do(http.MethodPost, "/api/refuels", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				body := decode(resp)
				Expect(body["liters"]).To(BeNumerically("~", 33.33, 0.01))
				Expect(body).To(HaveKeyWithValue("is_estimated", true))
			})
		})

		When("the candidate is rejected", func() {
			It("should return status Unprocessable Entity with the reason", func() {
				resp := postJSON(`{"liters": 40, "price_per_liter": 1.5}`)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				body := decode(resp)
				Expect(body).To(HaveKeyWithValue("kind", "missing_history"))
				Expect(body).To(HaveKeyWithValue("error", "cannot estimate mileage without prior history"))
				Expect(db.refuels).To(BeEmpty())
			})

			It("should report insufficient data", func() {
				resp := postJSON(`{"odometer": 10000}`)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(decode(resp)).To(HaveKeyWithValue("kind", "insufficient_data"))
			})
		})

		When("the input is invalid", func() {
			It("should return status Bad Request with the fields", func() {
				resp := postJSON(`{"amount": "abc"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				body := decode(resp)
				Expect(body).To(HaveKeyWithValue("kind", "validation"))
				Expect(body["fields"]).To(HaveKeyWithValue("amount", "must be a number"))
			})
		})
	})

	Describe("handleListRefuels", func() {
		BeforeEach(func() {
			for i := 1; i <= 12; i++ {
				id := fmt.Sprintf("r%02d", i)
				db.refuels[id] = &Record{ID: id, Date: day(i)}
			}
		})

		list := func(query string) []map[string]interface{} {
			resp := do(http.MethodGet, "/api/refuels"+query, "", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var records []map[string]interface{}
			Expect(json.NewDecoder(resp.Body).Decode(&records)).To(Succeed())
			return records
		}

		It("should return the ten newest records by default", func() {
			records := list("")
			Expect(records).To(HaveLen(10))
			Expect(records[0]).To(HaveKeyWithValue("id", "r12"))
		})

		It("should honour the limit", func() {
			Expect(list("?limit=2")).To(HaveLen(2))
			Expect(list("?limit=0")).To(HaveLen(12))
		})

		It("should reject an invalid limit", func() {
			resp := do(http.MethodGet, "/api/refuels?limit=abc", "", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleGetRefuel", func() {
		It("should return a stored record", func() {
			db.refuels["r1"] = &Record{ID: "r1", Amount: 60}
			resp := do(http.MethodGet, "/api/refuels/r1", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)).To(HaveKeyWithValue("amount", 60.0))
		})

		It("should return status Not Found for a missing record", func() {
			resp := do(http.MethodGet, "/api/refuels/missing", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(decode(resp)).To(HaveKeyWithValue("kind", "not_found"))
		})
	})

	Describe("handleUpdateRefuel", func() {
		BeforeEach(func() {
			db.refuels["r1"] = &Record{ID: "r1", Date: day(1), Amount: 60, Liters: 40, PricePerLiter: 1.5, Odometer: 10000, IsFullTank: true}
		})

		It("should apply the provided fields", func() {
			resp := do(http.MethodPut, "/api/refuels/r1", "application/json", strings.NewReader(`{"notes": "corrected", "liters": 41}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body := decode(resp)
			Expect(body).To(HaveKeyWithValue("notes", "corrected"))
			Expect(body).To(HaveKeyWithValue("liters", 41.0))
			Expect(body).To(HaveKeyWithValue("amount", 60.0))
		})

		It("should return status Not Found for a missing record", func() {
			resp := do(http.MethodPut, "/api/refuels/missing", "application/json", strings.NewReader(`{"notes": "x"}`))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleDeleteRefuel", func() {
		It("should return status No Content", func() {
			db.refuels["r1"] = &Record{ID: "r1"}
			resp := do(http.MethodDelete, "/api/refuels/r1", "", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.refuels).To(BeEmpty())
		})

		It("should return status Not Found for a missing record", func() {
			resp := do(http.MethodDelete, "/api/refuels/missing", "", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleGetEvidence", func() {
		It("should serve the ticket photo", func() {
			storage.files["test-id-123_ticket.png"] = []byte("png bytes")
			db.refuels["r1"] = &Record{ID: "r1", EvidenceFile: "test-id-123_ticket.png"}

			resp := do(http.MethodGet, "/api/refuels/r1/evidence", "", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("png bytes"))
		})
	})

	Describe("handleScanTicket", func() {
		upload := func(field, filename string, data []byte) *http.Response {
			var buf bytes.Buffer
			w := multipart.NewWriter(&buf)
			part, err := w.CreateFormFile(field, filename)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Close()).To(Succeed())
			return do(http.MethodPost, "/api/scans", w.FormDataContentType(), &buf)
		}

		When("the upload is scanned", func() {
			It("should return the extracted values", func() {
				resp := upload("file", "ticket.jpg", []byte("fake image"))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body := decode(resp)
				Expect(body).To(HaveKeyWithValue("evidence_file", "test-id-123_ticket.jpg"))
				Expect(body).To(HaveKeyWithValue("content_type", "image/jpeg"))
				Expect(body).To(HaveKeyWithValue("amount", 61.2))
				Expect(body).To(HaveKeyWithValue("odometer", BeNil()))
				Expect(db.refuels).To(BeEmpty())
			})
		})

		When("no file is sent", func() {
			It("should return status Bad Request", func() {
				resp := upload("other", "ticket.jpg", []byte("fake image"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decode(resp)["fields"]).To(HaveKey("file"))
			})
		})

		When("the scanner fails", func() {
			It("should return status Internal Server Error", func() {
				scanner.scanErr = fmt.Errorf("model unavailable")
				resp := upload("file", "ticket.jpg", []byte("fake image"))
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(decode(resp)).To(HaveKeyWithValue("error", "Internal server error"))
			})
		})

		When("scanning is disabled", func() {
			BeforeEach(func() {
				service = NewServiceWithDeps(db, nil, storage, &mockIDGenerator{id: "x"}, &mockTimeSource{})
				server = NewServerWithMux(service, BasicAuth{}, http.NewServeMux())
				setupServer()
			})

			It("should return status Service Unavailable", func() {
				resp := upload("file", "ticket.jpg", []byte("fake image"))
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			})
		})
	})

	Describe("handleSummary", func() {
		It("should aggregate the log", func() {
			db.refuels["a"] = &Record{ID: "a", Date: day(1), Amount: 60, Liters: 40, PricePerLiter: 1.5, Odometer: 10000, IsFullTank: true}
			resp := do(http.MethodGet, "/api/summary", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body := decode(resp)
			Expect(body).To(HaveKeyWithValue("records", 1.0))
			Expect(body).To(HaveKeyWithValue("total_spent", 60.0))
			Expect(body).NotTo(HaveKey("latest_consumption"))
		})
	})

	Describe("handleTripCost", func() {
		It("should estimate the trip at the defaults on an empty log", func() {
			resp := do(http.MethodGet, "/api/trip-cost?distance=100", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body := decode(resp)
			Expect(body["liters"]).To(BeNumerically("~", 6, 1e-9))
			Expect(body["cost"]).To(BeNumerically("~", 9, 1e-9))
		})

		DescribeTable("rejects invalid distances",
			func(query string) {
				resp := do(http.MethodGet, "/api/trip-cost"+query, "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decode(resp)["fields"]).To(HaveKey("distance"))
			},
			Entry("missing", ""),
			Entry("not a number", "?distance=far"),
			Entry("zero", "?distance=0"),
		)
	})

	Describe("exports", func() {
		BeforeEach(func() {
			db.refuels["a"] = &Record{ID: "a", Date: day(1), Amount: 60, Liters: 40, PricePerLiter: 1.5, Odometer: 10000, IsFullTank: true}
		})

		It("should serve a workbook", func() {
			resp := do(http.MethodGet, "/api/export.xlsx", "", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("refuels.xlsx"))
		})

		It("should serve a PDF", func() {
			resp := do(http.MethodGet, "/api/export.pdf", "", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(HavePrefix("%PDF"))
		})
	})

	Describe("metrics", func() {
		It("should expose the submission counters", func() {
			resp := postJSON(`{"amount": 60, "liters": 40, "odometer": 10000}`)
			resp.Body.Close()

			resp = do(http.MethodGet, "/metrics", "", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`refuel_submissions_total{result="saved"}`))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			server = NewServerWithMux(service, BasicAuth{Username: "admin", Password: "secret"}, http.NewServeMux())
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp := do(http.MethodGet, "/api/summary", "", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/summary", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/summary", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("Handler", func() {
		It("should answer preflight requests", func() {
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/refuels", nil))
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})

		It("should add CORS headers to regular responses", func() {
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})
})
