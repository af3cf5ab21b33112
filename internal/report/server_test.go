package report_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/lablens/lablens/internal/analysis"
	"github.com/lablens/lablens/internal/scan"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		pipeline    *mockPipeline
		storage     *mockStorage
		service     *rpt.Service
		server      *rpt.Server
		auth        rpt.BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		pipeline = newMockPipeline()
		storage = newMockStorage()
		service = rpt.NewService(db, pipeline, storage)
		auth = rpt.BasicAuth{}
		server = rpt.NewServerWithMux(service, auth, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleListReports", func() {
		When("reports exist", func() {
			BeforeEach(func() {
				db.reports["id1"] = &rpt.Report{ID: "id1", Title: "first"}
				db.reports["id2"] = &rpt.Report{ID: "id2", Title: "second"}
			})

			It("should return all reports as JSON", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/reports")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var reports []*rpt.Report
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &reports)).NotTo(HaveOccurred())
				Expect(reports).To(HaveLen(2))
			})
		})

		When("no reports exist", func() {
			It("should return an empty array, not null", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/reports")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("db error")
			})

			It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/reports")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	Describe("handleUploadReport", func() {
		uploadFile := func(filename string, data []byte) *http.Response {
			var b bytes.Buffer
			writer := multipart.NewWriter(&b)
			part, err := writer.CreateFormFile("file", filename)
			Expect(err).NotTo(HaveOccurred())
			part.Write(data)
			writer.Close()

			resp, err := http.Post(ghttpServer.URL()+"/api/reports", writer.FormDataContentType(), &b)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("a photo upload succeeds", func() {
			It("should return the created report", func() {
				resp := uploadFile("labs.png", pngBytes())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var report rpt.Report
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &report)).NotTo(HaveOccurred())
				Expect(report.ID).NotTo(BeEmpty())
				Expect(report.Kind).To(Equal(analysis.KindAnalyzed))
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request with a message", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				writer.WriteField("note", "no file here")
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/reports", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("error"))
			})
		})

		When("the upload cannot be decoded", func() {
			It("should return status Bad Request", func() {
				resp := uploadFile("garbage.png", []byte("not an image"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("handleGetReport", func() {
		BeforeEach(func() {
			db.reports["test-id"] = &rpt.Report{ID: "test-id", Title: "labs.pdf"}
		})

		It("should return the report", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/reports/test-id")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var report rpt.Report
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &report)).NotTo(HaveOccurred())
			Expect(report.Title).To(Equal("labs.pdf"))
		})

		It("should return Not Found for an unknown ID", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/reports/nonexistent")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("handleGetReportFile", func() {
		BeforeEach(func() {
			db.reports["test-id"] = &rpt.Report{
				ID:          "test-id",
				Filename:    "test-id_labs.pdf",
				ContentType: "application/pdf",
			}
			storage.files["test-id_labs.pdf"] = []byte("%PDF-1.7 original")
		})

		It("should return the original file with its content type", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/reports/test-id/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(HavePrefix("%PDF-"))
		})
	})

	Describe("handleDeleteReport", func() {
		BeforeEach(func() {
			db.reports["test-id"] = &rpt.Report{ID: "test-id", Filename: "f.pdf"}
			storage.files["f.pdf"] = []byte("data")
		})

		It("should delete and return No Content", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/reports/test-id", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
			Expect(db.reports).NotTo(HaveKey("test-id"))
		})
	})

	Describe("handleRetry", func() {
		When("a cached submission exists", func() {
			It("should return the new report", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/reports/retry", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var report rpt.Report
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &report)).NotTo(HaveOccurred())
				Expect(report.Title).To(Equal("Reanalysis"))
			})
		})

		When("no cached submission exists", func() {
			BeforeEach(func() {
				pipeline.retryErr = scan.ErrNoRetryInput
			})

			It("should return status Conflict", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/reports/retry", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
				resp.Body.Close()
			})
		})
	})

	Describe("scan session endpoints", func() {
		It("GET /api/scan/status returns the snapshot", func() {
			pipeline.snapshot = scan.Snapshot{
				Phase:         scan.PhaseRenderingDocument,
				PagesRendered: 2,
				PagesTotal:    8,
			}

			resp, err := http.Get(ghttpServer.URL() + "/api/scan/status")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var snapshot scan.Snapshot
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &snapshot)).NotTo(HaveOccurred())
			Expect(snapshot.Phase).To(Equal(scan.PhaseRenderingDocument))
			Expect(snapshot.PagesRendered).To(Equal(2))
			Expect(snapshot.PagesTotal).To(Equal(8))
		})

		It("POST /api/scan/cancel cancels the run", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/scan/cancel", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
			Expect(pipeline.cancelCalls).To(Equal(1))
		})

		It("DELETE /api/scan/input clears the retry cache", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/scan/input", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
			Expect(pipeline.clearCalls).To(Equal(1))
		})
	})

	Describe("profile endpoints", func() {
		It("PUT then GET round-trips the profile", func() {
			payload := `{"gender":"female","ageBand":"30-39"}`
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/profile", strings.NewReader(payload))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()

			resp, err = http.Get(ghttpServer.URL() + "/api/profile")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var profile analysis.Profile
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &profile)).NotTo(HaveOccurred())
			Expect(*profile.Gender).To(Equal("female"))
			Expect(*profile.AgeBand).To(Equal("30-39"))
		})

		It("GET returns an empty profile when none is stored", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/profile")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var profile analysis.Profile
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &profile)).NotTo(HaveOccurred())
			Expect(profile.Gender).To(BeNil())
		})
	})

	Describe("handleHealth", func() {
		It("should report ok without auth", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("ok"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = rpt.BasicAuth{Username: "admin", Password: "secret"}
			server = rpt.NewServerWithMux(service, auth, http.NewServeMux())
			setupServer()
		})

		It("rejects requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/reports")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("rejects requests with wrong credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/reports", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:wrong")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("accepts requests with valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/reports", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})

		It("leaves /health open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})
})
