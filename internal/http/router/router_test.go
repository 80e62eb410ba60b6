package router_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clinichire.app/scout/internal/extract"
	"clinichire.app/scout/internal/http/middleware"
	"clinichire.app/scout/internal/http/router"
	"clinichire.app/scout/internal/service"
)

var _ = Describe("SetupRoutes", func() {
	var engine *gin.Engine

	// newEngine wires runs, when given, as both the pipeline's recorder and
	// the run log behind /extractions.
	newEngine := func(cfg router.RouterConfig, runs ...*memoryRunStore) *gin.Engine {
		gin.SetMode(gin.TestMode)
		e := gin.New()
		e.Use(middleware.RequestID())

		var (
			pipelineOpts []extract.Option
			serviceOpts  []service.Option
		)
		for _, r := range runs {
			pipelineOpts = append(pipelineOpts, extract.WithRecorder(r))
			serviceOpts = append(serviceOpts, service.WithRunStore(r))
		}
		pipeline := extract.NewPipeline(
			extract.NewHTTPFetcher(extract.FetcherConfig{Timeout: time.Second}),
			extract.NewDemoClient(),
			extract.DefaultSchemas(),
			pipelineOpts...,
		)
		router.SetupRoutes(e, service.NewServices(pipeline, serviceOpts...), cfg)
		return e
	}

	extractReq := func(path, body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	Context("with a run store", func() {
		var runs *memoryRunStore

		BeforeEach(func() {
			runs = &memoryRunStore{}
			engine = newEngine(router.RouterConfig{}, runs)
		})

		It("looks up a finished extraction by the id it returned", func() {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, extractReq("/api/v1/positions/extract", `{"url":"https://clinic.example.jp/recruit"}`))
			Expect(w.Code).To(Equal(http.StatusOK))

			var extracted map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &extracted)).To(Succeed())
			extractionID, ok := extracted["extractionId"].(string)
			Expect(ok).To(BeTrue())

			w = httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/extractions/"+extractionID, nil))
			Expect(w.Code).To(Equal(http.StatusOK))

			var run map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &run)).To(Succeed())
			Expect(run["extractionId"]).To(Equal(extractionID))
			Expect(run["outcome"]).To(Equal(extract.OutcomeSuccess))
			Expect(run["sourceHost"]).To(Equal("clinic.example.jp"))
			Expect(run["demo"]).To(BeTrue())
		})

		It("counts runs by outcome", func() {
			for _, body := range []string{`{"url":"https://example.com/a"}`, `{"url":"ftp://example.com"}`} {
				engine.ServeHTTP(httptest.NewRecorder(), extractReq("/api/v1/positions/extract", body))
			}

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/extractions/stats?since=1h", nil))
			Expect(w.Code).To(Equal(http.StatusOK))

			var stats map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &stats)).To(Succeed())
			Expect(stats["total"]).To(BeNumerically("==", 2))
			Expect(stats["counts"]).To(HaveKeyWithValue("success", BeNumerically("==", 1)))
			Expect(stats["counts"]).To(HaveKeyWithValue("failed:InvalidUrl", BeNumerically("==", 1)))
		})
	})

	Context("without an API key", func() {
		BeforeEach(func() {
			engine = newEngine(router.RouterConfig{})
		})

		It("serves demo records end to end", func() {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, extractReq("/api/v1/extract", `{"url":"https://example.com/recruit","schema":"competitor"}`))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get(middleware.RequestIDHeader)).NotTo(BeEmpty())

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["demo"]).To(BeTrue())
			Expect(resp["sourceUrl"]).To(Equal("https://example.com/recruit"))
			data := resp["extractedData"].(map[string]any)
			Expect(data["clinicName"]).NotTo(BeEmpty())
			Expect(data["conditions"]).NotTo(BeEmpty())
		})

		It("validates the url before answering in demo mode", func() {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, extractReq("/api/v1/positions/extract", `{"url":"ftp://example.com"}`))

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring(string(extract.KindInvalidURL)))
		})

		It("does not mount run lookups without a run store", func() {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/extractions/stats", nil))
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("serves health without dependencies", func() {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"status":"ok"`))
		})

		It("allows any origin", func() {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/extract", nil)
			req.Header.Set("Origin", "https://anywhere.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Context("with an API key", func() {
		const key = "s3cret"

		BeforeEach(func() {
			engine = newEngine(router.RouterConfig{APIKey: key, DashboardURL: "https://dashboard.example"})
		})

		It("rejects requests without the key", func() {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, extractReq("/api/v1/extract", `{"url":"https://example.com","schema":"position"}`))
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a wrong key", func() {
			req := extractReq("/api/v1/extract", `{"url":"https://example.com","schema":"position"}`)
			req.Header.Set("X-API-Key", "nope")
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		DescribeTable("accepts the key",
			func(header, value string) {
				req := extractReq("/api/v1/extract", `{"url":"https://example.com","schema":"position"}`)
				req.Header.Set(header, value)
				w := httptest.NewRecorder()
				engine.ServeHTTP(w, req)
				Expect(w.Code).To(Equal(http.StatusOK))
			},
			Entry("X-API-Key", "X-API-Key", key),
			Entry("bearer token", "Authorization", "Bearer "+key),
		)

		It("leaves health open", func() {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("allows only the dashboard origin", func() {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", "https://dashboard.example")
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://dashboard.example"))
		})
	})
})
