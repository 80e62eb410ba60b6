package extract_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clinichire.app/scout/common/llm"
	"clinichire.app/scout/internal/extract"
)

// postingPage pads a job posting well past the usable minimum.
func postingPage(body string) string {
	return "<html><head><style>p { margin: 0 }</style><script>track()</script></head><body>" +
		"<h1>歯科衛生士募集</h1>" +
		"<p>地域に根ざした予防中心の歯科医院です。患者さま一人ひとりに寄り添った診療を大切にしています。</p>" +
		body +
		"<p>勤務時間は9:00〜18:30、休診日は木曜・日曜・祝日です。社会保険完備、交通費支給、賞与年2回。</p>" +
		"</body></html>"
}

func jsonKeys(v any) []string {
	data, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	var m map[string]any
	Expect(json.Unmarshal(data, &m)).To(Succeed())
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ = Describe("Pipeline", func() {
	var (
		ctx       context.Context
		fetcher   *mockFetcher
		inference *mockInference
		recorder  *spyRecorder
		pipeline  *extract.Pipeline
	)

	BeforeEach(func() {
		ctx = context.Background()
		fetcher = &mockFetcher{
			fetchFn: func(_ context.Context, rawURL string) (*extract.RawPage, error) {
				return &extract.RawPage{URL: rawURL, StatusCode: 200, Body: postingPage("<p>月給25万円〜38万円</p>")}, nil
			},
		}
		inference = &mockInference{
			inferFn: func(_ context.Context, _ extract.Schema, _ string) (*extract.Inference, error) {
				return &extract.Inference{Reply: `{"title":"歯科衛生士","salaryMin":250000,"salaryMax":380000}`, Model: "mock"}, nil
			},
		}
		recorder = &spyRecorder{}
		pipeline = extract.NewPipeline(fetcher, inference, extract.DefaultSchemas(), extract.WithRecorder(recorder))
	})

	expectKind := func(err error, kind extract.Kind) *extract.Error {
		var perr *extract.Error
		ExpectWithOffset(1, errors.As(err, &perr)).To(BeTrue(), "expected *extract.Error, got %v", err)
		ExpectWithOffset(1, perr.Kind).To(Equal(kind))
		return perr
	}

	Describe("url validation", func() {
		DescribeTable("fails with InvalidUrl before any network call",
			func(raw string) {
				res, err := pipeline.Extract(ctx, extract.Request{SourceURL: raw, Schema: extract.SchemaPosition})
				Expect(res).To(BeNil())
				perr := expectKind(err, extract.KindInvalidURL)
				Expect(perr.Stage).To(Equal(extract.StageStart))
				Expect(perr.Kind.HTTPStatus()).To(Equal(http.StatusBadRequest))
				Expect(fetcher.Calls()).To(BeZero())
				Expect(inference.Calls()).To(BeZero())
			},
			Entry("file", "file:///etc/passwd"),
			Entry("ftp", "ftp://example.com/recruit"),
			Entry("data", "data:text/html,<p>hi</p>"),
			Entry("malformed", "http://[::1"),
			Entry("no scheme", "example.com/recruit"),
			Entry("empty", ""),
		)

		It("validates before taking the demo path", func() {
			demo := extract.NewPipeline(fetcher, extract.NewDemoClient(), extract.DefaultSchemas())
			_, err := demo.Extract(ctx, extract.Request{SourceURL: "ftp://example.com", Schema: extract.SchemaPosition})
			expectKind(err, extract.KindInvalidURL)
		})
	})

	Describe("content checks", func() {
		It("fails with InsufficientContent and never calls inference", func() {
			fetcher.fetchFn = func(_ context.Context, rawURL string) (*extract.RawPage, error) {
				return &extract.RawPage{URL: rawURL, StatusCode: 200, Body: `<div id="root"></div><script src="/app.js"></script><p>Loading...</p>`}, nil
			}

			_, err := pipeline.Extract(ctx, extract.Request{SourceURL: "https://example.com/jobs/1", Schema: extract.SchemaPosition})
			perr := expectKind(err, extract.KindInsufficientContent)
			Expect(perr.Stage).To(Equal(extract.StageFetched))
			Expect(perr.Kind.HTTPStatus()).To(Equal(http.StatusUnprocessableEntity))
			Expect(fetcher.Calls()).To(Equal(1))
			Expect(inference.Calls()).To(BeZero())
		})

		It("truncates long pages to the schema cap", func() {
			fetcher.fetchFn = func(_ context.Context, rawURL string) (*extract.RawPage, error) {
				return &extract.RawPage{URL: rawURL, StatusCode: 200, Body: "<p>" + strings.Repeat("歯", 500) + "</p>"}, nil
			}
			p := extract.NewPipeline(fetcher, inference, extract.NewSchemas(200, 300), extract.WithRecorder(recorder))

			res, err := p.Extract(ctx, extract.Request{SourceURL: "https://example.com/jobs/1", Schema: extract.SchemaPosition})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Truncated).To(BeTrue())

			schema, _ := extract.NewSchemas(200, 300).Get(extract.SchemaPosition)
			Expect(inference.prompts).To(HaveLen(1))
			Expect(inference.prompts[0]).To(Equal(schema.Template + strings.Repeat("歯", 200) + "..."))
			Expect(recorder.Events()[0].Truncated).To(BeTrue())
		})

		It("does not report truncation when the backend degraded to the demo reply", func() {
			fetcher.fetchFn = func(_ context.Context, rawURL string) (*extract.RawPage, error) {
				return &extract.RawPage{URL: rawURL, StatusCode: 200, Body: "<p>" + strings.Repeat("歯", 500) + "</p>"}, nil
			}
			model := &mockLLM{completeFn: func(context.Context, llm.Request) (*llm.Response, error) {
				return nil, &llm.StatusError{StatusCode: 503, Err: errors.New("overloaded")}
			}}
			live := extract.NewLiveClient(model, time.Second, extract.WithDegradeOnFailure(true))
			p := extract.NewPipeline(fetcher, live, extract.NewSchemas(200, 300), extract.WithRecorder(recorder))

			res, err := p.Extract(ctx, extract.Request{SourceURL: "https://example.com/jobs/1", Schema: extract.SchemaPosition})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Demo).To(BeTrue())
			Expect(res.Truncated).To(BeFalse())
			Expect(recorder.Events()[0].Demo).To(BeTrue())
			Expect(recorder.Events()[0].Truncated).To(BeFalse())
		})
	})

	Describe("component failures", func() {
		It("passes fetch errors through with their status", func() {
			fetcher.fetchFn = func(context.Context, string) (*extract.RawPage, error) {
				return nil, &extract.Error{Kind: extract.KindFetchFailed, UpstreamStatus: 403, Message: "the page returned HTTP 403"}
			}

			_, err := pipeline.Extract(ctx, extract.Request{SourceURL: "https://example.com", Schema: extract.SchemaCompetitor})
			perr := expectKind(err, extract.KindFetchFailed)
			Expect(perr.UpstreamStatus).To(Equal(403))
			Expect(perr.Stage).To(Equal(extract.StageURLValidated))
			Expect(inference.Calls()).To(BeZero())
		})

		It("classifies unclassified fetch errors as FetchFailed", func() {
			fetcher.fetchFn = func(context.Context, string) (*extract.RawPage, error) {
				return nil, errors.New("connection reset by peer")
			}

			_, err := pipeline.Extract(ctx, extract.Request{SourceURL: "https://example.com", Schema: extract.SchemaPosition})
			expectKind(err, extract.KindFetchFailed)
		})

		It("classifies inference errors as InferenceFailed", func() {
			inference.inferFn = func(context.Context, extract.Schema, string) (*extract.Inference, error) {
				return nil, errors.New("backend exploded")
			}

			_, err := pipeline.Extract(ctx, extract.Request{SourceURL: "https://example.com", Schema: extract.SchemaPosition})
			perr := expectKind(err, extract.KindInferenceFailed)
			Expect(perr.Message).To(ContainSubstring("try again"))
			Expect(perr.Kind.HTTPStatus()).To(Equal(http.StatusInternalServerError))
			Expect(perr.Kind.Retryable()).To(BeTrue())
		})

		It("fails with UnparsableResponse for prose replies", func() {
			inference.inferFn = func(context.Context, extract.Schema, string) (*extract.Inference, error) {
				return &extract.Inference{Reply: "not json at all", Model: "mock"}, nil
			}

			res, err := pipeline.Extract(ctx, extract.Request{SourceURL: "https://example.com", Schema: extract.SchemaPosition})
			Expect(res).To(BeNil())
			perr := expectKind(err, extract.KindUnparsableResponse)
			Expect(perr.Stage).To(Equal(extract.StageInferred))
			Expect(perr.Kind.HTTPStatus()).To(Equal(http.StatusInternalServerError))
			Expect(perr.Message).To(ContainSubstring("try again"))
		})
	})

	Describe("demo client", func() {
		It("returns the same schema-complete record every call without fetching", func() {
			demo := extract.NewPipeline(fetcher, extract.NewDemoClient(), extract.DefaultSchemas(), extract.WithRecorder(recorder))

			first, err := demo.Extract(ctx, extract.Request{SourceURL: "https://example.com/a", Schema: extract.SchemaPosition})
			Expect(err).NotTo(HaveOccurred())
			second, err := demo.Extract(ctx, extract.Request{SourceURL: "https://example.com/b", Schema: extract.SchemaPosition})
			Expect(err).NotTo(HaveOccurred())

			Expect(first.Demo).To(BeTrue())
			Expect(first.Record).To(Equal(second.Record))
			Expect(first.SourceURL).To(Equal("https://example.com/a"))
			Expect(fetcher.Calls()).To(BeZero())
			Expect(jsonKeys(first.Record)).To(Equal([]string{
				"benefits", "description", "employmentType", "holidays", "hourlyMax", "hourlyMin",
				"requirements", "salaryMax", "salaryMin", "title", "workingHours",
			}))
		})

		It("returns a competitor record with conditions", func() {
			demo := extract.NewPipeline(fetcher, extract.NewDemoClient(), extract.DefaultSchemas())

			res, err := demo.Extract(ctx, extract.Request{SourceURL: "https://example.com", Schema: extract.SchemaCompetitor})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Demo).To(BeTrue())

			record, ok := res.Record.(*extract.CompetitorRecord)
			Expect(ok).To(BeTrue())
			Expect(record.Conditions).NotTo(BeEmpty())
			Expect(jsonKeys(record)).To(Equal([]string{"address", "clinicName", "conditions", "website"}))
			Expect(jsonKeys(record.Conditions[0])).To(Equal([]string{
				"benefits", "employmentType", "holidays", "hourlyMax", "hourlyMin", "jobTitle",
				"salaryMax", "salaryMin", "source", "workingHours",
			}))
		})
	})

	Describe("events", func() {
		It("records exactly one success event", func() {
			res, err := pipeline.Extract(ctx, extract.Request{SourceURL: "https://example.com/jobs/1", Schema: extract.SchemaPosition, ExtractionID: 42})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ExtractionID).To(Equal(int64(42)))

			events := recorder.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].ExtractionID).To(Equal(int64(42)))
			Expect(events[0].Outcome).To(Equal(extract.OutcomeSuccess))
			Expect(events[0].Stage).To(Equal(extract.StageDone))
			Expect(events[0].SourceHost).To(Equal("example.com"))
			Expect(events[0].SchemaVersion).To(Equal("position/v2"))
			Expect(events[0].Kind).To(BeEmpty())
		})

		It("records exactly one failure event with the kind", func() {
			_, err := pipeline.Extract(ctx, extract.Request{SourceURL: "gopher://example.com", Schema: extract.SchemaPosition})
			Expect(err).To(HaveOccurred())

			events := recorder.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Outcome).To(Equal(extract.OutcomeFailed))
			Expect(events[0].Kind).To(Equal(extract.KindInvalidURL))
		})

		It("ignores recorder failures", func() {
			recorder.err = errors.New("stream unavailable")

			res, err := pipeline.Extract(ctx, extract.Request{SourceURL: "https://example.com", Schema: extract.SchemaPosition})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Record).NotTo(BeNil())
		})

		It("rejects unknown schemas without running", func() {
			_, err := pipeline.Extract(ctx, extract.Request{SourceURL: "https://example.com", Schema: "applicant"})
			Expect(errors.Is(err, extract.ErrUnknownSchema)).To(BeTrue())
			Expect(fetcher.Calls()).To(BeZero())
			Expect(recorder.Events()).To(BeEmpty())
		})
	})

	Describe("end to end with a live client", func() {
		var (
			server *httptest.Server
			model  *mockLLM
		)

		BeforeEach(func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				fmt.Fprint(w, postingPage("<p>月給25万円〜38万円</p>"))
			}))
			model = &mockLLM{
				completeFn: func(context.Context, llm.Request) (*llm.Response, error) {
					return &llm.Response{Content: "```json\n{\"title\":\"歯科衛生士\",\"employmentType\":\"full_time\",\"salaryMin\":250000,\"salaryMax\":380000}\n```"}, nil
				},
			}
		})

		AfterEach(func() {
			server.Close()
		})

		It("returns the backend's integers unchanged", func() {
			p := extract.NewPipeline(
				extract.NewHTTPFetcher(extract.FetcherConfig{Timeout: 2 * time.Second, AllowPrivateHosts: true}),
				extract.NewLiveClient(model, time.Second),
				extract.DefaultSchemas(),
				extract.WithRecorder(recorder),
			)

			res, err := p.Extract(ctx, extract.Request{SourceURL: server.URL + "/recruit", Schema: extract.SchemaPosition})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Demo).To(BeFalse())
			Expect(res.Model).To(Equal("mock-model"))

			record := res.Record.(*extract.PositionRecord)
			Expect(*record.SalaryMin).To(Equal(int64(250000)))
			Expect(*record.SalaryMax).To(Equal(int64(380000)))
			Expect(*record.EmploymentType).To(Equal(extract.EmploymentFullTime))
			Expect(record.HourlyMin).To(BeNil())

			Expect(model.requests).To(HaveLen(1))
			req := model.requests[0]
			Expect(req.UserPrompt).To(ContainSubstring("月給25万円〜38万円"))
			Expect(req.UserPrompt).NotTo(ContainSubstring("track()"))
			Expect(req.UserPrompt).NotTo(ContainSubstring("<p>"))
			Expect(req.MaxTokens).To(BeNumerically(">", 0))
			Expect(req.JSON).To(BeTrue())
		})

		It("aborts when the caller cancels", func() {
			p := extract.NewPipeline(
				extract.NewHTTPFetcher(extract.FetcherConfig{Timeout: 2 * time.Second, AllowPrivateHosts: true}),
				extract.NewLiveClient(model, time.Second),
				extract.DefaultSchemas(),
			)
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := p.Extract(cctx, extract.Request{SourceURL: server.URL, Schema: extract.SchemaPosition})
			expectKind(err, extract.KindFetchFailed)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(model.calls).To(BeZero())
		})
	})
})
