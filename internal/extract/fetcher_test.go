package extract_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/text/encoding/japanese"

	"clinichire.app/scout/internal/extract"
)

var _ = Describe("HTTPFetcher", func() {
	var (
		server  *httptest.Server
		hits    atomic.Int32
		handler http.HandlerFunc
		fetcher *extract.HTTPFetcher
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		hits.Store(0)
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<p>ok</p>"))
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			handler(w, r)
		}))
		fetcher = extract.NewHTTPFetcher(extract.FetcherConfig{
			Timeout:           2 * time.Second,
			AllowPrivateHosts: true,
		})
	})

	AfterEach(func() {
		server.Close()
	})

	expectKind := func(err error, kind extract.Kind) *extract.Error {
		var perr *extract.Error
		ExpectWithOffset(1, errors.As(err, &perr)).To(BeTrue(), "expected *extract.Error, got %v", err)
		ExpectWithOffset(1, perr.Kind).To(Equal(kind))
		return perr
	}

	It("sends a browser identity and returns the body", func() {
		var ua, lang, accept string
		handler = func(w http.ResponseWriter, r *http.Request) {
			ua = r.Header.Get("User-Agent")
			lang = r.Header.Get("Accept-Language")
			accept = r.Header.Get("Accept")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<p>月給25万円〜38万円</p>"))
		}

		page, err := fetcher.Fetch(ctx, server.URL+"/jobs/1")
		Expect(err).NotTo(HaveOccurred())
		Expect(page.StatusCode).To(Equal(http.StatusOK))
		Expect(page.Body).To(Equal("<p>月給25万円〜38万円</p>"))
		Expect(page.Truncated).To(BeFalse())
		Expect(ua).To(ContainSubstring("Mozilla/5.0"))
		Expect(lang).To(HavePrefix("ja"))
		Expect(accept).To(ContainSubstring("text/html"))
	})

	It("uses a configured user agent", func() {
		var ua string
		handler = func(w http.ResponseWriter, r *http.Request) {
			ua = r.Header.Get("User-Agent")
		}
		custom := extract.NewHTTPFetcher(extract.FetcherConfig{UserAgent: "scout-test", AllowPrivateHosts: true})

		_, err := custom.Fetch(ctx, server.URL)
		Expect(err).NotTo(HaveOccurred())
		Expect(ua).To(Equal("scout-test"))
	})

	DescribeTable("rejects non-http urls without any request",
		func(raw string) {
			_, err := fetcher.Fetch(ctx, raw)
			perr := expectKind(err, extract.KindInvalidURL)
			Expect(perr.Kind.HTTPStatus()).To(Equal(http.StatusBadRequest))
			Expect(hits.Load()).To(BeZero())
		},
		Entry("file scheme", "file:///etc/passwd"),
		Entry("ftp scheme", "ftp://example.com/jobs"),
		Entry("javascript scheme", "javascript:alert(1)"),
		Entry("relative path", "/jobs/1"),
		Entry("missing host", "http://"),
		Entry("malformed", "http://%zz"),
		Entry("empty", ""),
		Entry("plain words", "not a url"),
	)

	It("reports non-2xx responses as FetchFailed with the status", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}

		_, err := fetcher.Fetch(ctx, server.URL)
		perr := expectKind(err, extract.KindFetchFailed)
		Expect(perr.UpstreamStatus).To(Equal(http.StatusNotFound))
		Expect(perr.Message).To(ContainSubstring("404"))
		Expect(perr.Kind.HTTPStatus()).To(Equal(http.StatusUnprocessableEntity))
		Expect(hits.Load()).To(Equal(int32(1)))
	})

	It("times out slow pages", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
		slow := extract.NewHTTPFetcher(extract.FetcherConfig{
			Timeout:           50 * time.Millisecond,
			AllowPrivateHosts: true,
		})

		start := time.Now()
		_, err := slow.Fetch(ctx, server.URL)
		perr := expectKind(err, extract.KindFetchTimeout)
		Expect(perr.Kind.HTTPStatus()).To(Equal(http.StatusUnprocessableEntity))
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})

	It("reports caller cancellation as FetchFailed wrapping context.Canceled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := fetcher.Fetch(cctx, server.URL)
		expectKind(err, extract.KindFetchFailed)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})

	It("refuses private addresses unless allowed", func() {
		guarded := extract.NewHTTPFetcher(extract.FetcherConfig{Timeout: time.Second})

		_, err := guarded.Fetch(ctx, server.URL)
		expectKind(err, extract.KindInvalidURL)
		Expect(hits.Load()).To(BeZero())
	})

	It("caps the body size", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
		}
		capped := extract.NewHTTPFetcher(extract.FetcherConfig{MaxBytes: 1024, AllowPrivateHosts: true})

		page, err := capped.Fetch(ctx, server.URL)
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Truncated).To(BeTrue())
		Expect(page.Body).To(HaveLen(1024))
	})

	It("decodes Shift_JIS pages to UTF-8", func() {
		encoded, err := japanese.ShiftJIS.NewEncoder().String("<p>歯科衛生士募集 月給25万円</p>")
		Expect(err).NotTo(HaveOccurred())
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=Shift_JIS")
			_, _ = w.Write([]byte(encoded))
		}

		page, err := fetcher.Fetch(ctx, server.URL)
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Body).To(Equal("<p>歯科衛生士募集 月給25万円</p>"))
	})

	It("follows redirects and reports the final url", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/final" {
				http.Redirect(w, r, "/final", http.StatusFound)
				return
			}
			_, _ = w.Write([]byte("<p>final</p>"))
		}

		page, err := fetcher.Fetch(ctx, server.URL+"/start")
		Expect(err).NotTo(HaveOccurred())
		Expect(page.URL).To(Equal(server.URL + "/final"))
		Expect(page.Body).To(Equal("<p>final</p>"))
	})

	It("stops redirect loops", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/loop", http.StatusFound)
		}

		_, err := fetcher.Fetch(ctx, server.URL)
		expectKind(err, extract.KindFetchFailed)
	})
})
