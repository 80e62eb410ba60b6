package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"clinichire.app/scout/common/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// stubAPI serves one canned status and body and keeps the last request.
type stubAPI struct {
	mu     sync.Mutex
	path   string
	body   map[string]any
	status int
	reply  string
}

func (s *stubAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.path = r.URL.Path
	s.body = nil
	_ = json.Unmarshal(raw, &s.body)
	status, reply := s.status, s.reply
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, reply)
}

func (s *stubAPI) respond(status int, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.reply = status, reply
}

func (s *stubAPI) lastBody() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body
}

func (s *stubAPI) lastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

var _ = Describe("Provider clients", func() {
	var (
		ctx    context.Context
		stub   *stubAPI
		server *httptest.Server
	)

	BeforeEach(func() {
		ctx = context.Background()
		stub = &stubAPI{status: http.StatusOK}
		server = httptest.NewServer(stub)
		DeferCleanup(server.Close)
	})

	Describe("openai", func() {
		var client llm.Client

		BeforeEach(func() {
			var err error
			client, err = llm.New(llm.Config{Provider: llm.ProviderOpenAI, APIKey: "k", BaseURL: server.URL + "/v1/"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("asks for a JSON object with the token bound and temperature", func() {
			stub.respond(http.StatusOK, `{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"created": 1,
				"model": "gpt-4o-mini",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"title\":\"RN\"}"}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
			}`)

			resp, err := client.Complete(ctx, llm.Request{
				SystemPrompt: "extract",
				UserPrompt:   "page text",
				MaxTokens:    512,
				Temperature:  llm.Temp(0.2),
				JSON:         true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Content).To(Equal(`{"title":"RN"}`))
			Expect(resp.FinishReason).To(Equal("stop"))
			Expect(resp.PromptTokens).To(Equal(10))
			Expect(resp.CompletionTokens).To(Equal(5))

			Expect(stub.lastPath()).To(HaveSuffix("/chat/completions"))
			body := stub.lastBody()
			Expect(body).To(HaveKeyWithValue("model", "gpt-4o-mini"))
			Expect(body).To(HaveKeyWithValue("response_format", HaveKeyWithValue("type", "json_object")))
			Expect(body).To(HaveKeyWithValue("max_completion_tokens", BeNumerically("==", 512)))
			Expect(body).To(HaveKeyWithValue("temperature", BeNumerically("~", 0.2)))
			Expect(body["messages"]).To(HaveLen(2))
		})

		It("omits response_format outside JSON mode", func() {
			stub.respond(http.StatusOK, `{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{}}`)

			_, err := client.Complete(ctx, llm.Request{UserPrompt: "x"})
			Expect(err).NotTo(HaveOccurred())
			Expect(stub.lastBody()).NotTo(HaveKey("response_format"))
			Expect(stub.lastBody()).NotTo(HaveKey("temperature"))
		})

		DescribeTable("classifies error statuses",
			func(status int, retryable bool) {
				stub.respond(status, `{"error": {"message": "upstream", "type": "error"}}`)

				_, err := client.Complete(ctx, llm.Request{UserPrompt: "x"})
				Expect(err).To(HaveOccurred())
				Expect(llm.IsRetryable(ctx, err)).To(Equal(retryable))
			},
			Entry("unauthorized", http.StatusUnauthorized, false),
			Entry("unavailable", http.StatusServiceUnavailable, true),
		)
	})

	Describe("anthropic", func() {
		var client llm.Client

		BeforeEach(func() {
			var err error
			client, err = llm.New(llm.Config{Provider: llm.ProviderAnthropic, APIKey: "k", BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())
		})

		reply := func(stopReason string) string {
			return `{
				"id": "msg_1",
				"type": "message",
				"role": "assistant",
				"model": "claude-sonnet-4-5-20250514",
				"content": [{"type": "text", "text": "{\"title\":"}, {"type": "text", "text": "\"RN\"}"}],
				"stop_reason": "` + stopReason + `",
				"stop_sequence": null,
				"usage": {"input_tokens": 12, "output_tokens": 7}
			}`
		}

		It("joins text blocks and sends the system prompt separately", func() {
			stub.respond(http.StatusOK, reply("end_turn"))

			resp, err := client.Complete(ctx, llm.Request{
				SystemPrompt: "extract",
				UserPrompt:   "page text",
				MaxTokens:    256,
				Temperature:  llm.Temp(0),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Content).To(Equal(`{"title":"RN"}`))
			Expect(resp.PromptTokens).To(Equal(12))
			Expect(resp.CompletionTokens).To(Equal(7))

			Expect(stub.lastPath()).To(HaveSuffix("/messages"))
			body := stub.lastBody()
			Expect(body).To(HaveKeyWithValue("max_tokens", BeNumerically("==", 256)))
			Expect(body).To(HaveKey("system"))
			Expect(body["messages"]).To(HaveLen(1))
		})

		DescribeTable("maps stop reasons",
			func(stopReason, want string) {
				stub.respond(http.StatusOK, reply(stopReason))

				resp, err := client.Complete(ctx, llm.Request{UserPrompt: "x"})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.FinishReason).To(Equal(want))
			},
			Entry("end turn", "end_turn", "stop"),
			Entry("stop sequence", "stop_sequence", "stop"),
			Entry("max tokens", "max_tokens", "length"),
			Entry("tool use passes through", "tool_use", "tool_use"),
		)

		DescribeTable("classifies error statuses",
			func(status int, retryable bool) {
				stub.respond(status, `{"type": "error", "error": {"type": "api_error", "message": "upstream"}}`)

				_, err := client.Complete(ctx, llm.Request{UserPrompt: "x"})
				Expect(err).To(HaveOccurred())
				Expect(strings.Contains(err.Error(), "anthropic chat")).To(BeTrue())
				Expect(llm.IsRetryable(ctx, err)).To(Equal(retryable))
			},
			Entry("unauthorized", http.StatusUnauthorized, false),
			Entry("unavailable", http.StatusServiceUnavailable, true),
		)
	})
})
