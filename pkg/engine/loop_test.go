package engine

import (
	"context"
	"errors"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"go-agentdb/pkg/events"
	"go-agentdb/pkg/projections"
	"go-agentdb/pkg/store"
)

func newThread(reason string) string {
	threadID, err := StartSession(context.Background(), client, reason)
	Expect(err).NotTo(HaveOccurred())
	return threadID
}

func streamFor(threadID string) string {
	name, err := store.BuildStreamName(store.DefaultCategory, store.DefaultVersion, threadID)
	Expect(err).NotTo(HaveOccurred())
	return name
}

var _ = Describe("ProcessThread", func() {
	var registry *Registry

	BeforeEach(func() {
		var err error
		registry, err = NewRegistry(echoTool{}, failingTool{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("calls the LLM once and finishes Done when it answers with plain text", func() {
		threadID := newThread("say hi")
		streamName := streamFor(threadID)

		llm := &scriptedLLMClient{responses: []llmStep{
			{resp: LLMResponse{Text: "hello!", ModelName: "fake"}},
		}}

		state, err := ProcessThread(context.Background(), client, streamName, llm, registry, Options{
			MaxIterations:    10,
			AutoApproveTools: true,
			Logger:           slog.Default(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Status).To(Equal(projections.StatusActive))
		Expect(state.LLMCallCount).To(Equal(1))
		Expect(llm.calls).To(Equal(1))
	})

	It("executes a requested tool and calls the LLM again with the result", func() {
		threadID := newThread("use echo")
		streamName := streamFor(threadID)

		llm := &scriptedLLMClient{responses: []llmStep{
			{resp: LLMResponse{
				ModelName: "fake",
				ToolCalls: []events.ToolCall{toolCall("call-1", "echo", map[string]any{"value": "hi"})},
			}},
			{resp: LLMResponse{Text: "done", ModelName: "fake"}},
		}}

		state, err := ProcessThread(context.Background(), client, streamName, llm, registry, Options{
			MaxIterations:    10,
			AutoApproveTools: true,
			Logger:           slog.Default(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(state.ToolCallCount).To(Equal(1))
		Expect(state.LLMCallCount).To(Equal(2))
		Expect(llm.calls).To(Equal(2))

		evts, err := client.ReadStream(context.Background(), streamName, store.ReadOptions{})
		Expect(err).NotTo(HaveOccurred())
		var sawCompleted bool
		for _, e := range evts {
			if e.Type == "ToolExecutionCompleted" {
				sawCompleted = true
			}
		}
		Expect(sawCompleted).To(BeTrue())
	})

	It("records ToolExecutionFailed when the tool itself errors, and still continues", func() {
		threadID := newThread("use failer")
		streamName := streamFor(threadID)

		llm := &scriptedLLMClient{responses: []llmStep{
			{resp: LLMResponse{
				ModelName: "fake",
				ToolCalls: []events.ToolCall{toolCall("call-1", "failer", map[string]any{})},
			}},
			{resp: LLMResponse{Text: "handled the failure", ModelName: "fake"}},
		}}

		state, err := ProcessThread(context.Background(), client, streamName, llm, registry, Options{
			MaxIterations:    10,
			AutoApproveTools: true,
			Logger:           slog.Default(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Status).To(Equal(projections.StatusActive))

		evts, err := client.ReadStream(context.Background(), streamName, store.ReadOptions{})
		Expect(err).NotTo(HaveOccurred())
		var sawFailed bool
		for _, e := range evts {
			if e.Type == "ToolExecutionFailed" {
				sawFailed = true
			}
		}
		Expect(sawFailed).To(BeTrue())
	})

	It("records ToolExecutionFailed for an unknown tool name", func() {
		threadID := newThread("use ghost")
		streamName := streamFor(threadID)

		llm := &scriptedLLMClient{responses: []llmStep{
			{resp: LLMResponse{
				ModelName: "fake",
				ToolCalls: []events.ToolCall{toolCall("call-1", "ghost", map[string]any{})},
			}},
			{resp: LLMResponse{Text: "ok", ModelName: "fake"}},
		}}

		_, err := ProcessThread(context.Background(), client, streamName, llm, registry, Options{
			MaxIterations:    10,
			AutoApproveTools: true,
			Logger:           slog.Default(),
		})
		Expect(err).NotTo(HaveOccurred())

		evts, err := client.ReadStream(context.Background(), streamName, store.ReadOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(evts[len(evts)-2].Type).To(Equal("ToolExecutionFailed"))
	})

	It("rejects the tool call when approval is denied, without running it", func() {
		threadID := newThread("use echo but deny it")
		streamName := streamFor(threadID)

		llm := &scriptedLLMClient{responses: []llmStep{
			{resp: LLMResponse{
				ModelName: "fake",
				ToolCalls: []events.ToolCall{toolCall("call-1", "echo", map[string]any{"value": "hi"})},
			}},
			{resp: LLMResponse{Text: "ok, skipping", ModelName: "fake"}},
		}}

		deny := func(context.Context, string, map[string]any) (bool, error) { return false, nil }

		_, err := ProcessThread(context.Background(), client, streamName, llm, registry, Options{
			MaxIterations: 10,
			Approve:       deny,
			Logger:        slog.Default(),
		})
		Expect(err).NotTo(HaveOccurred())

		evts, err := client.ReadStream(context.Background(), streamName, store.ReadOptions{})
		Expect(err).NotTo(HaveOccurred())
		var sawFailed bool
		for _, e := range evts {
			if e.Type == "ToolExecutionFailed" {
				sawFailed = true
			}
		}
		Expect(sawFailed).To(BeTrue())
	})

	It("records ToolExecutionFailed when arguments fail schema validation", func() {
		threadID := newThread("use echo with bad args")
		streamName := streamFor(threadID)

		llm := &scriptedLLMClient{responses: []llmStep{
			{resp: LLMResponse{
				ModelName: "fake",
				ToolCalls: []events.ToolCall{toolCall("call-1", "echo", map[string]any{"wrong_field": 1})},
			}},
			{resp: LLMResponse{Text: "ok", ModelName: "fake"}},
		}}

		_, err := ProcessThread(context.Background(), client, streamName, llm, registry, Options{
			MaxIterations:    10,
			AutoApproveTools: true,
			Logger:           slog.Default(),
		})
		Expect(err).NotTo(HaveOccurred())

		evts, err := client.ReadStream(context.Background(), streamName, store.ReadOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(evts[len(evts)-2].Type).To(Equal("ToolExecutionFailed"))
	})

	It("records LLMCallFailed and stops after the LLM step exhausts its retries", func() {
		threadID := newThread("this will fail")
		streamName := streamFor(threadID)

		llm := &alwaysFailLLMClient{}

		state, err := ProcessThread(context.Background(), client, streamName, llm, registry, Options{
			MaxIterations:    10,
			AutoApproveTools: true,
			Logger:           slog.Default(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Status).To(Equal(projections.StatusFailed))
		Expect(llm.calls).To(Equal(maxLLMRetries + 1))
	})

	It("completes with SessionCompleted and MaxIterationsExceededError when the cap is hit", func() {
		threadID := newThread("loop forever")
		streamName := streamFor(threadID)

		var steps []llmStep
		for i := 0; i < 5; i++ {
			steps = append(steps, llmStep{resp: LLMResponse{
				ModelName: "fake",
				ToolCalls: []events.ToolCall{toolCall("call-1", "echo", map[string]any{"value": "again"})},
			}})
		}
		llm := &scriptedLLMClient{responses: steps}

		state, err := ProcessThread(context.Background(), client, streamName, llm, registry, Options{
			MaxIterations:    2,
			AutoApproveTools: true,
			Logger:           slog.Default(),
		})
		Expect(err).To(HaveOccurred())
		var maxErr *MaxIterationsExceededError
		Expect(errors.As(err, &maxErr)).To(BeTrue())
		Expect(state.Status).To(Equal(projections.StatusTerminated))
		Expect(state.CompletionReason).To(Equal("max_iterations_reached"))
	})

	It("completes gracefully when a termination request is observed mid-thread", func() {
		threadID := newThread("please stop soon")
		streamName := streamFor(threadID)

		Expect(TerminateSession(context.Background(), client, streamName, "user_requested")).To(Succeed())

		llm := &scriptedLLMClient{}
		state, err := ProcessThread(context.Background(), client, streamName, llm, registry, Options{
			MaxIterations:    10,
			AutoApproveTools: true,
			Logger:           slog.Default(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(llm.calls).To(Equal(0))
		Expect(state.Status).To(Equal(projections.StatusTerminated))
		Expect(state.CompletionReason).To(Equal("user_requested"))
	})
})
