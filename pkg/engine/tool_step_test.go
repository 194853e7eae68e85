package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"go-agentdb/pkg/events"
	"go-agentdb/pkg/store"
)

var _ = Describe("runToolStep resumption", func() {
	It("skips an index already serviced by an interrupted prior run, without re-executing it", func() {
		registry, err := NewRegistry(echoTool{})
		Expect(err).NotTo(HaveOccurred())

		threadID := newThread("use echo twice")
		streamName := streamFor(threadID)

		respData, err := json.Marshal(events.LLMResponseReceived{
			ModelName: "fake",
			ToolCalls: []events.ToolCall{
				toolCall("call-1", "echo", map[string]any{"value": "first"}),
				toolCall("call-2", "echo", map[string]any{"value": "second"}),
			},
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Append(context.Background(), streamName, events.TypeLLMResponseReceived, respData, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		// Simulate a crash after index 0's requested+completed pair was
		// appended but before index 1 was touched at all.
		metadata0, err := json.Marshal(toolCorrelation{ToolID: "call-1", ToolIndex: 0})
		Expect(err).NotTo(HaveOccurred())
		requestedData, err := json.Marshal(events.ToolExecutionRequested{ToolName: "echo", Arguments: map[string]any{"value": "first"}})
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Append(context.Background(), streamName, events.TypeToolExecutionRequested, requestedData, metadata0, nil)
		Expect(err).NotTo(HaveOccurred())
		completedData, err := json.Marshal(events.ToolExecutionCompleted{ToolName: "echo", Result: map[string]any{"value": "first"}})
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Append(context.Background(), streamName, events.TypeToolExecutionCompleted, completedData, metadata0, nil)
		Expect(err).NotTo(HaveOccurred())

		evts, err := client.ReadStream(context.Background(), streamName, store.ReadOptions{})
		Expect(err).NotTo(HaveOccurred())

		Expect(runToolStep(context.Background(), client, streamName, evts, registry, AlwaysApprove, true, slog.Default())).To(Succeed())

		evts, err = client.ReadStream(context.Background(), streamName, store.ReadOptions{})
		Expect(err).NotTo(HaveOccurred())

		var requestedCount, completedCount int
		for _, e := range evts {
			switch e.Type {
			case events.TypeToolExecutionRequested:
				requestedCount++
			case events.TypeToolExecutionCompleted:
				completedCount++
			}
		}
		// Exactly one new pair for index 1; index 0's pair from before the
		// "crash" is untouched and not duplicated.
		Expect(requestedCount).To(Equal(2))
		Expect(completedCount).To(Equal(2))

		var sawSecond bool
		for _, e := range evts {
			if e.Type != events.TypeToolExecutionCompleted {
				continue
			}
			var p events.ToolExecutionCompleted
			Expect(json.Unmarshal(e.Data, &p)).To(Succeed())
			if result, ok := p.Result.(map[string]any); ok && result["value"] == "second" {
				sawSecond = true
			}
		}
		Expect(sawSecond).To(BeTrue())
	})
})
