package store

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ReadCategory", func() {
	BeforeEach(func() {
		truncateMessages(context.Background(), client)
	})

	It("returns events across every stream in the category, in global position order", func() {
		streamA, err := BuildStreamName("agent", "v0", GenerateThreadID())
		Expect(err).NotTo(HaveOccurred())
		streamB, err := BuildStreamName("agent", "v0", GenerateThreadID())
		Expect(err).NotTo(HaveOccurred())

		_, err = client.Append(context.Background(), streamA, "SessionStarted", []byte(`{}`), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Append(context.Background(), streamB, "SessionStarted", []byte(`{}`), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Append(context.Background(), streamA, "UserMessageAdded", []byte(`{}`), nil, nil)
		Expect(err).NotTo(HaveOccurred())

		events, err := client.ReadCategory(context.Background(), "agent:v0", CategoryReadOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(3))
		for i := 1; i < len(events); i++ {
			Expect(events[i].GlobalPosition).To(BeNumerically(">", events[i-1].GlobalPosition))
		}
	})

	It("does not return events from a different category", func() {
		streamName, err := BuildStreamName("other", "v0", GenerateThreadID())
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Append(context.Background(), streamName, "SessionStarted", []byte(`{}`), nil, nil)
		Expect(err).NotTo(HaveOccurred())

		events, err := client.ReadCategory(context.Background(), "agent:v0", CategoryReadOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(BeEmpty())
	})

	It("filters by metadata correlation_id", func() {
		streamA, err := BuildStreamName("agent", "v0", GenerateThreadID())
		Expect(err).NotTo(HaveOccurred())
		streamB, err := BuildStreamName("agent", "v0", GenerateThreadID())
		Expect(err).NotTo(HaveOccurred())

		metaMatch, err := json.Marshal(map[string]string{"correlation_id": "corr-1"})
		Expect(err).NotTo(HaveOccurred())
		metaOther, err := json.Marshal(map[string]string{"correlation_id": "corr-2"})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.Append(context.Background(), streamA, "ToolExecutionRequested", []byte(`{}`), metaMatch, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Append(context.Background(), streamB, "ToolExecutionRequested", []byte(`{}`), metaOther, nil)
		Expect(err).NotTo(HaveOccurred())

		events, err := client.ReadCategory(context.Background(), "agent:v0", CategoryReadOptions{Correlation: "corr-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].StreamName).To(Equal(streamA))
	})

	It("rejects a consumer group member without a matching size", func() {
		member := 0
		_, err := client.ReadCategory(context.Background(), "agent:v0", CategoryReadOptions{ConsumerGroupMember: &member})
		Expect(IsInvalidArgumentError(err)).To(BeTrue())
	})

	It("partitions streams deterministically across a consumer group with no overlap", func() {
		const groupSize = 3
		const streamCount = 12

		for i := 0; i < streamCount; i++ {
			streamName, err := BuildStreamName("agent", "v0", GenerateThreadID())
			Expect(err).NotTo(HaveOccurred())
			_, err = client.Append(context.Background(), streamName, "SessionStarted", []byte(`{}`), nil, nil)
			Expect(err).NotTo(HaveOccurred())
		}

		seen := map[string]bool{}
		total := 0
		for member := 0; member < groupSize; member++ {
			m, size := member, groupSize
			events, err := client.ReadCategory(context.Background(), "agent:v0", CategoryReadOptions{
				ConsumerGroupMember: &m,
				ConsumerGroupSize:   &size,
				BatchSize:           streamCount,
			})
			Expect(err).NotTo(HaveOccurred())
			for _, e := range events {
				Expect(seen).NotTo(HaveKey(e.StreamName), fmt.Sprintf("stream %s assigned to more than one member", e.StreamName))
				seen[e.StreamName] = true
			}
			total += len(events)
		}
		Expect(total).To(Equal(streamCount))
	})
})
