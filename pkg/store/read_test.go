package store

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ReadStream", func() {
	BeforeEach(func() {
		truncateMessages(context.Background(), client)
	})

	It("returns events in position order", func() {
		streamName, err := BuildStreamName("agent", "v0", GenerateThreadID())
		Expect(err).NotTo(HaveOccurred())

		_, err = client.Append(context.Background(), streamName, "SessionStarted", []byte(`{}`), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Append(context.Background(), streamName, "UserMessageAdded", []byte(`{"message":"one"}`), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Append(context.Background(), streamName, "UserMessageAdded", []byte(`{"message":"two"}`), nil, nil)
		Expect(err).NotTo(HaveOccurred())

		events, err := client.ReadStream(context.Background(), streamName, ReadOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(3))
		Expect(events[0].Position).To(Equal(int64(0)))
		Expect(events[1].Position).To(Equal(int64(1)))
		Expect(events[2].Position).To(Equal(int64(2)))
		Expect(events[0].Type).To(Equal("SessionStarted"))
	})

	It("honors FromPosition", func() {
		streamName, err := BuildStreamName("agent", "v0", GenerateThreadID())
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 3; i++ {
			_, err = client.Append(context.Background(), streamName, "UserMessageAdded", []byte(`{}`), nil, nil)
			Expect(err).NotTo(HaveOccurred())
		}

		events, err := client.ReadStream(context.Background(), streamName, ReadOptions{FromPosition: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Position).To(Equal(int64(2)))
	})

	It("returns an empty slice for a stream with no events", func() {
		streamName, err := BuildStreamName("agent", "v0", GenerateThreadID())
		Expect(err).NotTo(HaveOccurred())

		events, err := client.ReadStream(context.Background(), streamName, ReadOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(BeEmpty())
	})

	It("rejects an empty stream name", func() {
		_, err := client.ReadStream(context.Background(), "", ReadOptions{})
		Expect(IsInvalidArgumentError(err)).To(BeTrue())
	})
})
