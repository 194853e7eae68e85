package store

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultCategory and DefaultVersion are used by the session lifecycle when
// the caller doesn't override them.
const (
	DefaultCategory = "agent"
	DefaultVersion  = "v0"
)

// GenerateThreadID returns a fresh 128-bit identifier in canonical
// hyphenated form, suitable for use as a stream's thread component.
func GenerateThreadID() string {
	return uuid.NewString()
}

// BuildStreamName composes a stream name from its parts:
// "{category}:{version}-{threadID}".
func BuildStreamName(category, version, threadID string) (string, error) {
	if strings.TrimSpace(category) == "" {
		return "", &InvalidArgumentError{
			StoreError: StoreError{Op: "build_stream_name", Err: errEmptyField("category")},
			Field:      "category", Value: category,
		}
	}
	if strings.TrimSpace(version) == "" {
		return "", &InvalidArgumentError{
			StoreError: StoreError{Op: "build_stream_name", Err: errEmptyField("version")},
			Field:      "version", Value: version,
		}
	}
	if strings.TrimSpace(threadID) == "" {
		return "", &InvalidArgumentError{
			StoreError: StoreError{Op: "build_stream_name", Err: errEmptyField("thread_id")},
			Field:      "thread_id", Value: threadID,
		}
	}
	if strings.Contains(category, ":") {
		return "", &InvalidArgumentError{
			StoreError: StoreError{Op: "build_stream_name", Err: errInvalidChar("category", ":")},
			Field:      "category", Value: category,
		}
	}
	if strings.Contains(version, "-") {
		return "", &InvalidArgumentError{
			StoreError: StoreError{Op: "build_stream_name", Err: errInvalidChar("version", "-")},
			Field:      "version", Value: version,
		}
	}
	return category + ":" + version + "-" + threadID, nil
}

// ParseStreamName splits a stream name into its category, version, and
// thread ID components. It is the left inverse of BuildStreamName for any
// valid triple.
func ParseStreamName(streamName string) (category, version, threadID string, err error) {
	if strings.TrimSpace(streamName) == "" {
		return "", "", "", &InvalidArgumentError{
			StoreError: StoreError{Op: "parse_stream_name", Err: errEmptyField("stream_name")},
			Field:      "stream_name", Value: streamName,
		}
	}

	colonIdx := strings.Index(streamName, ":")
	if colonIdx < 0 {
		return "", "", "", invalidStreamNameFormat(streamName)
	}
	category = streamName[:colonIdx]
	rest := streamName[colonIdx+1:]

	dashIdx := strings.Index(rest, "-")
	if dashIdx < 0 {
		return "", "", "", invalidStreamNameFormat(streamName)
	}
	version = rest[:dashIdx]
	threadID = rest[dashIdx+1:]

	if category == "" || version == "" || threadID == "" {
		return "", "", "", invalidStreamNameFormat(streamName)
	}
	return category, version, threadID, nil
}

// Category returns the "{category}:{version}" prefix for a stream name,
// i.e. the category a subscriber would poll to see this stream.
func Category(streamName string) (string, error) {
	category, version, _, err := ParseStreamName(streamName)
	if err != nil {
		return "", err
	}
	return category + ":" + version, nil
}

func invalidStreamNameFormat(streamName string) error {
	return &InvalidArgumentError{
		StoreError: StoreError{
			Op:  "parse_stream_name",
			Err: errf("invalid stream name format %q, expected category:version-threadId", streamName),
		},
		Field: "stream_name", Value: streamName,
	}
}
