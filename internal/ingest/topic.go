package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/anhhung04/plant-care/internal/greenhouse"
)

// groupsSegment is the fixed second segment of every feed topic.
const groupsSegment = "groups"

// Address is the decoded routing part of a feed topic.
type Address struct {
	Owner        string
	GreenhouseID string
	FieldIndex   int
	Token        string
}

// ParseTopic decodes "<owner>/groups/<greenhouse>/<field>-<token>".
func ParseTopic(topic string) (Address, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[1] != groupsSegment {
		return Address{}, fmt.Errorf("%w: %q does not match <owner>/groups/<greenhouse>/<field>-<token>", ErrInvalidTopic, topic)
	}
	owner, ghSegment, feed := parts[0], parts[2], parts[3]
	if owner == "" || ghSegment == "" {
		return Address{}, fmt.Errorf("%w: %q has an empty owner or greenhouse", ErrInvalidTopic, topic)
	}

	fieldPart, token, ok := strings.Cut(feed, "-")
	if !ok || token == "" {
		return Address{}, fmt.Errorf("%w: feed %q is not <field>-<token>", ErrInvalidTopic, feed)
	}
	index, err := strconv.Atoi(fieldPart)
	if err != nil || index < 0 {
		return Address{}, fmt.Errorf("%w: field index %q is not a non-negative integer", ErrInvalidTopic, fieldPart)
	}
	if index > greenhouse.MaxFieldIndex {
		return Address{}, fmt.Errorf("%w: field index %d exceeds %d", ErrInvalidTopic, index, greenhouse.MaxFieldIndex)
	}

	return Address{
		Owner:        owner,
		GreenhouseID: NormalizeGreenhouseID(ghSegment),
		FieldIndex:   index,
		Token:        token,
	}, nil
}

// NormalizeGreenhouseID maps a topic segment to the stored greenhouse ID.
func NormalizeGreenhouseID(segment string) string {
	return strings.ReplaceAll(segment, "-", "_")
}
