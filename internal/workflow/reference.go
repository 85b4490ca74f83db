package workflow

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	// DefaultReferencePrefix starts every reference unless configured otherwise.
	DefaultReferencePrefix = "AUT"
	// MaxReferenceSequence is the last sequence a day can allocate. The fixed
	// width keeps references of one prefix in lexical order.
	MaxReferenceSequence = 999999
)

// ErrReferenceExhausted is returned once a day has used every sequence.
var ErrReferenceExhausted = errors.New("reference sequence exhausted for the day")

var referencePattern = regexp.MustCompile(`^([A-Z]{2,8})-(\d{8})-(\d{6})$`)

// FormatReference renders prefix-YYYYMMDD-NNNNNN.
func FormatReference(prefix string, day time.Time, seq int) string {
	if prefix == "" {
		prefix = DefaultReferencePrefix
	}
	return fmt.Sprintf("%s-%s-%06d", prefix, day.UTC().Format("20060102"), seq)
}

// ParsedReference is the decoded form of a reference string.
type ParsedReference struct {
	Prefix   string
	Day      time.Time
	Sequence int
}

// ParseReference decodes a reference produced by FormatReference.
func ParseReference(ref string) (ParsedReference, error) {
	m := referencePattern.FindStringSubmatch(ref)
	if m == nil {
		return ParsedReference{}, fmt.Errorf("malformed reference %q", ref)
	}
	day, err := time.Parse("20060102", m[2])
	if err != nil {
		return ParsedReference{}, fmt.Errorf("malformed reference date %q", ref)
	}
	seq, err := strconv.Atoi(m[3])
	if err != nil || seq <= 0 {
		return ParsedReference{}, fmt.Errorf("malformed reference sequence %q", ref)
	}
	return ParsedReference{Prefix: m[1], Day: day, Sequence: seq}, nil
}
