package pda

import (
	"bytes"
	"errors"
	"fmt"
)

// TitleSize is the fixed width of a stored presale title.
const TitleSize = 10

var (
	// ErrEmptyTitle is returned when a title is empty after trimming.
	ErrEmptyTitle = errors.New("title is empty")

	// ErrTitleTooLong is returned when a title exceeds TitleSize bytes.
	ErrTitleTooLong = fmt.Errorf("title exceeds %d bytes", TitleSize)

	// ErrReservedTitle is returned when a title ends in a role tag.
	ErrReservedTitle = errors.New("title ends in a role tag")
)

// Title is a presale title stored space-padded to TitleSize bytes.
// The derivation input is always the trimmed form (see Seed).
type Title [TitleSize]byte

// PadTitle normalizes s and stores it space-padded.
func PadTitle(s string) (Title, error) {
	var t Title
	canonical := TrimASCIISpace([]byte(s))
	if len(canonical) == 0 {
		return t, ErrEmptyTitle
	}
	if len(canonical) > TitleSize {
		return t, fmt.Errorf("%w: %q is %d bytes", ErrTitleTooLong, canonical, len(canonical))
	}
	for _, tag := range []string{TagPoolPayment, TagPoolSale} {
		if bytes.HasSuffix(canonical, []byte(tag)) {
			return t, fmt.Errorf("%w: %q", ErrReservedTitle, canonical)
		}
	}
	for i := range t {
		t[i] = ' '
	}
	copy(t[:], canonical)
	return t, nil
}

// Seed returns the trimmed title bytes used for address derivation.
func (t Title) Seed() []byte {
	return TrimASCIISpace(t[:])
}

// String returns the canonical (trimmed) title.
func (t Title) String() string {
	return string(t.Seed())
}

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (t Title) MarshalText() ([]byte, error) {
	return t.Seed(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Title) UnmarshalText(text []byte) error {
	parsed, err := PadTitle(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TrimTitle returns the canonical comparison form of a title string.
func TrimTitle(s string) string {
	return string(TrimASCIISpace([]byte(s)))
}

// TrimASCIISpace trims ASCII whitespace (space, \t, \n, \f, \r) from both ends.
// Vertical tab and non-ASCII spaces are kept.
func TrimASCIISpace(b []byte) []byte {
	start := 0
	for start < len(b) && isASCIISpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isASCIISpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isASCIISpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\f', '\r':
		return true
	}
	return false
}
