// Package metric defines metric identities, samples and their validation.
package metric

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/metrink/metrink-go/internal/errors"
)

// reservedChars are characters used by the alert query grammar.
const reservedChars = "'\"`~!@#$%^&*()[]{}<>:;|\\"

// Wildcard matches any run of characters in a Pattern component.
const Wildcard = "*"

// Identity names a metric series. It is immutable and is the aggregation and
// routing key.
type Identity struct {
	Device string `json:"device"`
	Group  string `json:"group"`
	Name   string `json:"name"`
}

// NewIdentity validates and returns an Identity.
func NewIdentity(device, group, name string) (Identity, error) {
	id := Identity{Device: device, Group: group, Name: name}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func (id Identity) String() string {
	return id.Device + ":" + id.Group + ":" + id.Name
}

// Compare orders identities device-major, then group, then name.
func (id Identity) Compare(other Identity) int {
	if c := cmp.Compare(id.Device, other.Device); c != 0 {
		return c
	}
	if c := cmp.Compare(id.Group, other.Group); c != 0 {
		return c
	}
	return cmp.Compare(id.Name, other.Name)
}

// Validate checks all three components.
func (id Identity) Validate() error {
	for _, c := range []struct{ field, value string }{
		{"device", id.Device},
		{"group", id.Group},
		{"name", id.Name},
	} {
		if err := ValidateComponent(c.field, c.value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateComponent rejects blank, non-printable and reserved characters.
func ValidateComponent(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return validationError(field, value, "must not be blank")
	}
	for _, r := range value {
		if r < 0x20 || r > 0x7e {
			return validationError(field, value, "must be printable ASCII")
		}
		if strings.ContainsRune(reservedChars, r) {
			return validationError(field, value, fmt.Sprintf("contains reserved character %q", r))
		}
	}
	return nil
}

func validationError(field, value, reason string) error {
	return errors.Newf("invalid metric %s %q: %s", field, value, reason).
		Component("metric").
		Category(errors.CategoryValidation).
		Context("field", field).
		Build()
}

// Pattern is an Identity whose components may contain wildcards.
type Pattern struct {
	Device string `json:"device"`
	Group  string `json:"group"`
	Name   string `json:"name"`
}

func (p Pattern) String() string {
	return p.Device + ":" + p.Group + ":" + p.Name
}

// IsExact reports whether no component contains a wildcard.
func (p Pattern) IsExact() bool {
	return !strings.Contains(p.Device, Wildcard) &&
		!strings.Contains(p.Group, Wildcard) &&
		!strings.Contains(p.Name, Wildcard)
}

// Matches reports whether id satisfies every component of the pattern.
func (p Pattern) Matches(id Identity) bool {
	return globMatch(p.Device, id.Device) &&
		globMatch(p.Group, id.Group) &&
		globMatch(p.Name, id.Name)
}

// globMatch matches s against pattern where '*' matches any run of
// characters and every other character is literal.
func globMatch(pattern, s string) bool {
	if !strings.Contains(pattern, Wildcard) {
		return pattern == s
	}
	parts := strings.Split(pattern, Wildcard)
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return len(s) >= len(last) && strings.HasSuffix(s, last)
}

// Validate checks each component, allowing wildcards.
func (p Pattern) Validate() error {
	for _, c := range []struct{ field, value string }{
		{"device", p.Device},
		{"group", p.Group},
		{"name", p.Name},
	} {
		if c.value == Wildcard {
			continue
		}
		literal := strings.ReplaceAll(c.value, Wildcard, "")
		if literal == "" {
			literal = c.value
		}
		if err := ValidateComponent(c.field, literal); err != nil {
			return err
		}
	}
	return nil
}

// WildcardCount returns how many components contain a wildcard.
func (p Pattern) WildcardCount() int {
	n := 0
	for _, v := range []string{p.Device, p.Group, p.Name} {
		if strings.Contains(v, Wildcard) {
			n++
		}
	}
	return n
}

// PatternOf returns the exact pattern for an identity.
func PatternOf(id Identity) Pattern {
	return Pattern(id)
}
