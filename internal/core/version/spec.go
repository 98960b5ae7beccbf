package version

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the form of a Spec.
type Kind int

const (
	KindLatest Kind = iota
	KindExact
	KindCompatible
)

func (k Kind) String() string {
	switch k {
	case KindLatest:
		return "latest"
	case KindExact:
		return "exact"
	case KindCompatible:
		return "compatible"
	default:
		return "unknown"
	}
}

// ErrMalformed is matched by every ParseError.
var ErrMalformed = errors.New("malformed version specifier")

// ParseError reports text that is not a recognised specifier.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("malformed version specifier %q", e.Input)
	}
	return fmt.Sprintf("malformed version specifier %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrMalformed }

var compatiblePattern = regexp.MustCompile(`^~(\d+)\.(\d+)$`)

// Spec is a parsed version request: latest, =X.Y.Z or ~X.Y.
type Spec struct {
	Kind  Kind
	Exact Version
	Major int
	Minor int
	// AllowPrerelease lets Latest consider alpha, beta and rc releases.
	AllowPrerelease bool
}

// Latest returns the spec matching the newest stable release.
func Latest() Spec {
	return Spec{Kind: KindLatest}
}

// Exact returns a spec matching only v.
func Exact(v Version) Spec {
	return Spec{Kind: KindExact, Exact: v, Major: v.Major, Minor: v.Minor}
}

// Parse parses a specifier. Accepted forms are "latest" in any case,
// "=X.Y.Z[pre]", a bare "X.Y.Z[pre]" and "~X.Y".
func Parse(text string) (Spec, error) {
	value := strings.TrimSpace(text)
	if value == "" {
		return Spec{}, &ParseError{Input: text, Reason: "empty"}
	}

	if strings.EqualFold(value, "latest") {
		return Latest(), nil
	}

	if strings.HasPrefix(value, "~") {
		m := compatiblePattern.FindStringSubmatch(value)
		if m == nil {
			return Spec{}, &ParseError{Input: text, Reason: "compatible form is ~MAJOR.MINOR"}
		}
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		return Spec{Kind: KindCompatible, Major: major, Minor: minor}, nil
	}

	exact := strings.TrimPrefix(value, "=")
	if strings.HasPrefix(exact, "v") {
		return Spec{}, &ParseError{Input: text, Reason: "exact form is MAJOR.MINOR.PATCH"}
	}
	v, err := ParseVersion(exact)
	if err != nil {
		return Spec{}, &ParseError{Input: text, Reason: "exact form is MAJOR.MINOR.PATCH"}
	}
	return Exact(v), nil
}

// WithPrereleases returns a copy of s that lets Latest match prereleases.
func (s Spec) WithPrereleases() Spec {
	s.AllowPrerelease = true
	return s
}

// Matches reports whether the release v satisfies s.
func (s Spec) Matches(v Version) bool {
	switch s.Kind {
	case KindLatest:
		return s.AllowPrerelease || !v.IsPrerelease()
	case KindExact:
		return v == s.Exact
	case KindCompatible:
		return v.Major == s.Major && v.Minor == s.Minor && !v.IsPrerelease()
	default:
		return false
	}
}

// IsMorePreferred reports whether a should be chosen over b when both match s.
// Higher versions win; for Compatible both share major.minor so the highest
// patch wins.
func (s Spec) IsMorePreferred(a, b Version) bool {
	return a.Compare(b) > 0
}

// Best returns the most preferred matching version among candidates.
func (s Spec) Best(candidates []Version) (Version, bool) {
	var (
		best  Version
		found bool
	)
	for _, c := range candidates {
		if !s.Matches(c) {
			continue
		}
		if !found || s.IsMorePreferred(c, best) {
			best = c
			found = true
		}
	}
	return best, found
}

func (s Spec) String() string {
	switch s.Kind {
	case KindLatest:
		return "latest"
	case KindExact:
		return "=" + s.Exact.String()
	case KindCompatible:
		return fmt.Sprintf("~%d.%d", s.Major, s.Minor)
	default:
		return ""
	}
}
