// Package version parses interpreter release versions and the specifiers used
// to request them.
package version

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

var releasePattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-?(a|b|rc)(\d+))?$`)

// Version is a concrete interpreter release such as 3.8.6 or 3.9.0rc1.
type Version struct {
	Major int
	Minor int
	Patch int
	// Pre holds the prerelease tag in interpreter notation ("a1", "b2", "rc1").
	Pre string
}

// ParseVersion parses a concrete release version.
func ParseVersion(text string) (Version, error) {
	value := strings.TrimSpace(text)
	m := releasePattern.FindStringSubmatch(value)
	if m == nil {
		return Version{}, fmt.Errorf("invalid release version %q", text)
	}

	v := Version{}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	v.Patch, _ = strconv.Atoi(m[3])
	if m[4] != "" {
		n, _ := strconv.Atoi(m[5])
		v.Pre = m[4] + strconv.Itoa(n)
	}
	return v, nil
}

// MustParseVersion is ParseVersion for literals known to be valid.
func MustParseVersion(text string) Version {
	v, err := ParseVersion(text)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d%s", v.Major, v.Minor, v.Patch, v.Pre)
}

// MajorMinor renders "X.Y".
func (v Version) MajorMinor() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// IsPrerelease reports whether the version carries an alpha, beta or rc tag.
func (v Version) IsPrerelease() bool {
	return v.Pre != ""
}

// IsZero reports whether v is the zero value.
func (v Version) IsZero() bool {
	return v == Version{}
}

// Compare orders versions using semantic version rules: numeric components
// first, and a prerelease sorts before its release.
func (v Version) Compare(other Version) int {
	return semver.Compare(v.semver(), other.semver())
}

// semver renders v in the canonical form understood by x/mod/semver, e.g.
// 3.7.2rc1 becomes v3.7.2-rc.1.
func (v Version) semver() string {
	base := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre == "" {
		return base
	}
	tag := strings.TrimRight(v.Pre, "0123456789")
	num := strings.TrimPrefix(v.Pre, tag)
	return base + "-" + tag + "." + num
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(data []byte) error {
	parsed, err := ParseVersion(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// SortDescending orders versions newest first in place.
func SortDescending(versions []Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Compare(versions[j]) > 0
	})
}
