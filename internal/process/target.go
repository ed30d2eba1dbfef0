package process

import (
	"strings"
)

// Target identifies an external process by its executable name and,
// optionally, a last-known full executable path.
type Target struct {
	// Name is the executable name as configured by the user, e.g. "Game.exe".
	// Matching is case-insensitive and the ".exe" suffix is optional.
	Name string
	// Path is the last-known full path of the executable. May be empty.
	Path string
}

// NewTarget returns a Target for name with no known path.
func NewTarget(name string) Target {
	return Target{Name: strings.TrimSpace(name)}
}

// Valid reports whether the target carries a usable name.
func (t Target) Valid() bool {
	return t.BaseName() != ""
}

// BaseName returns the normalized matching key: the final path element,
// lower-cased, without an ".exe" suffix.
func (t Target) BaseName() string {
	return normalizeImageName(t.Name)
}

// ImageName returns the executable file name passed to the suspend utility
// and to name-based launches. The user's spelling is preserved; the
// platform executable suffix is appended when missing.
func (t Target) ImageName() string {
	name := lastPathElement(strings.TrimSpace(t.Name))
	if name == "" {
		return ""
	}
	if executableSuffix != "" && !strings.HasSuffix(strings.ToLower(name), executableSuffix) {
		return name + executableSuffix
	}
	return name
}

func (t Target) String() string {
	return t.ImageName()
}

// normalizeImageName folds an image or executable name into the
// case-insensitive key used for process matching.
func normalizeImageName(name string) string {
	base := strings.ToLower(lastPathElement(strings.TrimSpace(name)))
	return strings.TrimSuffix(base, ".exe")
}

// lastPathElement accepts both separators so that Windows-style paths stored
// in configuration normalize the same way on every platform.
func lastPathElement(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}
