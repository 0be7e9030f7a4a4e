//go:build !darwin || !cgo

package sectrust

// The code signing services exist only on macOS. These twins keep the API
// compiling everywhere; every handle-producing operation reports
// StatusUnimplemented so callers can probe availability without build
// tags.

func errUnavailable() error {
	return &Error{Status: StatusUnimplemented}
}

// Requirement is an opaque handle to a code requirement compiled by the
// OS. It is immutable and may be reused across any number of validity
// checks, concurrently.
type Requirement struct{}

// ParseRequirement compiles a textual code requirement expression. It is
// unavailable on this platform.
func ParseRequirement(text string) (*Requirement, error) {
	return nil, errUnavailable()
}

// Release drops the handle's reference to the OS object.
func (r *Requirement) Release() {}

// DynamicCode represents the code object of a running process.
type DynamicCode struct{}

// SelfCode returns the code object for the calling process itself. It is
// unavailable on this platform.
func SelfCode(flags Flags) (*DynamicCode, error) {
	return nil, errUnavailable()
}

// GuestCode asks a host code object to identify one of its guests by the
// given attributes. It is unavailable on this platform.
func GuestCode(host *DynamicCode, attrs *GuestAttributes, flags Flags) (*DynamicCode, error) {
	return nil, errUnavailable()
}

// Path returns the on-disk location backing this code object.
func (c *DynamicCode) Path(flags Flags) (string, error) {
	return "", errUnavailable()
}

// CheckValidity asks the OS trust engine to verify this running code
// against the requirement.
func (c *DynamicCode) CheckValidity(flags Flags, req *Requirement) error {
	return errUnavailable()
}

// StaticCode returns the static (on disk) code object backing this
// running code.
func (c *DynamicCode) StaticCode(flags Flags) (*StaticCode, error) {
	return nil, errUnavailable()
}

// Release drops the handle's reference to the OS object.
func (c *DynamicCode) Release() {}

// StaticCode represents the code object of a binary on disk.
type StaticCode struct{}

// NewStaticCode creates a static code object for the file at the given
// path. It is unavailable on this platform.
func NewStaticCode(path string, flags Flags) (*StaticCode, error) {
	return nil, errUnavailable()
}

// Path returns the canonical on-disk location of this code object.
func (c *StaticCode) Path(flags Flags) (string, error) {
	return "", errUnavailable()
}

// CheckValidity asks the OS trust engine to verify the on-disk signature
// against the requirement.
func (c *StaticCode) CheckValidity(flags Flags, req *Requirement) error {
	return errUnavailable()
}

// Release drops the handle's reference to the OS object.
func (c *StaticCode) Release() {}
