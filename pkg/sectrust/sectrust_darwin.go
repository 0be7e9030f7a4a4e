//go:build darwin && cgo

package sectrust

/*
#cgo LDFLAGS: -framework CoreFoundation -framework Security
#include <CoreFoundation/CoreFoundation.h>
#include <Security/Security.h>
*/
import "C"

import (
	"bytes"
	"fmt"
	"runtime"
	"unsafe"
)

// The handles below wrap CF objects owned by the OS under the create rule:
// exactly one CFRelease per handle, performed by Release or, failing that,
// by the finalizer. The OS manages the reference count atomically, so
// handles are safe for concurrent read-only use after construction.

func cfRelease(ref C.CFTypeRef) {
	if ref != nil {
		C.CFRelease(ref)
	}
}

func cfString(s string) C.CFStringRef {
	b := []byte(s)
	var p *C.UInt8
	if len(b) > 0 {
		p = (*C.UInt8)(unsafe.Pointer(&b[0]))
	}
	return C.CFStringCreateWithBytes(C.kCFAllocatorDefault, p, C.CFIndex(len(b)), C.kCFStringEncodingUTF8, C.Boolean(0))
}

func cfData(b []byte) C.CFDataRef {
	var p *C.UInt8
	if len(b) > 0 {
		p = (*C.UInt8)(unsafe.Pointer(&b[0]))
	}
	return C.CFDataCreate(C.kCFAllocatorDefault, p, C.CFIndex(len(b)))
}

func cfNumber(v int64) C.CFNumberRef {
	return C.CFNumberCreate(C.kCFAllocatorDefault, C.kCFNumberSInt64Type, unsafe.Pointer(&v))
}

func cfFileURL(path string) C.CFURLRef {
	if path == "" {
		return nil
	}
	b := []byte(path)
	return C.CFURLCreateFromFileSystemRepresentation(C.kCFAllocatorDefault, (*C.UInt8)(unsafe.Pointer(&b[0])), C.CFIndex(len(b)), C.Boolean(0))
}

// cfValue converts a guest attribute value into a CF object owned by the
// caller. Unsupported types fail here, before the OS sees the dictionary.
func cfValue(v any) (C.CFTypeRef, error) {
	switch x := v.(type) {
	case []byte:
		return C.CFTypeRef(unsafe.Pointer(cfData(x))), nil
	case string:
		return C.CFTypeRef(unsafe.Pointer(cfString(x))), nil
	case bool:
		ref := C.CFTypeRef(unsafe.Pointer(C.kCFBooleanFalse))
		if x {
			ref = C.CFTypeRef(unsafe.Pointer(C.kCFBooleanTrue))
		}
		return C.CFRetain(ref), nil
	case int:
		return C.CFTypeRef(unsafe.Pointer(cfNumber(int64(x)))), nil
	case int32:
		return C.CFTypeRef(unsafe.Pointer(cfNumber(int64(x)))), nil
	case int64:
		return C.CFTypeRef(unsafe.Pointer(cfNumber(x))), nil
	case uint32:
		return C.CFTypeRef(unsafe.Pointer(cfNumber(int64(x)))), nil
	default:
		return nil, fmt.Errorf("sectrust: unsupported guest attribute value type %T", v)
	}
}

// cfDictionary marshals the attribute bag into a CFDictionary for a guest
// lookup. The fixed audit token and pid attributes use the framework's
// exported key constants; custom keys pass through by value.
func (a *GuestAttributes) cfDictionary() (C.CFMutableDictionaryRef, error) {
	dict := C.CFDictionaryCreateMutable(C.kCFAllocatorDefault, 0, &C.kCFTypeDictionaryKeyCallBacks, &C.kCFTypeDictionaryValueCallBacks)
	for _, e := range a.entries {
		var key C.CFStringRef
		ownKey := false
		switch e.kind {
		case attrAudit:
			key = C.kSecGuestAttributeAudit
		case attrPid:
			key = C.kSecGuestAttributePid
		default:
			key = cfString(e.key)
			ownKey = true
		}

		value, err := cfValue(e.value)
		if err != nil {
			if ownKey {
				cfRelease(C.CFTypeRef(unsafe.Pointer(key)))
			}
			cfRelease(C.CFTypeRef(unsafe.Pointer(dict)))
			return nil, err
		}

		C.CFDictionarySetValue(dict, unsafe.Pointer(key), unsafe.Pointer(value))
		cfRelease(value)
		if ownKey {
			cfRelease(C.CFTypeRef(unsafe.Pointer(key)))
		}
	}
	return dict, nil
}

// copyCodePath asks the OS for the on-disk location of a code object. The
// same call serves dynamic and static handles.
func copyCodePath(ref C.SecStaticCodeRef, flags Flags) (string, error) {
	var url C.CFURLRef
	if err := osStatus(int32(C.SecCodeCopyPath(ref, C.SecCSFlags(flags), &url))); err != nil {
		return "", err
	}
	defer cfRelease(C.CFTypeRef(unsafe.Pointer(url)))

	buf := make([]byte, 4096)
	ok := C.CFURLGetFileSystemRepresentation(url, C.Boolean(1), (*C.UInt8)(unsafe.Pointer(&buf[0])), C.CFIndex(len(buf)))
	if ok == 0 {
		return "", fmt.Errorf("sectrust: cannot represent code location as a filesystem path")
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// Requirement is an opaque handle to a code requirement compiled by the
// OS. It is immutable and may be reused across any number of validity
// checks, concurrently.
type Requirement struct {
	ref C.SecRequirementRef
}

// ParseRequirement compiles a textual code requirement expression, such as
// "anchor apple", into a Requirement. The requirement language and its
// semantics are owned entirely by the OS; syntax errors surface as an
// *Error with the OS parse status.
func ParseRequirement(text string) (*Requirement, error) {
	ctext := cfString(text)
	defer cfRelease(C.CFTypeRef(unsafe.Pointer(ctext)))

	var ref C.SecRequirementRef
	if err := osStatus(int32(C.SecRequirementCreateWithString(ctext, C.SecCSFlags(0), &ref))); err != nil {
		return nil, err
	}
	r := &Requirement{ref: ref}
	runtime.SetFinalizer(r, (*Requirement).Release)
	return r, nil
}

// Release drops the handle's reference to the OS object. It is safe to
// call more than once; the handle must not be used afterwards.
func (r *Requirement) Release() {
	if r.ref != nil {
		cfRelease(C.CFTypeRef(unsafe.Pointer(r.ref)))
		r.ref = nil
	}
	runtime.SetFinalizer(r, nil)
}

// DynamicCode represents the code object of a running process.
type DynamicCode struct {
	ref C.SecCodeRef
}

func newDynamicCode(ref C.SecCodeRef) *DynamicCode {
	c := &DynamicCode{ref: ref}
	runtime.SetFinalizer(c, (*DynamicCode).Release)
	return c
}

// SelfCode returns the code object for the calling process itself.
func SelfCode(flags Flags) (*DynamicCode, error) {
	var ref C.SecCodeRef
	if err := osStatus(int32(C.SecCodeCopySelf(C.SecCSFlags(flags), &ref))); err != nil {
		return nil, err
	}
	return newDynamicCode(ref), nil
}

// GuestCode asks a host code object to identify one of its guests by the
// given attributes. A nil host means the code signing root of trust
// (currently the system kernel), which resolves system-wide attributes
// such as a pid. A nil attrs passes no attributes, which the OS rejects
// with its own status.
func GuestCode(host *DynamicCode, attrs *GuestAttributes, flags Flags) (*DynamicCode, error) {
	var dict C.CFMutableDictionaryRef
	if attrs != nil {
		d, err := attrs.cfDictionary()
		if err != nil {
			return nil, err
		}
		dict = d
		defer cfRelease(C.CFTypeRef(unsafe.Pointer(dict)))
	}

	var hostRef C.SecCodeRef
	if host != nil {
		hostRef = host.ref
	}

	var ref C.SecCodeRef
	err := osStatus(int32(C.SecCodeCopyGuestWithAttributes(hostRef, C.CFDictionaryRef(dict), C.SecCSFlags(flags), &ref)))
	runtime.KeepAlive(host)
	if err != nil {
		return nil, err
	}
	return newDynamicCode(ref), nil
}

// Path returns the on-disk location backing this code object. It fails if
// the code has no stable path, for example when it is memory-only or
// already unlinked.
func (c *DynamicCode) Path(flags Flags) (string, error) {
	// The docs allow passing a SecCodeRef wherever a SecStaticCodeRef is
	// expected for path retrieval.
	path, err := copyCodePath(C.SecStaticCodeRef(unsafe.Pointer(c.ref)), flags)
	runtime.KeepAlive(c)
	return path, err
}

// CheckValidity asks the OS trust engine to verify that this running
// code's current signature and ancestry satisfy the requirement, honoring
// the given flags. A nil requirement validates the signature on its own
// terms. The result is success or an *Error with the verbatim OS status.
func (c *DynamicCode) CheckValidity(flags Flags, req *Requirement) error {
	var reqRef C.SecRequirementRef
	if req != nil {
		reqRef = req.ref
	}
	err := osStatus(int32(C.SecCodeCheckValidity(c.ref, C.SecCSFlags(flags), reqRef)))
	runtime.KeepAlive(c)
	runtime.KeepAlive(req)
	return err
}

// StaticCode returns the static (on disk) code object backing this
// running code.
func (c *DynamicCode) StaticCode(flags Flags) (*StaticCode, error) {
	var ref C.SecStaticCodeRef
	err := osStatus(int32(C.SecCodeCopyStaticCode(c.ref, C.SecCSFlags(flags), &ref)))
	runtime.KeepAlive(c)
	if err != nil {
		return nil, err
	}
	return newStaticCode(ref), nil
}

// Release drops the handle's reference to the OS object. It is safe to
// call more than once; the handle must not be used afterwards.
func (c *DynamicCode) Release() {
	if c.ref != nil {
		cfRelease(C.CFTypeRef(unsafe.Pointer(c.ref)))
		c.ref = nil
	}
	runtime.SetFinalizer(c, nil)
}

// StaticCode represents the code object of a binary on disk.
type StaticCode struct {
	ref C.SecStaticCodeRef
}

func newStaticCode(ref C.SecStaticCodeRef) *StaticCode {
	c := &StaticCode{ref: ref}
	runtime.SetFinalizer(c, (*StaticCode).Release)
	return c
}

// NewStaticCode creates a static code object for the file at the given
// path, locating its embedded signature. Depending on flags, a missing
// signature may or may not be an error; a missing file always is.
func NewStaticCode(path string, flags Flags) (*StaticCode, error) {
	url := cfFileURL(path)
	if url == nil {
		return nil, fmt.Errorf("sectrust: cannot represent path %q as a file URL", path)
	}
	defer cfRelease(C.CFTypeRef(unsafe.Pointer(url)))

	var ref C.SecStaticCodeRef
	if err := osStatus(int32(C.SecStaticCodeCreateWithPath(url, C.SecCSFlags(flags), &ref))); err != nil {
		return nil, err
	}
	return newStaticCode(ref), nil
}

// Path returns the canonical on-disk location of this code object.
func (c *StaticCode) Path(flags Flags) (string, error) {
	path, err := copyCodePath(c.ref, flags)
	runtime.KeepAlive(c)
	return path, err
}

// CheckValidity asks the OS trust engine to verify the on-disk signature
// against the requirement, honoring the given flags. A nil requirement
// validates the signature on its own terms. The result is success or an
// *Error with the verbatim OS status.
func (c *StaticCode) CheckValidity(flags Flags, req *Requirement) error {
	var reqRef C.SecRequirementRef
	if req != nil {
		reqRef = req.ref
	}
	err := osStatus(int32(C.SecStaticCodeCheckValidity(c.ref, C.SecCSFlags(flags), reqRef)))
	runtime.KeepAlive(c)
	runtime.KeepAlive(req)
	return err
}

// Release drops the handle's reference to the OS object. It is safe to
// call more than once; the handle must not be used afterwards.
func (c *StaticCode) Release() {
	if c.ref != nil {
		cfRelease(C.CFTypeRef(unsafe.Pointer(c.ref)))
		c.ref = nil
	}
	runtime.SetFinalizer(c, nil)
}
