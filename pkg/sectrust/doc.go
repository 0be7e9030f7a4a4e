// Package sectrust exposes the macOS code signing services to Go callers.
//
// The package is a thin binding over the operating system's trust engine
// (Security.framework's SecCode, SecStaticCode and SecRequirement API).
// Signature verification, certificate chain validation and requirement
// language parsing all happen inside the OS; this package marshals
// requests in and surfaces results, including the raw OSStatus of every
// failure, verbatim.
//
// # Basic Usage
//
// To verify that a binary on disk was signed by Apple:
//
//	code, err := sectrust.NewStaticCode("/bin/ls", sectrust.NoFlags)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer code.Release()
//
//	req, err := sectrust.ParseRequirement("anchor apple")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer req.Release()
//
//	if err := code.CheckValidity(sectrust.NoFlags, req); err != nil {
//	    log.Fatal(err) // carries the OS status, e.g. errSecCSReqFailed
//	}
//
// A running process is checked the same way through a DynamicCode handle,
// obtained with SelfCode for the calling process or GuestCode for a guest
// identified by GuestAttributes (pid, audit token, ...).
//
// The binding requires macOS and cgo. On every other platform the
// handle-producing functions return an *Error carrying StatusUnimplemented,
// so callers can probe availability without build tags. InspectFile and
// InspectBundle, which only read the embedded signature structure for
// display, work on all platforms.
package sectrust
