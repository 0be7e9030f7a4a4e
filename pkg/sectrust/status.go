package sectrust

import (
	"errors"
	"fmt"
)

// Well-known OSStatus values reported by the code signing services, from
// Apple's CSCommon.h. The OS owns the full taxonomy; these constants cover
// the codes callers most commonly need to match on. Any other nonzero
// status is still surfaced unchanged through Error.
const (
	// StatusUnimplemented: function or operation not implemented. Also
	// returned by this package on platforms without the binding.
	StatusUnimplemented int32 = -67072

	// StatusInvalidObjectRef: invalid API object reference.
	StatusInvalidObjectRef int32 = -67071

	// StatusInvalidFlags: invalid or inappropriate API flag(s) specified.
	StatusInvalidFlags int32 = -67070

	// StatusObjectRequired: a required pointer argument was NULL.
	StatusObjectRequired int32 = -67069

	// StatusStaticCodeNotFound: cannot find code object on disk.
	StatusStaticCodeNotFound int32 = -67068

	// StatusUnsupportedGuestAttributes: cannot locate guests using this
	// attribute set.
	StatusUnsupportedGuestAttributes int32 = -67067

	// StatusInvalidAttributeValues: given attribute values are invalid.
	StatusInvalidAttributeValues int32 = -67066

	// StatusNoSuchCode: host has no guest with the requested attributes.
	StatusNoSuchCode int32 = -67065

	// StatusMultipleGuests: ambiguous guest specification.
	StatusMultipleGuests int32 = -67064

	// StatusGuestInvalid: code identity has been invalidated.
	StatusGuestInvalid int32 = -67063

	// StatusUnsigned: code object is not signed at all.
	StatusUnsigned int32 = -67062

	// StatusSignatureFailed: invalid signature (code or signature have
	// been modified).
	StatusSignatureFailed int32 = -67061

	// StatusSignatureNotVerifiable: the code cannot be read by the
	// verifier.
	StatusSignatureNotVerifiable int32 = -67060

	// StatusSignatureUnsupported: unsupported type or version of
	// signature.
	StatusSignatureUnsupported int32 = -67059

	// StatusBadDictionaryFormat: invalid format in detached signature.
	StatusBadDictionaryFormat int32 = -67058

	// StatusResourcesNotSealed: resources are present but not sealed by
	// the signature.
	StatusResourcesNotSealed int32 = -67057

	// StatusResourcesNotFound: cannot find sealed resources in the code.
	StatusResourcesNotFound int32 = -67056

	// StatusResourcesInvalid: the sealed resource directory is invalid.
	StatusResourcesInvalid int32 = -67055

	// StatusBadResource: a sealed resource is missing or invalid.
	StatusBadResource int32 = -67054

	// StatusResourceRulesInvalid: invalid resource specification.
	StatusResourceRulesInvalid int32 = -67053

	// StatusReqInvalid: the requirement is not syntactically valid.
	StatusReqInvalid int32 = -67052

	// StatusReqUnsupported: an unsupported type or version of the
	// requirement was given.
	StatusReqUnsupported int32 = -67051

	// StatusReqFailed: the code failed to satisfy the specified
	// requirement(s).
	StatusReqFailed int32 = -67050

	// StatusBadObjectFormat: the code object is malformed.
	StatusBadObjectFormat int32 = -67049

	// StatusInternalError: internal error in the code signing subsystem.
	StatusInternalError int32 = -67048

	// StatusHostReject: the code host refused the operation.
	StatusHostReject int32 = -67047

	// StatusNotAHost: the code is not a host of guests.
	StatusNotAHost int32 = -67046
)

var statusNames = map[int32]string{
	StatusUnimplemented:              "errSecCSUnimplemented",
	StatusInvalidObjectRef:           "errSecCSInvalidObjectRef",
	StatusInvalidFlags:               "errSecCSInvalidFlags",
	StatusObjectRequired:             "errSecCSObjectRequired",
	StatusStaticCodeNotFound:         "errSecCSStaticCodeNotFound",
	StatusUnsupportedGuestAttributes: "errSecCSUnsupportedGuestAttributes",
	StatusInvalidAttributeValues:     "errSecCSInvalidAttributeValues",
	StatusNoSuchCode:                 "errSecCSNoSuchCode",
	StatusMultipleGuests:             "errSecCSMultipleGuests",
	StatusGuestInvalid:               "errSecCSGuestInvalid",
	StatusUnsigned:                   "errSecCSUnsigned",
	StatusSignatureFailed:            "errSecCSSignatureFailed",
	StatusSignatureNotVerifiable:     "errSecCSSignatureNotVerifiable",
	StatusSignatureUnsupported:       "errSecCSSignatureUnsupported",
	StatusBadDictionaryFormat:        "errSecCSBadDictionaryFormat",
	StatusResourcesNotSealed:         "errSecCSResourcesNotSealed",
	StatusResourcesNotFound:          "errSecCSResourcesNotFound",
	StatusResourcesInvalid:           "errSecCSResourcesInvalid",
	StatusBadResource:                "errSecCSBadResource",
	StatusResourceRulesInvalid:       "errSecCSResourceRulesInvalid",
	StatusReqInvalid:                 "errSecCSReqInvalid",
	StatusReqUnsupported:             "errSecCSReqUnsupported",
	StatusReqFailed:                  "errSecCSReqFailed",
	StatusBadObjectFormat:            "errSecCSBadObjectFormat",
	StatusInternalError:              "errSecCSInternalError",
	StatusHostReject:                 "errSecCSHostReject",
	StatusNotAHost:                   "errSecCSNotAHost",
}

// Error carries the raw OSStatus reported by the security framework for a
// failed call. The status is never reinterpreted locally; match on it
// numerically or with IsStatus.
type Error struct {
	Status int32
}

func (e *Error) Error() string {
	if name, ok := statusNames[e.Status]; ok {
		return fmt.Sprintf("sectrust: OSStatus %d (%s)", e.Status, name)
	}
	return fmt.Sprintf("sectrust: OSStatus %d", e.Status)
}

// IsStatus reports whether err is (or wraps) an *Error with the given
// status code.
func IsStatus(err error, status int32) bool {
	var se *Error
	return errors.As(err, &se) && se.Status == status
}

// osStatus converts an OSStatus into an error: nil for zero, *Error
// otherwise.
func osStatus(status int32) error {
	if status == 0 {
		return nil
	}
	return &Error{Status: status}
}
