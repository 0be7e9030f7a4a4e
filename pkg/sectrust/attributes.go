package sectrust

// GuestAttributes describes how a code host should locate one of its
// guests. Build it incrementally with the setters, then pass it to
// GuestCode; the lookup reads it exactly once. A GuestAttributes must not
// be shared between goroutines while it is being built.
//
// Only the audit token and pid attributes have dedicated setters. The
// architecture, canonical form, dynamic code, dynamic code info, hash,
// Mach port and sub-architecture attributes have no convenience accessor;
// callers needing them must use SetOther with the key the OS documents.
// No validation happens locally: conflicting or invalid attribute
// combinations are rejected by the lookup call with an OS-defined status.
type GuestAttributes struct {
	entries []guestAttr
}

type attrKind int

const (
	attrAudit attrKind = iota
	attrPid
	attrOther
)

type guestAttr struct {
	kind  attrKind
	key   string // set only for attrOther
	value any
}

// SetAuditToken associates the guest's audit token attribute with the
// given binary blob, overwriting any prior value.
func (a *GuestAttributes) SetAuditToken(token []byte) {
	a.set(guestAttr{kind: attrAudit, value: token})
}

// SetPID associates the guest's process id attribute with pid,
// overwriting any prior value.
func (a *GuestAttributes) SetPID(pid int) {
	a.set(guestAttr{kind: attrPid, value: int64(pid)})
}

// SetOther associates an arbitrary guest attribute key with a value,
// overwriting any prior value for that key. Supported value types are
// []byte, string, bool and the built-in integer types; anything else makes
// the subsequent lookup fail before the OS is consulted.
func (a *GuestAttributes) SetOther(key string, value any) {
	a.set(guestAttr{kind: attrOther, key: key, value: value})
}

// Len returns the number of distinct attributes set.
func (a *GuestAttributes) Len() int {
	return len(a.entries)
}

func (a *GuestAttributes) set(attr guestAttr) {
	for i, e := range a.entries {
		if e.kind == attr.kind && e.key == attr.key {
			a.entries[i] = attr
			return
		}
	}
	a.entries = append(a.entries, attr)
}
