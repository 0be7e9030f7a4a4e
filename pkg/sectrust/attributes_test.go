package sectrust

import (
	"bytes"
	"testing"
)

func TestGuestAttributesEmpty(t *testing.T) {
	var attrs GuestAttributes
	if attrs.Len() != 0 {
		t.Errorf("empty bag should have length 0, got %d", attrs.Len())
	}
}

func TestGuestAttributesSetters(t *testing.T) {
	var attrs GuestAttributes
	attrs.SetPID(123)
	attrs.SetAuditToken([]byte{1, 2, 3, 4})
	attrs.SetOther("architecture", "arm64")

	if attrs.Len() != 3 {
		t.Fatalf("expected 3 attributes, got %d", attrs.Len())
	}
}

func TestGuestAttributesOverwrite(t *testing.T) {
	var attrs GuestAttributes
	attrs.SetPID(123)
	attrs.SetPID(456)

	if attrs.Len() != 1 {
		t.Fatalf("setting pid twice should keep one entry, got %d", attrs.Len())
	}
	if got := attrs.entries[0].value.(int64); got != 456 {
		t.Errorf("pid value %d, want 456", got)
	}

	attrs.SetAuditToken([]byte{1})
	attrs.SetAuditToken([]byte{2, 3})
	if attrs.Len() != 2 {
		t.Fatalf("expected 2 entries after audit token overwrite, got %d", attrs.Len())
	}
	for _, e := range attrs.entries {
		if e.kind == attrAudit && !bytes.Equal(e.value.([]byte), []byte{2, 3}) {
			t.Errorf("audit token value %v, want [2 3]", e.value)
		}
	}
}

func TestGuestAttributesDistinctOtherKeys(t *testing.T) {
	var attrs GuestAttributes
	attrs.SetOther("architecture", "arm64")
	attrs.SetOther("sub-architecture", 2)
	attrs.SetOther("architecture", "x86_64")

	if attrs.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", attrs.Len())
	}
	for _, e := range attrs.entries {
		if e.key == "architecture" && e.value.(string) != "x86_64" {
			t.Errorf("architecture value %v, want x86_64", e.value)
		}
	}
}
