package sectrust

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// buildCodeDirectory assembles a version 0x20400 CodeDirectory blob with
// the given identity and two zero code hashes.
func buildCodeDirectory(identifier, teamID string, flags uint32) []byte {
	const headerLen = 88
	const hashSize = 32
	const codeSlots = 2

	identOffset := uint32(headerLen)
	teamOffset := identOffset + uint32(len(identifier)) + 1
	hashOffset := teamOffset + uint32(len(teamID)) + 1
	total := hashOffset + codeSlots*hashSize

	blob := make([]byte, total)
	binary.BigEndian.PutUint32(blob[0:], csMagicCodeDirectory)
	binary.BigEndian.PutUint32(blob[4:], total)
	binary.BigEndian.PutUint32(blob[8:], 0x20400) // version
	binary.BigEndian.PutUint32(blob[12:], flags)
	binary.BigEndian.PutUint32(blob[16:], hashOffset)
	binary.BigEndian.PutUint32(blob[20:], identOffset)
	binary.BigEndian.PutUint32(blob[24:], 0) // special slots
	binary.BigEndian.PutUint32(blob[28:], codeSlots)
	binary.BigEndian.PutUint32(blob[32:], 8192) // code limit
	blob[36] = hashSize
	blob[37] = csHashTypeSHA256
	blob[39] = 12 // 4KB pages
	binary.BigEndian.PutUint32(blob[48:], teamOffset)

	copy(blob[identOffset:], identifier)
	copy(blob[teamOffset:], teamID)
	return blob
}

func buildEntitlementsBlob(xml string) []byte {
	blob := make([]byte, 8+len(xml))
	binary.BigEndian.PutUint32(blob[0:], csMagicEmbeddedEntitlements)
	binary.BigEndian.PutUint32(blob[4:], uint32(len(blob)))
	copy(blob[8:], xml)
	return blob
}

func buildSuperBlob(blobs map[uint32][]byte) []byte {
	count := uint32(len(blobs))
	indexEnd := 12 + count*8

	// Deterministic slot order keeps offsets stable.
	var slots []uint32
	for slot := range blobs {
		slots = append(slots, slot)
	}
	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			if slots[j] < slots[i] {
				slots[i], slots[j] = slots[j], slots[i]
			}
		}
	}

	total := indexEnd
	for _, slot := range slots {
		total += uint32(len(blobs[slot]))
	}

	sb := make([]byte, total)
	binary.BigEndian.PutUint32(sb[0:], csMagicEmbeddedSignature)
	binary.BigEndian.PutUint32(sb[4:], total)
	binary.BigEndian.PutUint32(sb[8:], count)

	offset := indexEnd
	for i, slot := range slots {
		binary.BigEndian.PutUint32(sb[12+uint32(i)*8:], slot)
		binary.BigEndian.PutUint32(sb[12+uint32(i)*8+4:], offset)
		copy(sb[offset:], blobs[slot])
		offset += uint32(len(blobs[slot]))
	}
	return sb
}

const testEntitlementsXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>com.apple.security.get-task-allow</key>
	<true/>
</dict>
</plist>
`

func TestParseSuperBlob(t *testing.T) {
	sb := buildSuperBlob(map[uint32][]byte{
		csSlotCodeDirectory: buildCodeDirectory("com.example.tool", "ABCDE12345", csFlagAdHoc),
		csSlotEntitlements:  buildEntitlementsBlob(testEntitlementsXML),
	})

	var info SignatureInfo
	if err := parseSuperBlob(sb, &info); err != nil {
		t.Fatalf("parseSuperBlob failed: %v", err)
	}

	if info.Identifier != "com.example.tool" {
		t.Errorf("identifier %q, want com.example.tool", info.Identifier)
	}
	if info.TeamID != "ABCDE12345" {
		t.Errorf("team ID %q, want ABCDE12345", info.TeamID)
	}
	if !info.AdHoc {
		t.Error("ad-hoc flag should be set")
	}
	if info.HashType != csHashTypeSHA256 {
		t.Errorf("hash type %d, want %d", info.HashType, csHashTypeSHA256)
	}
	if info.PageSize != 4096 {
		t.Errorf("page size %d, want 4096", info.PageSize)
	}
	if info.CodeSlots != 2 {
		t.Errorf("code slots %d, want 2", info.CodeSlots)
	}
	if len(info.CDHash) != 20 {
		t.Errorf("cdhash length %d, want 20", len(info.CDHash))
	}
	if info.EntitlementsXML != testEntitlementsXML {
		t.Error("entitlements XML not preserved")
	}
	if v, ok := info.Entitlements["com.apple.security.get-task-allow"].(bool); !ok || !v {
		t.Errorf("entitlement get-task-allow = %v, want true", info.Entitlements["com.apple.security.get-task-allow"])
	}
}

func TestParseSuperBlobNoCodeDirectory(t *testing.T) {
	sb := buildSuperBlob(map[uint32][]byte{
		csSlotEntitlements: buildEntitlementsBlob(testEntitlementsXML),
	})

	var info SignatureInfo
	if err := parseSuperBlob(sb, &info); err == nil {
		t.Error("superblob without CodeDirectory should fail")
	}
}

func TestParseSuperBlobBadMagic(t *testing.T) {
	sb := buildSuperBlob(map[uint32][]byte{
		csSlotCodeDirectory: buildCodeDirectory("com.example.tool", "", 0),
	})
	binary.BigEndian.PutUint32(sb[0:], 0xdeadbeef)

	var info SignatureInfo
	if err := parseSuperBlob(sb, &info); err == nil {
		t.Error("bad SuperBlob magic should fail")
	}
}

func TestParseCodeDirectoryNoTeam(t *testing.T) {
	blob := buildCodeDirectory("com.example.solo", "", 0)
	// A zero team offset means no team identifier.
	binary.BigEndian.PutUint32(blob[48:], 0)

	cd, err := parseCodeDirectory(blob)
	if err != nil {
		t.Fatalf("parseCodeDirectory failed: %v", err)
	}
	if cd.teamID != "" {
		t.Errorf("team ID %q, want empty", cd.teamID)
	}
	if cd.identifier != "com.example.solo" {
		t.Errorf("identifier %q, want com.example.solo", cd.identifier)
	}
}

func TestScanCodeSignatureCmd(t *testing.T) {
	// Minimal 64-bit Mach-O header with a single LC_CODE_SIGNATURE.
	data := make([]byte, 48)
	binary.LittleEndian.PutUint32(data[0:], 0xfeedfacf) // MH_MAGIC_64
	binary.LittleEndian.PutUint32(data[16:], 1)         // ncmds
	binary.LittleEndian.PutUint32(data[20:], 16)        // sizeofcmds
	binary.LittleEndian.PutUint32(data[32:], lcCodeSignature)
	binary.LittleEndian.PutUint32(data[36:], 16)   // cmdsize
	binary.LittleEndian.PutUint32(data[40:], 4096) // dataoff
	binary.LittleEndian.PutUint32(data[44:], 512)  // datasize

	offset, size, found := scanCodeSignatureCmd(data)
	if !found {
		t.Fatal("signature load command not found")
	}
	if offset != 4096 || size != 512 {
		t.Errorf("offset/size %d/%d, want 4096/512", offset, size)
	}
}

func TestScanCodeSignatureCmdTruncatedCommand(t *testing.T) {
	// sizeofcmds covers only 12 bytes of a command that claims cmdsize 16:
	// the offset/size words lie past the command area and must not be read.
	data := make([]byte, 44)
	binary.LittleEndian.PutUint32(data[0:], 0xfeedfacf) // MH_MAGIC_64
	binary.LittleEndian.PutUint32(data[16:], 1)         // ncmds
	binary.LittleEndian.PutUint32(data[20:], 12)        // sizeofcmds
	binary.LittleEndian.PutUint32(data[32:], lcCodeSignature)
	binary.LittleEndian.PutUint32(data[36:], 16) // cmdsize

	if _, _, found := scanCodeSignatureCmd(data); found {
		t.Error("truncated signature command should not be found")
	}
}

func TestInspectFileTruncatedCommand(t *testing.T) {
	data := make([]byte, 44)
	binary.LittleEndian.PutUint32(data[0:], 0xfeedfacf)
	binary.LittleEndian.PutUint32(data[16:], 1)
	binary.LittleEndian.PutUint32(data[20:], 12)
	binary.LittleEndian.PutUint32(data[32:], lcCodeSignature)
	binary.LittleEndian.PutUint32(data[36:], 16)

	path := filepath.Join(t.TempDir(), "truncated")
	if err := os.WriteFile(path, data, 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := InspectFile(path); err == nil {
		t.Error("truncated binary should fail inspection")
	}
}

func TestScanCodeSignatureCmdNotMachO(t *testing.T) {
	if _, _, found := scanCodeSignatureCmd([]byte("definitely not a mach-o binary, just text")); found {
		t.Error("non Mach-O data should not yield a signature")
	}
}

func TestIsMachO(t *testing.T) {
	dir := t.TempDir()

	macho := filepath.Join(dir, "macho")
	if err := os.WriteFile(macho, []byte{0xcf, 0xfa, 0xed, 0xfe, 0, 0, 0, 0}, 0755); err != nil {
		t.Fatal(err)
	}
	text := filepath.Join(dir, "text")
	if err := os.WriteFile(text, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	if !isMachO(macho) {
		t.Error("MH_MAGIC_64 file should be detected")
	}
	if isMachO(text) {
		t.Error("shell script should not be detected")
	}
	if isMachO(filepath.Join(dir, "missing")) {
		t.Error("missing file should not be detected")
	}
}

func TestInspectFileNotSigned(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain")
	if err := os.WriteFile(path, []byte("just some text, long enough for a header"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := InspectFile(path); err == nil {
		t.Error("non Mach-O file should fail inspection")
	}
}

func TestInspectSystemBinary(t *testing.T) {
	if runtime.GOOS != "darwin" {
		t.Skip("system binary inspection requires macOS")
	}

	info, err := InspectFile("/bin/ls")
	if err != nil {
		t.Fatalf("failed to inspect /bin/ls: %v", err)
	}

	if info.Identifier == "" {
		t.Error("system binary should have an identifier")
	}
	if info.AdHoc {
		t.Error("system binary should not be ad-hoc signed")
	}
	if len(info.CDHash) != 20 {
		t.Errorf("cdhash length %d, want 20", len(info.CDHash))
	}
	if info.SignerCN == "" {
		t.Error("system binary should carry a CMS signer")
	}
}

func TestInspectBundle(t *testing.T) {
	dir := t.TempDir()
	// One fake unsigned Mach-O and one text file; the walk should skip
	// both without failing.
	if err := os.WriteFile(filepath.Join(dir, "bin"), []byte{0xcf, 0xfa, 0xed, 0xfe, 0, 0, 0, 0}, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	infos, err := InspectBundle(dir, InspectOptions{})
	if err != nil {
		t.Fatalf("InspectBundle failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected no signed binaries, got %d", len(infos))
	}
}

func TestInspectBundleMissing(t *testing.T) {
	if _, err := InspectBundle(filepath.Join(t.TempDir(), "missing.app"), InspectOptions{}); err == nil {
		t.Error("missing bundle should fail")
	}
}
