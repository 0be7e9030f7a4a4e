package sectrust

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/blacktop/go-macho"
	"go.mozilla.org/pkcs7"
	"howett.net/plist"
)

// Embedded signature layout constants from Apple's cs_blobs.h.
const (
	csMagicEmbeddedSignature    = 0xfade0cc0
	csMagicCodeDirectory        = 0xfade0c02
	csMagicEmbeddedEntitlements = 0xfade7171
	csMagicEntitlementsDER      = 0xfade7172
	csMagicBlobWrapper          = 0xfade0b01

	csSlotCodeDirectory     = 0
	csSlotRequirements      = 2
	csSlotEntitlements      = 5
	csSlotEntitlementsDER   = 7
	csSlotAlternateCodeDirs = 0x1000
	csSlotCMSSignature      = 0x10000

	csHashTypeSHA1   = 1
	csHashTypeSHA256 = 2

	csFlagAdHoc = 0x2

	lcCodeSignature = 0x1d
)

// ErrNoSignature reports that a Mach-O binary carries no embedded code
// signature.
var ErrNoSignature = errors.New("sectrust: no embedded code signature")

// SignatureInfo holds the embedded signature details of one binary, read
// directly from the file. Inspection is informational only: nothing here
// is verified, and a populated SignatureInfo says nothing about whether
// the signature is valid. Use StaticCode.CheckValidity for that.
type SignatureInfo struct {
	Path         string
	RelativePath string // relative to the bundle root during a bundle walk

	Identifier   string
	TeamID       string
	Flags        uint32
	AdHoc        bool
	HashType     uint8
	PageSize     uint32
	CodeSlots    uint32
	SpecialSlots uint32
	CDHash       []byte // hash of the preferred CodeDirectory, truncated to 20 bytes

	Entitlements    map[string]interface{}
	EntitlementsXML string
	EntitlementsDER []byte

	SignerCN     string
	SignerTeamID string
}

// InspectFile reads the embedded code signature of the Mach-O binary at
// path. For universal binaries the first architecture slice is inspected.
// Returns ErrNoSignature if the binary is unsigned.
func InspectFile(path string) (*SignatureInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read binary: %w", err)
	}
	return inspectData(data, path)
}

func inspectData(data []byte, path string) (*SignatureInfo, error) {
	sliceData, err := firstSlice(data)
	if err != nil {
		return nil, err
	}

	sigOffset, sigSize, found := findSignature(sliceData)
	if !found {
		return nil, ErrNoSignature
	}
	if uint64(sigOffset)+uint64(sigSize) > uint64(len(sliceData)) {
		return nil, fmt.Errorf("code signature extends beyond file")
	}

	info := &SignatureInfo{Path: path}
	if err := parseSuperBlob(sliceData[sigOffset:sigOffset+sigSize], info); err != nil {
		return nil, err
	}
	return info, nil
}

// firstSlice returns the first architecture slice of a fat binary, or the
// input unchanged for a thin one.
func firstSlice(data []byte) ([]byte, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("file too short for a Mach-O header")
	}
	magic := binary.BigEndian.Uint32(data[:4])
	if magic != 0xcafebabe && magic != 0xcafebabf {
		return data, nil
	}

	fat, err := macho.NewFatFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse fat binary: %w", err)
	}
	defer fat.Close()

	if len(fat.Arches) == 0 {
		return nil, fmt.Errorf("fat binary has no architectures")
	}
	arch := fat.Arches[0]
	end := uint64(arch.Offset) + uint64(arch.Size)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("fat arch extends beyond file")
	}
	return data[arch.Offset:end], nil
}

// findSignature locates the LC_CODE_SIGNATURE payload. go-macho is the
// primary path; the raw load command scan below covers binaries whose
// signatures it refuses to parse.
func findSignature(data []byte) (offset, size uint32, found bool) {
	if m, err := macho.NewFile(bytes.NewReader(data)); err == nil {
		defer m.Close()
		for _, load := range m.Loads {
			if cs, ok := load.(*macho.CodeSignature); ok {
				return cs.Offset, cs.Size, true
			}
		}
		return 0, 0, false
	}
	return scanCodeSignatureCmd(data)
}

// scanCodeSignatureCmd walks the load commands by hand looking for
// LC_CODE_SIGNATURE.
func scanCodeSignatureCmd(data []byte) (offset, size uint32, found bool) {
	if len(data) < 32 {
		return 0, 0, false
	}

	var headerSize uint32
	switch binary.LittleEndian.Uint32(data[:4]) {
	case 0xfeedfacf: // MH_MAGIC_64
		headerSize = 32
	case 0xfeedface: // MH_MAGIC
		headerSize = 28
	default:
		return 0, 0, false
	}

	var ncmds, sizeofcmds uint32
	if headerSize == 32 {
		ncmds = binary.LittleEndian.Uint32(data[16:20])
		sizeofcmds = binary.LittleEndian.Uint32(data[20:24])
	} else {
		ncmds = binary.LittleEndian.Uint32(data[12:16])
		sizeofcmds = binary.LittleEndian.Uint32(data[16:20])
	}
	if uint64(len(data)) < uint64(headerSize)+uint64(sizeofcmds) {
		return 0, 0, false
	}

	cmdOffset := headerSize
	for i := uint32(0); i < ncmds; i++ {
		if cmdOffset+8 > headerSize+sizeofcmds {
			break
		}
		cmd := binary.LittleEndian.Uint32(data[cmdOffset:])
		cmdSize := binary.LittleEndian.Uint32(data[cmdOffset+4:])
		if cmd == lcCodeSignature && cmdSize >= 16 {
			// The declared cmdsize must actually fit in the command area.
			if cmdOffset+16 > headerSize+sizeofcmds {
				break
			}
			return binary.LittleEndian.Uint32(data[cmdOffset+8:]), binary.LittleEndian.Uint32(data[cmdOffset+12:]), true
		}
		if cmdSize == 0 {
			break
		}
		cmdOffset += cmdSize
	}
	return 0, 0, false
}

func parseSuperBlob(sig []byte, info *SignatureInfo) error {
	if len(sig) < 12 {
		return fmt.Errorf("signature data too short")
	}
	if binary.BigEndian.Uint32(sig[0:4]) != csMagicEmbeddedSignature {
		return fmt.Errorf("invalid SuperBlob magic: 0x%x", binary.BigEndian.Uint32(sig[0:4]))
	}
	blobCount := binary.BigEndian.Uint32(sig[8:12])
	if uint64(len(sig)) < 12+uint64(blobCount)*8 {
		return fmt.Errorf("signature data too short for blob index")
	}

	type cdBlob struct {
		dir codeDirectory
		raw []byte
	}
	var cds []cdBlob

	for i := uint32(0); i < blobCount; i++ {
		entry := 12 + i*8
		blobType := binary.BigEndian.Uint32(sig[entry:])
		blobOffset := binary.BigEndian.Uint32(sig[entry+4:])
		if uint64(blobOffset)+8 > uint64(len(sig)) {
			continue
		}
		blobSize := binary.BigEndian.Uint32(sig[blobOffset+4:])
		if blobSize < 8 || uint64(blobOffset)+uint64(blobSize) > uint64(len(sig)) {
			continue
		}
		blob := sig[blobOffset : blobOffset+blobSize]

		switch {
		case blobType == csSlotCodeDirectory || blobType >= csSlotAlternateCodeDirs && blobType < csSlotAlternateCodeDirs+0x10:
			if cd, err := parseCodeDirectory(blob); err == nil {
				cds = append(cds, cdBlob{dir: cd, raw: blob})
			}
		case blobType == csSlotEntitlements:
			if binary.BigEndian.Uint32(blob) == csMagicEmbeddedEntitlements {
				info.EntitlementsXML = string(blob[8:])
				var parsed map[string]interface{}
				if _, err := plist.Unmarshal(blob[8:], &parsed); err == nil {
					info.Entitlements = parsed
				}
			}
		case blobType == csSlotEntitlementsDER:
			if binary.BigEndian.Uint32(blob) == csMagicEntitlementsDER {
				info.EntitlementsDER = append([]byte(nil), blob[8:]...)
			}
		case blobType == csSlotCMSSignature:
			parseCMSSigner(blob[8:], info)
		}
	}

	if len(cds) == 0 {
		return fmt.Errorf("signature has no CodeDirectory")
	}

	// Prefer the SHA-256 CodeDirectory, matching what the OS verifies on
	// current systems.
	best := cds[0]
	for _, cd := range cds[1:] {
		if cd.dir.hashType == csHashTypeSHA256 && best.dir.hashType != csHashTypeSHA256 {
			best = cd
		}
	}

	info.Identifier = best.dir.identifier
	info.TeamID = best.dir.teamID
	info.Flags = best.dir.flags
	info.AdHoc = best.dir.flags&csFlagAdHoc != 0
	info.HashType = best.dir.hashType
	info.PageSize = best.dir.pageSize
	info.CodeSlots = best.dir.codeSlots
	info.SpecialSlots = best.dir.specialSlots
	info.CDHash = cdHash(best.raw, best.dir.hashType)
	return nil
}

type codeDirectory struct {
	version      uint32
	flags        uint32
	hashType     uint8
	hashSize     uint8
	pageSize     uint32
	codeSlots    uint32
	specialSlots uint32
	identifier   string
	teamID       string
}

func parseCodeDirectory(blob []byte) (codeDirectory, error) {
	var cd codeDirectory
	if len(blob) < 44 {
		return cd, fmt.Errorf("CodeDirectory too short")
	}
	if binary.BigEndian.Uint32(blob) != csMagicCodeDirectory {
		return cd, fmt.Errorf("invalid CodeDirectory magic: 0x%x", binary.BigEndian.Uint32(blob))
	}

	cd.version = binary.BigEndian.Uint32(blob[8:12])
	cd.flags = binary.BigEndian.Uint32(blob[12:16])
	identOffset := binary.BigEndian.Uint32(blob[20:24])
	cd.specialSlots = binary.BigEndian.Uint32(blob[24:28])
	cd.codeSlots = binary.BigEndian.Uint32(blob[28:32])
	cd.hashSize = blob[36]
	cd.hashType = blob[37]
	cd.pageSize = 1 << blob[39]

	cd.identifier = cString(blob, identOffset)

	// Team ID arrives with version 0x20200.
	if cd.version >= 0x20200 && len(blob) >= 52 {
		if teamOffset := binary.BigEndian.Uint32(blob[48:52]); teamOffset != 0 {
			cd.teamID = cString(blob, teamOffset)
		}
	}
	return cd, nil
}

func cString(data []byte, offset uint32) string {
	if uint64(offset) >= uint64(len(data)) {
		return ""
	}
	s := data[offset:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}

// cdHash computes the CodeDirectory hash the way the OS identifies
// signatures: the directory's own hash algorithm over the raw blob,
// truncated to 20 bytes.
func cdHash(blob []byte, hashType uint8) []byte {
	switch hashType {
	case csHashTypeSHA1:
		sum := sha1.Sum(blob)
		return sum[:]
	case csHashTypeSHA256:
		sum := sha256.Sum256(blob)
		return sum[:20]
	default:
		return nil
	}
}

// parseCMSSigner extracts the signer identity from the CMS blob. An empty
// blob is normal for ad-hoc signatures.
func parseCMSSigner(cms []byte, info *SignatureInfo) {
	if len(cms) == 0 {
		return
	}
	p7, err := pkcs7.Parse(cms)
	if err != nil || len(p7.Signers) == 0 {
		return
	}
	signer := p7.Signers[0]
	for _, cert := range p7.Certificates {
		if cert.SerialNumber.Cmp(signer.IssuerAndSerialNumber.SerialNumber) != 0 {
			continue
		}
		info.SignerCN = cert.Subject.CommonName
		for _, ou := range cert.Subject.OrganizationalUnit {
			if len(ou) == 10 && isAlphanumeric(ou) {
				info.SignerTeamID = ou
				break
			}
		}
		return
	}
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// InspectOptions configures a bundle walk.
type InspectOptions struct {
	// Logger receives skip diagnostics for unsigned or unreadable
	// binaries. Nil discards them.
	Logger *slog.Logger
}

// InspectBundle walks an .app bundle (or any directory) and inspects the
// embedded signature of every Mach-O binary found. Unsigned binaries are
// logged and skipped rather than failing the walk.
func InspectBundle(bundlePath string, opts InspectOptions) ([]*SignatureInfo, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	binaries, err := findMachOBinaries(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to find binaries: %w", err)
	}

	var infos []*SignatureInfo
	for _, bin := range binaries {
		info, err := InspectFile(bin)
		if err != nil {
			if errors.Is(err, ErrNoSignature) {
				logger.Debug("binary is unsigned", "path", bin)
			} else {
				logger.Warn("cannot inspect binary", "path", bin, "error", err)
			}
			continue
		}
		if rel, err := filepath.Rel(bundlePath, bin); err == nil {
			info.RelativePath = rel
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func findMachOBinaries(root string) ([]string, error) {
	var binaries []string

	err := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		if fi.Mode()&0111 == 0 && !strings.Contains(path, ".framework") {
			return nil
		}
		if isMachO(path) {
			binaries = append(binaries, path)
		}
		return nil
	})

	return binaries, err
}

func isMachO(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return false
	}

	// MH_MAGIC(_64) little endian, FAT_MAGIC(_64) big endian.
	return bytes.Equal(magic, []byte{0xcf, 0xfa, 0xed, 0xfe}) ||
		bytes.Equal(magic, []byte{0xce, 0xfa, 0xed, 0xfe}) ||
		bytes.Equal(magic, []byte{0xca, 0xfe, 0xba, 0xbe}) ||
		bytes.Equal(magic, []byte{0xca, 0xfe, 0xba, 0xbf})
}
