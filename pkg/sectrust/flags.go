package sectrust

// Flags is a bit-set of options accepted by most code signing calls.
// Values mirror SecCSFlags from Apple's CSCommon.h. Combine flags with |,
// intersect with &, subtract with &^. The zero value requests the default
// behaviour everywhere.
type Flags uint32

const (
	// NoFlags requests the default behaviour.
	NoFlags Flags = 0

	// CheckAllArchitectures validates every architecture of a
	// multi-architecture (universal) Mach-O program.
	CheckAllArchitectures Flags = 1 << 0

	// DoNotValidateExecutable skips validation of the contents of the
	// main executable.
	DoNotValidateExecutable Flags = 1 << 1

	// DoNotValidateResources skips validation of the presence and
	// contents of bundle resources, if any.
	DoNotValidateResources Flags = 1 << 2

	// BasicValidateOnly validates neither the main executable nor the
	// bundle resources, if any.
	BasicValidateOnly = DoNotValidateExecutable | DoNotValidateResources

	// CheckNestedCode locates and recursively checks embedded code for
	// code in bundle form.
	CheckNestedCode Flags = 1 << 3

	// StrictValidate performs additional checks to ensure the validity
	// of code in bundle form.
	StrictValidate Flags = 1 << 4

	// FullReport is not documented by Apple.
	FullReport Flags = 1 << 5

	// CheckGatekeeperArchitectures is not documented by Apple. It
	// implies CheckAllArchitectures.
	CheckGatekeeperArchitectures = 1<<6 | CheckAllArchitectures

	// RestrictSymlinks is not documented by Apple.
	RestrictSymlinks Flags = 1 << 7

	// RestrictToAppLike is not documented by Apple.
	RestrictToAppLike Flags = 1 << 8

	// RestrictSidebandData is not documented by Apple.
	RestrictSidebandData Flags = 1 << 9

	// UseSoftwareSigningCert is not documented by Apple.
	UseSoftwareSigningCert Flags = 1 << 10

	// ValidatePEH is not documented by Apple.
	ValidatePEH Flags = 1 << 11

	// SingleThreaded is not documented by Apple.
	SingleThreaded Flags = 1 << 12

	// QuickCheck is not documented by Apple.
	QuickCheck Flags = 1 << 26

	// CheckTrustedAnchors is not documented by Apple.
	CheckTrustedAnchors Flags = 1 << 27

	// ReportProgress is not documented by Apple.
	ReportProgress Flags = 1 << 28

	// NoNetworkAccess forbids network access during the check, including
	// online revocation lookups.
	NoNetworkAccess Flags = 1 << 29

	// EnforceRevocationChecks requires revocation checking and makes
	// revocation failures fatal.
	EnforceRevocationChecks Flags = 1 << 30

	// ConsiderExpiration makes expired certificates fail validation.
	ConsiderExpiration Flags = 1 << 31
)

// Has reports whether every bit of g is set in f.
func (f Flags) Has(g Flags) bool {
	return f&g == g
}
