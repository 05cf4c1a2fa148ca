package tcpci

// Code is a stable, comparable, allocation-free error identifier returned by
// the TCPCI operations. It mirrors the error kinds the driver this package
// models propagates to the PD stack as opaque non-zero codes: the PD stack
// inspects the Code and decides whether to re-init, suspend or ignore.
type Code string

// Error implements the error interface.
func (c Code) Error() string { return string(c) }

// Error kinds. ACCESS_DENIED never originates in this package; it is kept
// here because the register bus or a chip-specific driver layered on top may
// return it for a protected register range, and callers should be able to
// compare against it without importing another package.
const (
	CodeParam        Code = "param"
	CodeInval        Code = "inval"
	CodeTimeout      Code = "timeout"
	CodeUnknown      Code = "unknown"
	CodeOverflow     Code = "overflow"
	CodeBusy         Code = "busy"
	CodeAccessDenied Code = "access_denied"
)

// Of extracts a Code from err, defaulting to CodeUnknown for any error that
// did not originate as a Code. This is how a raw bus error "bubbles up ...
// as an opaque non-zero code" per the propagation policy: anything this
// package did not itself classify becomes CodeUnknown rather than being
// guessed at.
func Of(err error) Code {
	if err == nil {
		return ""
	}
	if c, ok := err.(Code); ok {
		return c
	}
	return CodeUnknown
}
