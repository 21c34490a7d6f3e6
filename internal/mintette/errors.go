package mintette

// Code identifies a kind of mintette-level failure, matching §7's taxonomy
// one-for-one. Modeled on the pack's error-code convention (pkt-cash's
// btcjson.ErrorCode / er.ErrorType): a small comparable value plus a
// human-readable detail, rather than ad-hoc sentinel errors or panics.
type Code int

const (
	CodeInternal Code = iota
	CodeInvalidTxInput
	CodeNotUnspent
	CodeDoubleSpend
	CodeInvalidSum
	CodeUnauthorizedSpend
	CodeBadSignature
	CodeNotAllOwnersConfirmed
	CodeCommitWithoutCheck
	CodeWrongPeriod
)

func (c Code) String() string {
	switch c {
	case CodeInvalidTxInput:
		return "InvalidTxInput"
	case CodeNotUnspent:
		return "NotUnspent"
	case CodeDoubleSpend:
		return "DoubleSpend"
	case CodeInvalidSum:
		return "InvalidSum"
	case CodeUnauthorizedSpend:
		return "UnauthorizedSpend"
	case CodeBadSignature:
		return "BadSignature"
	case CodeNotAllOwnersConfirmed:
		return "NotAllOwnersConfirmed"
	case CodeCommitWithoutCheck:
		return "CommitWithoutCheck"
	case CodeWrongPeriod:
		return "WrongPeriod"
	default:
		return "Internal"
	}
}

// Error is the typed error every mintette operation returns on failure. The
// RPC boundary (internal/api) converts it to the textual error channel
// named in §4.G/§7 without losing the code.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Msg
}

func newErr(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// CodeOf extracts the Code from err, or CodeInternal if err is nil or not
// one of ours (e.g. a store/network failure surfaced unchanged per §7).
func CodeOf(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeInternal
}
