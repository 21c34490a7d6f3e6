package bank

// Code identifies a kind of bank-level failure, matching §7's Bank error
// taxonomy. Same typed-code convention as internal/mintette (modeled on the
// pack's btcjson/er error-code shape).
type Code int

const (
	CodeInternal Code = iota
	CodeInconsistentResponse
	CodeUnknownMintette
	CodeUnknownExplorer
	CodeBadPeriodResult
	CodeWrongPeriod
)

func (c Code) String() string {
	switch c {
	case CodeInconsistentResponse:
		return "InconsistentResponse"
	case CodeUnknownMintette:
		return "UnknownMintette"
	case CodeUnknownExplorer:
		return "UnknownExplorer"
	case CodeBadPeriodResult:
		return "BadPeriodResult"
	case CodeWrongPeriod:
		return "WrongPeriod"
	default:
		return "Internal"
	}
}

// Error is the typed error every bank operation returns on failure.
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
// one of ours.
func CodeOf(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeInternal
}
