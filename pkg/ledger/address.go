package ledger

// Address identifies an account, player, or contract on the value layer.
// Addresses are opaque strings; the zero value means "no address".
type Address string

// ZeroAddress is the empty address
const ZeroAddress Address = ""

// IsZero reports whether the address is unset
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// String returns the address as a string
func (a Address) String() string {
	return string(a)
}

// SourceTag separates accounting buckets for authorized callers that share
// the single liquidity pool.
type SourceTag uint8

const (
	// SourceDeposit tags value moved by the deposit flow
	SourceDeposit SourceTag = 0
	// SourceGame tags value moved by the game flow
	SourceGame SourceTag = 1
)

func (s SourceTag) String() string {
	switch s {
	case SourceDeposit:
		return "deposit"
	case SourceGame:
		return "game"
	default:
		return "unknown"
	}
}
