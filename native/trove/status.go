package trove

import "fmt"

// Status mirrors the contract's trove status enum.
type Status uint8

const (
	StatusNonExistent Status = iota
	StatusOpen
	StatusClosedByOwner
	StatusClosedByLiquidation
	StatusClosedByRedemption
)

var statusNames = map[Status]string{
	StatusNonExistent:         "nonExistent",
	StatusOpen:                "open",
	StatusClosedByOwner:       "closedByOwner",
	StatusClosedByLiquidation: "closedByLiquidation",
	StatusClosedByRedemption:  "closedByRedemption",
}

// StatusFromWire validates the enum value read from the contract.
func StatusFromWire(raw uint8) (Status, error) {
	status := Status(raw)
	if _, ok := statusNames[status]; !ok {
		return StatusNonExistent, fmt.Errorf("trove: unknown status %d", raw)
	}
	return status, nil
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// IsOpen reports whether the trove is active on-chain.
func (s Status) IsOpen() bool { return s == StatusOpen }

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
