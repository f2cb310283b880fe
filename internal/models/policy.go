package models

// Policy controls which party may perform a given stream operation.
type Policy string

const (
	PolicySenderOnly    Policy = "sender"
	PolicyRecipientOnly Policy = "recipient"
	PolicyBoth          Policy = "both"
	PolicyNeither       Policy = "neither"
)

// Allows reports whether caller may act under this policy for a stream
// owned by sender and recipient. It is a pure predicate with no side effects.
func (p Policy) Allows(caller, sender, recipient string) bool {
	switch p {
	case PolicySenderOnly:
		return caller == sender
	case PolicyRecipientOnly:
		return caller == recipient
	case PolicyBoth:
		return caller == sender || caller == recipient
	default:
		return false
	}
}

// Valid reports whether p is one of the four defined policies.
func (p Policy) Valid() bool {
	switch p {
	case PolicySenderOnly, PolicyRecipientOnly, PolicyBoth, PolicyNeither:
		return true
	}
	return false
}

// ValidNonNeither reports whether p is a defined policy other than "neither".
// Withdraw and edit policies must always name at least one party.
func (p Policy) ValidNonNeither() bool {
	return p.Valid() && p != PolicyNeither
}
