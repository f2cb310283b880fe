package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyAllows(t *testing.T) {
	const (
		sender    = "alice"
		recipient = "bob"
		stranger  = "mallory"
	)

	tests := []struct {
		policy Policy
		caller string
		want   bool
	}{
		{PolicySenderOnly, sender, true},
		{PolicySenderOnly, recipient, false},
		{PolicySenderOnly, stranger, false},
		{PolicyRecipientOnly, recipient, true},
		{PolicyRecipientOnly, sender, false},
		{PolicyRecipientOnly, stranger, false},
		{PolicyBoth, sender, true},
		{PolicyBoth, recipient, true},
		{PolicyBoth, stranger, false},
		{PolicyNeither, sender, false},
		{PolicyNeither, recipient, false},
		{PolicyNeither, stranger, false},
		{Policy("bogus"), sender, false},
	}

	for _, tt := range tests {
		got := tt.policy.Allows(tt.caller, sender, recipient)
		assert.Equal(t, tt.want, got, "policy %q caller %q", tt.policy, tt.caller)
	}
}

func TestPolicyValid(t *testing.T) {
	for _, p := range []Policy{PolicySenderOnly, PolicyRecipientOnly, PolicyBoth, PolicyNeither} {
		assert.True(t, p.Valid(), "policy %q", p)
	}
	assert.False(t, Policy("").Valid())
	assert.False(t, Policy("everyone").Valid())
}

func TestPolicyValidNonNeither(t *testing.T) {
	assert.True(t, PolicySenderOnly.ValidNonNeither())
	assert.True(t, PolicyRecipientOnly.ValidNonNeither())
	assert.True(t, PolicyBoth.ValidNonNeither())
	assert.False(t, PolicyNeither.ValidNonNeither())
	assert.False(t, Policy("everyone").ValidNonNeither())
}
