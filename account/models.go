// Package account defines the buyer profile and username rules.
package account

import (
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/types"
)

// MaxUsernameLength bounds a username in bytes.
const MaxUsernameLength = 64

// User is a buyer. Providers lists every provider the user ever subscribed
// to, in first-subscription order.
type User struct {
	types.Entity
	ID        id.AccountID   `json:"id"`
	Providers []id.AccountID `json:"providers"`
	PassHash  types.Hash     `json:"pass_hash"`
}

// HasProvider reports whether the user has a record group with providerID.
func (u *User) HasProvider(providerID id.AccountID) bool {
	for _, p := range u.Providers {
		if p.Equal(providerID) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	cp := *u
	cp.Providers = append([]id.AccountID(nil), u.Providers...)
	return &cp
}

// ValidUsername reports whether name may be registered: non-empty, bounded,
// and free of whitespace and control characters.
func ValidUsername(name string) bool {
	if name == "" || len(name) > MaxUsernameLength {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}
