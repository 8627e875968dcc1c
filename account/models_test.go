package account_test

import (
	"strings"
	"testing"

	"github.com/xraph/subvault/account"
	"github.com/xraph/subvault/id"
)

func TestValidUsername(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"Simple", "alice", true},
		{"Unicode", "žofia", true},
		{"Punctuation", "bob.the-builder_42", true},
		{"Empty", "", false},
		{"Space", "al ice", false},
		{"Tab", "al\tice", false},
		{"TooLong", strings.Repeat("a", account.MaxUsernameLength+1), false},
		{"MaxLength", strings.Repeat("a", account.MaxUsernameLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := account.ValidUsername(tt.in); got != tt.want {
				t.Errorf("ValidUsername(%q): got %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestUserClone(t *testing.T) {
	p := id.NewAccountID()
	u := &account.User{ID: id.NewAccountID(), Providers: []id.AccountID{p}}
	cp := u.Clone()
	cp.Providers = append(cp.Providers, id.NewAccountID())
	cp.Providers[0] = id.NewAccountID()

	if len(u.Providers) != 1 || !u.Providers[0].Equal(p) {
		t.Error("clone shares provider slice with original")
	}
	if !u.HasProvider(p) {
		t.Error("expected HasProvider to find original provider")
	}
}
