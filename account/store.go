package account

import (
	"context"

	"github.com/xraph/subvault/id"
)

// Store persists users and the two-way username registry.
type Store interface {
	GetUser(ctx context.Context, userID id.AccountID) (*User, error)
	AccountByUsername(ctx context.Context, username string) (id.AccountID, error)
	UsernameByAccount(ctx context.Context, accountID id.AccountID) (string, error)
}

// Writer mutates users and usernames inside a transaction.
type Writer interface {
	PutUser(ctx context.Context, u *User) error
	PutUsername(ctx context.Context, username string, accountID id.AccountID) error
}
