package shared

import "fmt"

// Account identifies which marketplace seller account a record or a
// call belongs to. MAIN is the seller-fulfilled account, FBE the
// fulfilled-by-marketplace one. They share a catalog schema but never
// a record: (account, sku) is the local identity everywhere.
type Account string

const (
	AccountMain Account = "main"
	AccountFBE  Account = "fbe"
)

// ParseAccount validates a user-supplied account name.
func ParseAccount(s string) (Account, error) {
	switch Account(s) {
	case AccountMain, AccountFBE:
		return Account(s), nil
	}
	return "", NewValidationError("account", fmt.Sprintf("unknown account %q", s))
}

// AllAccounts returns the accounts in deterministic order.
func AllAccounts() []Account {
	return []Account{AccountMain, AccountFBE}
}

func (a Account) String() string {
	return string(a)
}
