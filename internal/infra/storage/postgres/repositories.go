package postgres

import (
	"github.com/vietddude/explorer/internal/infra/storage"
)

// Repositories returns all repositories backed by db.
func (db *DB) Repositories() storage.Repositories {
	return storage.Repositories{
		Blocks:   NewBlockRepo(db),
		Txs:      NewTxRepo(db),
		Pending:  NewPendingRepo(db),
		Uncles:   NewUncleRepo(db),
		Accounts: NewAccountRepo(db),
	}
}
