package repository

import "github.com/jask/jaskledger/internal/database"

// Repos bundles every repository over one handle. Bind it to a *sql.Tx to run
// several repository calls atomically.
type Repos struct {
	Accounts     *AccountRepo
	Transactions *TransactionRepo
	Balances     *BalanceRepo
	Matches      *MatchRepo
	Batches      *BatchRepo
}

func New(db database.DBTX) Repos {
	return Repos{
		Accounts:     NewAccountRepo(db),
		Transactions: NewTransactionRepo(db),
		Balances:     NewBalanceRepo(db),
		Matches:      NewMatchRepo(db),
		Batches:      NewBatchRepo(db),
	}
}
