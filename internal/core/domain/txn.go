package domain

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is a mined or pending transaction document.
// Pending transactions carry no block fields.
type Transaction struct {
	Hash        string        `json:"hash"`
	BlockHash   string        `json:"blockHash,omitempty"`
	BlockNumber uint64        `json:"blockNumber,omitempty"`
	Index       uint64        `json:"transactionIndex"`
	From        string        `json:"from"`
	To          string        `json:"to,omitempty"`
	Value       *hexutil.Big  `json:"value"`
	Gas         uint64        `json:"gas"`
	GasPrice    *hexutil.Big  `json:"gasPrice"`
	Nonce       uint64        `json:"nonce"`
	Input       hexutil.Bytes `json:"input,omitempty"`
	Timestamp   uint64        `json:"timestamp"`
	Status      *uint64       `json:"status,omitempty"`
}

// Key returns the identity key of the transaction.
func (t *Transaction) Key() string { return t.Hash }

// Pending reports whether the transaction has not been mined yet.
func (t *Transaction) Pending() bool { return t.BlockHash == "" }

// Account is the account state document.
type Account struct {
	Address    string       `json:"address"`
	Balance    *hexutil.Big `json:"balance"`
	Nonce      uint64       `json:"nonce"`
	TxCount    uint64       `json:"txCount"`
	IsContract bool         `json:"isContract"`
}

// Key returns the identity key of the account.
func (a *Account) Key() string { return a.Address }

// Quote is an exchange rate for a token against a fiat currency.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Currency  string  `json:"currency"`
	Price     float64 `json:"price"`
	MarketCap float64 `json:"marketCap,omitempty"`
	Volume24h float64 `json:"volume24h,omitempty"`
	UpdatedAt int64   `json:"updatedAt"`
}
