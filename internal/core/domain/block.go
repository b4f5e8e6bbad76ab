package domain

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block is the block document as stored by the upstream processors.
// Receipts and Summaries are only present on documents that have not been
// aggregated yet; Stats is attached once aggregation ran.
type Block struct {
	Number       uint64              `json:"number"`
	Hash         string              `json:"hash"`
	ParentHash   string              `json:"parentHash"`
	Miner        string              `json:"miner"`
	Timestamp    uint64              `json:"timestamp"` // unix seconds
	GasUsed      uint64              `json:"gasUsed"`
	GasLimit     uint64              `json:"gasLimit"`
	StateRoot    string              `json:"stateRoot"`
	Difficulty   *hexutil.Big        `json:"difficulty,omitempty"`
	TxHashes     []string            `json:"transactionHashes"`
	Transactions []*Transaction      `json:"transactions,omitempty"`
	Uncles       []string            `json:"uncleHashes"`
	Receipts     []*Receipt          `json:"receipts,omitempty"`
	Summaries    []*ExecutionSummary `json:"summaries,omitempty"`
	Stats        *BlockStats         `json:"stats,omitempty"`

	// Seq is the change sequence the block was admitted from. Zero when the
	// block did not come off the change feed.
	Seq int64 `json:"-"`
}

// Key returns the identity key of the block.
func (b *Block) Key() string { return b.Hash }

// Receipt is the execution receipt of a single transaction.
type Receipt struct {
	TxHash   string       `json:"transactionHash"`
	Status   uint64       `json:"status"` // 1 = success
	GasUsed  *hexutil.Big `json:"gasUsed"`
	GasPrice *hexutil.Big `json:"gasPrice"`
}

// Succeeded reports whether the receipt status flag marks success.
func (r *Receipt) Succeeded() bool { return r.Status == 1 }

// ExecutionSummary is the trace summary for one transaction of a block.
type ExecutionSummary struct {
	TxHash               string `json:"transactionHash"`
	InternalTransactions int    `json:"internalTransactions"`
}

// BlockStats holds metrics derived from a block's receipts and summaries.
type BlockStats struct {
	BlockTimeMs      int64        `json:"blockTimeMs"`
	SuccessfulTxs    int          `json:"successfulTxs"`
	FailedTxs        int          `json:"failedTxs"`
	TotalTxs         int          `json:"totalTxs"`
	TotalInternalTxs int          `json:"totalInternalTxs"`
	TotalGasPrice    *hexutil.Big `json:"totalGasPrice"`
	AvgGasPrice      *hexutil.Big `json:"avgGasPrice"`
	TotalTxFees      *hexutil.Big `json:"totalTxFees"`
	AvgTxFees        *hexutil.Big `json:"avgTxFees"`
}

// Uncle is an ommer header referenced by a canonical block.
type Uncle struct {
	Hash        string `json:"hash"`
	Number      uint64 `json:"number"`
	ParentHash  string `json:"parentHash"`
	Miner       string `json:"miner"`
	Timestamp   uint64 `json:"timestamp"`
	BlockNumber uint64 `json:"blockNumber"` // canonical block including it
	Position    int    `json:"position"`
}

// Key returns the identity key of the uncle.
func (u *Uncle) Key() string { return u.Hash }
