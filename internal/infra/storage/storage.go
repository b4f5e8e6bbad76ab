package storage

import (
	"github.com/vietddude/explorer/internal/core/domain"
)

// Collection names shared by the durable stores and their change feeds.
const (
	CollectionBlocks   = "blocks"
	CollectionTxs      = "transactions"
	CollectionPending  = "pending_transactions"
	CollectionUncles   = "uncles"
	CollectionAccounts = "accounts"
)

// DefaultCollections maps each entity type to the collection it lives in.
var DefaultCollections = map[domain.EntityType]string{
	domain.EntityBlock:     CollectionBlocks,
	domain.EntityTx:        CollectionTxs,
	domain.EntityPendingTx: CollectionPending,
	domain.EntityUncle:     CollectionUncles,
	domain.EntityAccount:   CollectionAccounts,
}
