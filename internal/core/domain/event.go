package domain

import (
	"encoding/json"
)

// EntityType names the kind of record a change event refers to.
type EntityType string

const (
	EntityBlock     EntityType = "block"
	EntityTx        EntityType = "tx"
	EntityPendingTx EntityType = "pendingTx"
	EntityUncle     EntityType = "uncle"
	EntityAccount   EntityType = "account"
)

// Entities lists every entity type the pipeline watches, in start order.
var Entities = []EntityType{EntityBlock, EntityTx, EntityPendingTx, EntityUncle, EntityAccount}

var entityRooms = map[EntityType]string{
	EntityBlock:     "blocks",
	EntityTx:        "txs",
	EntityPendingTx: "pendingTxs",
	EntityUncle:     "uncles",
	EntityAccount:   "accounts",
}

// Room returns the global broadcast room of the entity type.
func (t EntityType) Room() string { return entityRooms[t] }

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	_, ok := entityRooms[t]
	return ok
}

// Operation is the normalized mutation kind of a change event.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Event is a normalized change notification. Payload is nil only for deletes.
type Event struct {
	Entity  EntityType      `json:"entity"`
	Op      Operation       `json:"op"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
	Seq     int64           `json:"seq"`
}

// Name returns the event name used on the wire, e.g. "block.insert".
func (e *Event) Name() string { return string(e.Entity) + "." + string(e.Op) }
