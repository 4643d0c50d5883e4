// Package mirror defines the interface to the locally mirrored blockchain dataset the gateway prefers over live
// network calls. The mirror is maintained by an external sync process; this side only reads it and checks whether it
// declares itself ready. A mirror that is still syncing answers ErrNotReady, a synced mirror that lacks the requested
// object answers ErrNotFound, and the fallback chain treats both the same way: go ask a live node.
package mirror

import (
	"errors"
)

// Store defines the explorer-shaped reads the gateway performs against the mirrored dataset.
type Store interface {
	// Ready reports whether the external sync process has marked the dataset usable.
	Ready() bool

	BlockCount() (uint64, error)
	Blocks(height uint64) ([]map[string]interface{}, error) // list walking down from height
	Block(hash string) (map[string]interface{}, error)
	BlockByHeight(height uint64) (map[string]interface{}, error)
	TopHeader() (map[string]interface{}, error)
	HeaderByHash(hash string) (map[string]interface{}, error)
	HeaderByHeight(height uint64) (map[string]interface{}, error)
	Transaction(hash string) (map[string]interface{}, error)
	TransactionsByPaymentID(id string) ([]map[string]interface{}, error)
	TransactionPool() ([]map[string]interface{}, error)
	CurrencyID() (string, error)
}

// Errors returned
var (
	ErrNotReady = errors.New("mirror dataset is not ready")
	ErrNotFound = errors.New("object was not found in mirror")
)

// BlockListLength is how many blocks a Blocks call returns at most, matching the explorer page size.
const BlockListLength = 30
