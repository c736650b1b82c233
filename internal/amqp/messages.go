package amqp

import (
	"encoding/json"
	"time"
)

// TxSyncMessage tells the worker one ledger entry needs mirroring. It
// carries only the ID and whether this is a removal; the worker fetches the
// full entry from the local store, so a stale queue can never overwrite
// fresher data.
type TxSyncMessage struct {
	ID        string    `json:"id"`
	Deleted   bool      `json:"deleted,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTxSyncMessage creates a sync message for a created or updated entry.
func NewTxSyncMessage(id string) *TxSyncMessage {
	return &TxSyncMessage{ID: id, Timestamp: time.Now()}
}

// NewTxDeleteMessage creates a sync message for a removed entry.
func NewTxDeleteMessage(id string) *TxSyncMessage {
	return &TxSyncMessage{ID: id, Deleted: true, Timestamp: time.Now()}
}

// ToJSON converts the message to JSON bytes
func (m *TxSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TxSyncMessageFromJSON creates a message from JSON bytes
func TxSyncMessageFromJSON(data []byte) (*TxSyncMessage, error) {
	var msg TxSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
