package amqp

import (
	"encoding/json"
	"time"

	"ricorrenti/internal/core"
)

// OccurrenceCreatedMessage announces a newly created occurrence. It carries
// only identifiers; consumers fetch the full transaction from the database.
type OccurrenceCreatedMessage struct {
	TransactionID int64     `json:"transaction_id"`
	RecurrenceID  int64     `json:"recurrence_id"`
	OccurrenceDay string    `json:"occurrence_day"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewOccurrenceCreatedMessage builds the message for tx.
func NewOccurrenceCreatedMessage(tx core.Transaction) *OccurrenceCreatedMessage {
	msg := &OccurrenceCreatedMessage{
		TransactionID: tx.ID,
		OccurrenceDay: tx.OccurrenceDay().String(),
		Timestamp:     time.Now().UTC(),
	}
	if tx.RecurrenceID != nil {
		msg.RecurrenceID = *tx.RecurrenceID
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *OccurrenceCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func OccurrenceCreatedMessageFromJSON(data []byte) (*OccurrenceCreatedMessage, error) {
	var msg OccurrenceCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
