package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseRecordedMessage tells the sync worker that an expense was written
// locally. It carries only the ID and version; the worker loads the full
// record from the database before exporting it.
type ExpenseRecordedMessage struct {
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseRecordedMessage(id, version int64) *ExpenseRecordedMessage {
	return &ExpenseRecordedMessage{
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseRecordedMessageFromJSON(data []byte) (*ExpenseRecordedMessage, error) {
	var msg ExpenseRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
