package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventRecordedMessage announces one recorded event. It carries everything
// the export worker needs, so consumers never read the counter store.
type EventRecordedMessage struct {
	ID           string    `json:"id"`
	Tracker      string    `json:"tracker"`
	Day          string    `json:"day"`
	Category     int       `json:"category"`
	CategoryName string    `json:"category_name"`
	Count        int       `json:"count"`
	DayTotal     int       `json:"day_total"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewEventRecordedMessage stamps a fresh message ID.
func NewEventRecordedMessage(tracker, day string, category int, categoryName string, count, dayTotal int, at time.Time) *EventRecordedMessage {
	return &EventRecordedMessage{
		ID:           uuid.NewString(),
		Tracker:      tracker,
		Day:          day,
		Category:     category,
		CategoryName: categoryName,
		Count:        count,
		DayTotal:     dayTotal,
		Timestamp:    at.UTC(),
	}
}

func (m *EventRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventRecordedMessageFromJSON decodes and sanity-checks a message body.
func EventRecordedMessageFromJSON(data []byte) (*EventRecordedMessage, error) {
	var msg EventRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("message missing id")
	}
	if msg.Tracker == "" || msg.Day == "" {
		return nil, errors.New("message missing tracker or day")
	}
	return &msg, nil
}
