package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

// Message is the wire form of an order event shared by every broker backend.
type Message struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderCode      string         `json:"orderCode"`
	CustomerID     string         `json:"customerId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus"`
	Total          int64          `json:"total"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func newMessage(event services.OrderEvent) Message {
	return Message{
		Type:           event.Type,
		OrderID:        event.OrderID,
		OrderCode:      event.OrderCode,
		CustomerID:     event.CustomerID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		Total:          event.Total,
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	}
}

func encode(marshal func(any) ([]byte, error), event services.OrderEvent) ([]byte, map[string]string, error) {
	data, err := marshal(newMessage(event))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal order event: %w", err)
	}
	attrs := make(map[string]string, 4)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderCode", event.OrderCode)
	setAttr(attrs, "status", event.CurrentStatus)
	return data, attrs, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
