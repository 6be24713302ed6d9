package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

const (
	AggregateTypeOrder    = "order"
	EventTypeOrderCreated = "order.created"
)

// OrderCreatedEvent — полезная нагрузка события order.created в outbox.
type OrderCreatedEvent struct {
	OrderID    int64                   `json:"order_id"`
	CustomerID *int64                  `json:"customer_id,omitempty"`
	Total      string                  `json:"total"`
	CreatedAt  time.Time               `json:"created_at"`
	Lines      []OrderCreatedEventLine `json:"lines"`
}

type OrderCreatedEventLine struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// NewOrderCreatedMessage собирает outbox-сообщение для созданного заказа.
func NewOrderCreatedMessage(order Order) (OutboxMessage, error) {
	event := OrderCreatedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Total:      order.Total.StringFixed(2),
		CreatedAt:  order.CreatedAt.UTC(),
		Lines:      make([]OrderCreatedEventLine, 0, len(order.Lines)),
	}
	for _, line := range order.Lines {
		event.Lines = append(event.Lines, OrderCreatedEventLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
		})
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, err
	}

	return OutboxMessage{
		AggregateType: AggregateTypeOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     EventTypeOrderCreated,
		Payload:       payload,
	}, nil
}
