package amqp

import (
	"encoding/json"
	"time"

	"insaat-backend/internal/finance"

	"github.com/google/uuid"
)

// BudgetAlertMessage is the wire form of a raised or refreshed budget alert.
type BudgetAlertMessage struct {
	MessageID           string    `json:"message_id"`
	AlertID             uint      `json:"alert_id"`
	ProjectID           uint      `json:"project_id"`
	ProjectCode         string    `json:"project_code"`
	AlertType           string    `json:"alert_type"`
	ThresholdPercentage string    `json:"threshold_percentage"`
	CurrentPercentage   string    `json:"current_percentage"`
	SpentAmount         string    `json:"spent_amount"`
	TotalBudget         string    `json:"total_budget"`
	Message             string    `json:"message"`
	Created             bool      `json:"created"`
	TriggeredAt         time.Time `json:"triggered_at"`
	Timestamp           time.Time `json:"timestamp"`
}

// NewBudgetAlertMessage converts an alert event. Amounts are rendered with two
// decimals so consumers never see float rounding.
func NewBudgetAlertMessage(ev finance.AlertEvent) *BudgetAlertMessage {
	return &BudgetAlertMessage{
		MessageID:           uuid.NewString(),
		AlertID:             ev.AlertID,
		ProjectID:           ev.ProjectID,
		ProjectCode:         ev.ProjectCode,
		AlertType:           string(ev.Type),
		ThresholdPercentage: ev.ThresholdPercentage.StringFixed(2),
		CurrentPercentage:   ev.CurrentPercentage.StringFixed(2),
		SpentAmount:         ev.SpentAmount.StringFixed(2),
		TotalBudget:         ev.TotalBudget.StringFixed(2),
		Message:             ev.Message,
		Created:             ev.Created,
		TriggeredAt:         ev.TriggeredAt,
		Timestamp:           time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BudgetAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BudgetAlertMessageFromJSON decodes a message body.
func BudgetAlertMessageFromJSON(data []byte) (*BudgetAlertMessage, error) {
	var msg BudgetAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
