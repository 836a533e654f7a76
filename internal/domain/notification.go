package domain

import "time"

// NotificationPayload is the transient message handed to the dispatcher.
type NotificationPayload struct {
	Title    string
	Body     string
	Data     map[string]string
	ImageURL string
}

// DeliveryStatus is the status of a delivery record.
type DeliveryStatus string

const (
	// DeliveryStatusSent means the gateway call for the recipient's batch returned.
	// The token itself may still have been rejected; see DeliveryRecord.GatewayError.
	DeliveryStatusSent DeliveryStatus = "SENT"
	// DeliveryStatusFailed means the whole gateway call failed or timed out.
	DeliveryStatusFailed DeliveryStatus = "FAILED"
	// DeliveryStatusDelivered means the recipient opened the notification.
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
)

// Recipient is a user addressed through their device messaging token.
type Recipient struct {
	UserID string
	Token  string
}

// DeliveryRecord is the audit row written for every targeted recipient of a
// dispatch call.
type DeliveryRecord struct {
	ID     string
	UserID string
	Title  string
	Body   string
	Data   map[string]string
	Status DeliveryStatus

	// GatewayError is set when the gateway rejected this recipient's token
	// inside an otherwise successful batch call. Status stays SENT.
	GatewayError *string

	SentAt    *time.Time
	ClickedAt *time.Time
	CreatedAt time.Time
}

// NewDeliveryRecord builds the record for one targeted recipient.
func NewDeliveryRecord(userID string, p NotificationPayload, status DeliveryStatus, at time.Time) DeliveryRecord {
	rec := DeliveryRecord{
		ID:        NewID(),
		UserID:    userID,
		Title:     p.Title,
		Body:      p.Body,
		Data:      p.Data,
		Status:    status,
		CreatedAt: at,
	}
	if rec.Data == nil {
		rec.Data = map[string]string{}
	}
	if status == DeliveryStatusSent {
		sentAt := at
		rec.SentAt = &sentAt
	}
	return rec
}
