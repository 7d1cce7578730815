package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// TradeSettledData contains data for TradeSettled events
type TradeSettledData struct {
	TradeID     string `json:"trade_id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	TotalAmount string `json:"total_amount"`
	Balance     string `json:"balance"`
	Attempts    int    `json:"attempts"`
}

// EventType returns the event type for TradeSettledData
func (d *TradeSettledData) EventType() EventType {
	return TradeSettled
}

// TradeRejectedData contains data for TradeRejected events
type TradeRejectedData struct {
	TradeID string `json:"trade_id,omitempty"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	Reason  string `json:"reason"`
}

// EventType returns the event type for TradeRejectedData
func (d *TradeRejectedData) EventType() EventType {
	return TradeRejected
}

// AccountOpenedData contains data for AccountOpened events
type AccountOpenedData struct {
	Balance string `json:"balance"`
}

// EventType returns the event type for AccountOpenedData
func (d *AccountOpenedData) EventType() EventType {
	return AccountOpened
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string         `json:"error"`
	Context map[string]any `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
