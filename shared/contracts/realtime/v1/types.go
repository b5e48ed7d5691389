package v1

import "time"

// ConnectedPayload acknowledges a completed handshake.
type ConnectedPayload struct {
	SessionID string `json:"session_id"`
}

// NewJobPayload announces a freshly posted job to seekers.
type NewJobPayload struct {
	JobID    string `json:"job_id"`
	Company  string `json:"company"`
	Title    string `json:"title"`
	Location string `json:"location"`
}

// NewApplicationPayload announces an incoming application to the posting company.
// CompanyID routes the event: only the matching company surface may act on it.
type NewApplicationPayload struct {
	ApplicationID string `json:"application_id"`
	JobID         string `json:"job_id"`
	JobTitle      string `json:"job_title"`
	ApplicantName string `json:"applicant_name"`
	CompanyID     string `json:"company_id"`
}

// ApplicationStatusUpdatePayload announces a status change on a seeker's application.
type ApplicationStatusUpdatePayload struct {
	ApplicationID string `json:"application_id"`
	JobTitle      string `json:"job_title"`
	Company       string `json:"company"`
	Status        string `json:"status"`
}

// MessagePayload is the shared shape of newMessageArrived and receiveMessage.
// Owner ids identify the two parties of the thread; SenderID is one of them.
type MessagePayload struct {
	MessageID      string    `json:"message_id"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	SenderID       string    `json:"sender_id"`
	OwnerUserID    string    `json:"owner_user_id"`
	OwnerCompanyID string    `json:"owner_company_id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// SendMessagePayload requests delivery of an outgoing chat message.
// CorrelationID is client-assigned and comes back on the echo so the sender
// can collapse its optimistic copy.
type SendMessagePayload struct {
	CorrelationID  string    `json:"correlation_id"`
	SenderID       string    `json:"sender_id"`
	OwnerUserID    string    `json:"owner_user_id"`
	OwnerCompanyID string    `json:"owner_company_id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// JoinChatPayload joins the logical room for a counterpart pair.
type JoinChatPayload struct {
	CounterpartAID string `json:"counterpartAId"`
	CounterpartBID string `json:"counterpartBId"`
}
