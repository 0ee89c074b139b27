package dto

// PaymentConfirmation is the single authoritative event from the payment provider.
type PaymentConfirmation struct {
	ProjectID string `json:"projectId" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reference string `json:"reference" validate:"required,max=200"`
}

// BlacklistRequest bars a doer from the supervisor's projects.
type BlacklistRequest struct {
	DoerID string `json:"doerId" validate:"required"`
	Reason string `json:"reason" validate:"required,max=1000"`
}
