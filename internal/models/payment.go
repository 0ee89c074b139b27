package models

import "time"

// PayoutKind identifies a settlement beneficiary.
type PayoutKind string

const (
	PayoutDoer       PayoutKind = "doer"
	PayoutSupervisor PayoutKind = "supervisor"
	PayoutPlatform   PayoutKind = "platform"
)

// SettlementPayout is released once per project and kind on completion.
type SettlementPayout struct {
	ProjectID     string     `db:"project_id" json:"projectId"`
	Kind          PayoutKind `db:"kind" json:"kind"`
	BeneficiaryID *string    `db:"beneficiary_id" json:"beneficiaryId,omitempty"`
	Amount        int64      `db:"amount" json:"amount"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// SettlementOverride is the audit trail for repricing after payment.
type SettlementOverride struct {
	ID                      string    `db:"id" json:"id"`
	ProjectID               string    `db:"project_id" json:"projectId"`
	OldClientQuote          int64     `db:"old_client_quote" json:"oldClientQuote"`
	OldDoerPayout           int64     `db:"old_doer_payout" json:"oldDoerPayout"`
	OldSupervisorCommission int64     `db:"old_supervisor_commission" json:"oldSupervisorCommission"`
	OldPlatformFee          int64     `db:"old_platform_fee" json:"oldPlatformFee"`
	NewClientQuote          int64     `db:"new_client_quote" json:"newClientQuote"`
	NewDoerPayout           int64     `db:"new_doer_payout" json:"newDoerPayout"`
	NewSupervisorCommission int64     `db:"new_supervisor_commission" json:"newSupervisorCommission"`
	NewPlatformFee          int64     `db:"new_platform_fee" json:"newPlatformFee"`
	Reason                  string    `db:"reason" json:"reason"`
	ActorID                 string    `db:"actor_id" json:"actorId"`
	CreatedAt               time.Time `db:"created_at" json:"createdAt"`
}

// PaymentFlag records a payment confirmation whose amount did not match the quote.
type PaymentFlag struct {
	ID               string    `db:"id" json:"id"`
	ProjectID        string    `db:"project_id" json:"projectId"`
	ExpectedAmount   int64     `db:"expected_amount" json:"expectedAmount"`
	ReceivedAmount   int64     `db:"received_amount" json:"receivedAmount"`
	PaymentReference string    `db:"payment_reference" json:"paymentReference"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}
