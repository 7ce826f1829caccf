package model

// PayoutRecord is a payout instruction queued for the custody process.
type PayoutRecord struct {
	Token       string `json:"token"`
	Reserve     string `json:"reserve"`
	Beneficiary string `json:"beneficiary"`
	Amount      string `json:"amount"`
	RequestedAt string `json:"requested_at"`
}
