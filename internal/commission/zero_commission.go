package commission

// ZeroCommissionFee implements CommissionFee with zero commission.
type ZeroCommissionFee struct{}

// NewZeroCommissionFee creates a new zero commission fee.
func NewZeroCommissionFee() CommissionFee {
	return &ZeroCommissionFee{}
}

// Calculate returns 0 for any trade value.
func (c *ZeroCommissionFee) Calculate(value float64) float64 {
	return 0.0
}
