package commission

// DiscountBrokerCommissionFee models flat-fee Indian discount brokerage:
// Rs. 20 per executed trade or 0.05% of trade value, whichever is lower.
type DiscountBrokerCommissionFee struct {
	flatFee       float64
	percentageFee float64
}

func NewDiscountBrokerCommissionFee() CommissionFee {
	return &DiscountBrokerCommissionFee{
		flatFee:       20.0,
		percentageFee: 0.0005,
	}
}

func (c *DiscountBrokerCommissionFee) Calculate(value float64) float64 {
	fee := value * c.percentageFee
	if fee > c.flatFee {
		return c.flatFee
	}

	return fee
}
