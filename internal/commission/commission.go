package commission

type CommissionFee interface {
	// Calculate the commission fee for a trade of the given notional value.
	Calculate(value float64) float64
}

type Broker string

const (
	BrokerDiscount Broker = "discount_broker"
	BrokerZero     Broker = "zero_commission"
)

var AllBrokers = []any{
	BrokerDiscount,
	BrokerZero,
}

func GetCommissionFeeHandler(broker Broker) CommissionFee {
	switch broker {
	case BrokerDiscount:
		return NewDiscountBrokerCommissionFee()
	case BrokerZero:
		return NewZeroCommissionFee()
	default:
		return NewZeroCommissionFee()
	}
}
