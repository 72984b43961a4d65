package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:  {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

type PaymentMethod string

const (
	PaymentCinetPay       PaymentMethod = "cinetpay"
	PaymentPaystack       PaymentMethod = "paystack"
	PaymentMobileMoney    PaymentMethod = "mobile_money"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCinetPay, PaymentPaystack, PaymentMobileMoney, PaymentCashOnDelivery:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)
