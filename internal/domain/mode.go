package domain

// DeliveryMode: способ получения заказа, фиксируется при создании.
type DeliveryMode string

const (
	DeliveryModeDelivery DeliveryMode = "delivery"
	DeliveryModePickup   DeliveryMode = "pickup"
)

// Valid проверяет, что режим входит в поддерживаемый набор.
func (m DeliveryMode) Valid() bool {
	return m == DeliveryModeDelivery || m == DeliveryModePickup
}

// IsDelivery сообщает, что заказ доставляется курьером.
func (m DeliveryMode) IsDelivery() bool {
	return m == DeliveryModeDelivery
}

func (m DeliveryMode) Label() string {
	if m.IsDelivery() {
		return "Livraison"
	}
	return "À emporter"
}

// EmailLabel используется в письмах.
func (m DeliveryMode) EmailLabel() string {
	if m.IsDelivery() {
		return "Livraison à domicile"
	}
	return "À emporter"
}

func (m DeliveryMode) Color() string {
	if m.IsDelivery() {
		return "bg-blue-500"
	}
	return "bg-green-500"
}
