package domain

// OrderStatus описывает стадию исполнения заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ принят и ждёт начала готовки.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPreparing: кухня готовит заказ, заметки клиента заблокированы.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReadyForPickup: заказ готов к выдаче (финал для самовывоза).
	OrderStatusReadyForPickup OrderStatus = "ready_for_pickup"
	// OrderStatusDelivering: курьер везёт заказ.
	OrderStatusDelivering OrderStatus = "delivering"
	// OrderStatusDelivered: заказ доставлен (финал для доставки).
	OrderStatusDelivered OrderStatus = "delivered"
)

// StatusStage группирует статусы для отображения.
type StatusStage string

const (
	StageUnknown     StatusStage = "unknown"
	StagePreparation StatusStage = "preparation"
	StagePickup      StatusStage = "pickup"
	StageDelivery    StatusStage = "delivery"
)

const (
	unknownStatusLabel = "Statut inconnu"
	unknownStatusColor = "bg-gray-100 text-gray-800"
)

var (
	preparationSequence = []OrderStatus{OrderStatusPending, OrderStatusPreparing}
	pickupSequence      = append(append([]OrderStatus{}, preparationSequence...), OrderStatusReadyForPickup)
	deliverySequence    = append(append([]OrderStatus{}, preparationSequence...), OrderStatusDelivering, OrderStatusDelivered)
)

type statusPresentation struct {
	stage StatusStage
	label string
	short string
	color string
}

var presentations = map[OrderStatus]statusPresentation{
	OrderStatusPending:        {StagePreparation, "En attente", "En attente", "bg-yellow-100 text-yellow-800"},
	OrderStatusPreparing:      {StagePreparation, "En préparation", "En préparation", "bg-orange-100 text-orange-800"},
	OrderStatusReadyForPickup: {StagePickup, "Prête à être récupérée", "Prête", "bg-green-100 text-green-800"},
	OrderStatusDelivering:     {StageDelivery, "En livraison", "En livraison", "bg-blue-100 text-blue-800"},
	OrderStatusDelivered:      {StageDelivery, "Livrée", "Livrée", "bg-gray-100 text-gray-800"},
}

// AllStatuses возвращает все пять статусов в порядке жизненного цикла.
func AllStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusPreparing,
		OrderStatusReadyForPickup,
		OrderStatusDelivering,
		OrderStatusDelivered,
	}
}

// StatusSequence возвращает цепочку статусов для режима исполнения.
// Возвращается копия, вызывающий код может её менять.
func StatusSequence(isDelivery bool) []OrderStatus {
	seq := pickupSequence
	if isDelivery {
		seq = deliverySequence
	}
	return append([]OrderStatus(nil), seq...)
}

// Known сообщает, входит ли значение в закрытый набор статусов.
func (s OrderStatus) Known() bool {
	_, ok := presentations[s]
	return ok
}

func (s OrderStatus) String() string {
	return string(s)
}

// NextStatus возвращает статус, следующий за current в цепочке режима.
// Неизвестный или финальный статус возвращается без изменений.
func NextStatus(current OrderStatus, isDelivery bool) OrderStatus {
	seq := pickupSequence
	if isDelivery {
		seq = deliverySequence
	}
	for i, s := range seq {
		if s != current {
			continue
		}
		if i == len(seq)-1 {
			return current
		}
		return seq[i+1]
	}
	return current
}

// IsRelevant сообщает, допустим ли статус для режима исполнения.
func IsRelevant(status OrderStatus, isDelivery bool) bool {
	seq := pickupSequence
	if isDelivery {
		seq = deliverySequence
	}
	for _, s := range seq {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, является ли статус финальным для режима.
func IsTerminal(status OrderStatus, isDelivery bool) bool {
	if isDelivery {
		return status == OrderStatusDelivered
	}
	return status == OrderStatusReadyForPickup
}

// NotesEditable: заметки можно менять в любом статусе, кроме готовки.
func NotesEditable(status OrderStatus) bool {
	return status != OrderStatusPreparing
}

// StatusLabel возвращает полную подпись статуса.
func StatusLabel(status OrderStatus) string {
	if p, ok := presentations[status]; ok {
		return p.label
	}
	return unknownStatusLabel
}

// StatusShortLabel возвращает короткую подпись для таблиц.
func StatusShortLabel(status OrderStatus) string {
	if p, ok := presentations[status]; ok {
		return p.short
	}
	return unknownStatusLabel
}

// StatusColor возвращает css-классы бейджа статуса.
func StatusColor(status OrderStatus) string {
	if p, ok := presentations[status]; ok {
		return p.color
	}
	return unknownStatusColor
}

// StatusStageOf возвращает группу отображения статуса.
func StatusStageOf(status OrderStatus) StatusStage {
	if p, ok := presentations[status]; ok {
		return p.stage
	}
	return StageUnknown
}

// ParseOrderStatus проверяет входное значение статуса.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	if !s.Known() {
		return "", ErrInvalidStatus
	}
	return s, nil
}
