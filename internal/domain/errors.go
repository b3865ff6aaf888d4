package domain

import "errors"

var (
	// ErrInvalidOrder объединяет все ошибки валидации формы заказа.
	ErrInvalidOrder = errors.New("invalid order")
	// Ошибка пустого имени клиента.
	ErrNameRequired = errors.New("name is required")
	// Ошибка пустого телефона.
	ErrPhoneRequired = errors.New("phone is required")
	// Ошибка некорректного email.
	ErrEmailInvalid = errors.New("email is invalid")
	// Ошибка количества вне диапазона 1..MaxQuantity.
	ErrQuantityInvalid = errors.New("quantity must be between 1 and 100")
	// Ошибка неизвестного режима исполнения.
	ErrDeliveryModeInvalid = errors.New("delivery mode must be delivery or pickup")
	// Ошибка отсутствующего адреса у доставки.
	ErrAddressRequired = errors.New("address is required for delivery")
	// Ошибка слишком длинных заметок.
	ErrNotesTooLong = errors.New("notes are too long")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order id is required")
	// ErrOrderNumberInvalid: номер не соответствует формату ORDER-NNN.
	ErrOrderNumberInvalid = errors.New("order number is invalid")
	// ErrInvalidStatus: статус вне закрытого набора или не подходит режиму.
	ErrInvalidStatus = errors.New("invalid order status")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists: заказ с таким id или номером уже сохранён.
	ErrOrderExists = errors.New("order already exists")
	// ErrStatusConflict: статус в хранилище отличается от ожидаемого (CAS не прошёл).
	ErrStatusConflict = errors.New("order status conflict")
	// ErrNotesLocked: заметки нельзя менять во время готовки.
	ErrNotesLocked = errors.New("notes cannot be edited while the order is being prepared")

	// ErrInvalidCredentials: неверный пароль администратора.
	ErrInvalidCredentials = errors.New("invalid admin credentials")
	// ErrSessionNotFound: сессия не найдена или уже удалена.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired: срок жизни сессии истёк.
	ErrSessionExpired = errors.New("session expired")

	// ErrOutboxPublish: уведомление не удалось передать дальше.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageNotFound: сообщения нет в очереди или оно уже закрыто.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
)

// IsStatusConflict проверяет, является ли ошибка конфликтом статуса.
func IsStatusConflict(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}

// IsValidation сообщает, что ошибка вызвана некорректными входными данными.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrNotesTooLong) ||
		errors.Is(err, ErrOrderNumberInvalid)
}
