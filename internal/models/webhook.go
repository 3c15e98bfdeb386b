package models

// Имена событий платёжного провайдера, влияющие на entitlement.
const (
	EventSubscriptionCreated        = "subscription_created"
	EventSubscriptionUpdated        = "subscription_updated"
	EventSubscriptionPaymentSuccess = "subscription_payment_success"
	EventSubscriptionCancelled      = "subscription_cancelled"
	EventSubscriptionExpired        = "subscription_expired"
)

// SubscriptionStatusActive статус активной подписки в событии провайдера.
const SubscriptionStatusActive = "active"

// WebhookEvent конверт события платёжного провайдера.
// Событие не сохраняется: это одноразовый триггер перехода entitlement.
type WebhookEvent struct {
	Meta struct {
		EventName  string `json:"event_name"`
		CustomData struct {
			UserID string `json:"userId"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		Attributes struct {
			Status string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}
