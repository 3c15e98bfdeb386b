// Package models содержит доменные структуры сервиса: права доступа
// пользователя (entitlement), данные пользователя провайдера идентификации
// и событие платёжного провайдера.
package models

// Tier уровень доступа пользователя.
type Tier string

// Допустимые уровни доступа.
const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierProPlus Tier = "pro_plus"
)

// Valid сообщает, является ли значение известным уровнем доступа.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierProPlus:
		return true
	}
	return false
}

// ProSource происхождение платного уровня.
type ProSource string

// Допустимые источники платного уровня.
const (
	ProSourcePaid          ProSource = "paid"
	ProSourcePromoLifetime ProSource = "promo_lifetime"
	ProSourcePromoTrial    ProSource = "promo_trial"
)

// Valid сообщает, является ли значение известным источником.
func (s ProSource) Valid() bool {
	switch s {
	case ProSourcePaid, ProSourcePromoLifetime, ProSourcePromoTrial:
		return true
	}
	return false
}

// LimitKey ключ месячного лимита, выводимый из уровня и источника.
type LimitKey string

// Ключи лимитов генераций.
const (
	LimitKeyProPlus  LimitKey = "pro_plus"
	LimitKeyProPaid  LimitKey = "pro_paid"
	LimitKeyProPromo LimitKey = "pro_promo"
)

// monthlyLimits месячные лимиты генераций по ключу лимита.
var monthlyLimits = map[LimitKey]int{
	LimitKeyProPlus:  100,
	LimitKeyProPaid:  30,
	LimitKeyProPromo: 15,
}

// MonthlyLimit возвращает месячный лимит генераций для ключа.
// Неизвестный ключ получает самый строгий из платных лимитов.
func (k LimitKey) MonthlyLimit() int {
	if v, ok := monthlyLimits[k]; ok {
		return v
	}
	return monthlyLimits[LimitKeyProPromo]
}

// Usage счётчик использования в текущем окне.
type Usage struct {
	Count     int    `json:"count"`     // Количество успешных генераций в окне
	WindowKey string `json:"windowKey"` // Окно в формате "YYYY-MM"
}

// Entitlement типизированное представление прав пользователя,
// хранящихся в метаданных провайдера идентификации.
type Entitlement struct {
	IsPremium bool      `json:"isPremium"`
	Tier      Tier      `json:"tier"`
	ProSource ProSource `json:"proSource,omitempty"`
	Usage     Usage     `json:"usage"`
}

// LimitKey выводит ключ месячного лимита из уровня и источника.
//
// Нераспознанная комбинация при isPremium == true сознательно получает
// щадящий ключ pro_promo вместо отказа: состояние вроде
// {isPremium:true, tier:""} возможно после частичных обновлений метаданных
// и не должно блокировать оплатившего пользователя.
func (e Entitlement) LimitKey() LimitKey {
	switch {
	case e.Tier == TierProPlus:
		return LimitKeyProPlus
	case e.Tier == TierPro && e.ProSource == ProSourcePaid:
		return LimitKeyProPaid
	case e.Tier == TierPro:
		return LimitKeyProPromo
	default:
		return LimitKeyProPromo
	}
}

// Ключи полей entitlement в метаданных провайдера.
const (
	MetaKeyIsPremium = "isPremium"
	MetaKeyTier      = "tier"
	MetaKeyProSource = "proSource"
	MetaKeyUsage     = "usage"
)

// EntitlementFromMetadata строит типизированный Entitlement из сырого мешка
// метаданных. Отсутствующие или повреждённые поля получают значения по
// умолчанию: новый пользователь без метаданных — это {free, isPremium:false}.
//
// Числа приходят из JSON как float64, поэтому счётчик читается через
// приведение обоих числовых типов.
func EntitlementFromMetadata(md map[string]any) Entitlement {
	e := Entitlement{Tier: TierFree}
	if md == nil {
		return e
	}

	if v, ok := md[MetaKeyIsPremium].(bool); ok {
		e.IsPremium = v
	}
	if v, ok := md[MetaKeyTier].(string); ok && Tier(v).Valid() {
		e.Tier = Tier(v)
	}
	if v, ok := md[MetaKeyProSource].(string); ok && ProSource(v).Valid() {
		e.ProSource = ProSource(v)
	}

	raw, ok := md[MetaKeyUsage].(map[string]any)
	if !ok {
		return e
	}
	switch c := raw["count"].(type) {
	case float64:
		e.Usage.Count = int(c)
	case int:
		e.Usage.Count = c
	}
	if w, ok := raw["windowKey"].(string); ok {
		e.Usage.WindowKey = w
	}
	return e
}

// ToMetadata возвращает полный мешок метаданных для перезаписи прав
// пользователя. Используется административными grant/revoke, которые
// сознательно затирают прочие поля (см. DESIGN.md).
func (e Entitlement) ToMetadata() map[string]any {
	md := map[string]any{
		MetaKeyIsPremium: e.IsPremium,
		MetaKeyTier:      string(e.Tier),
		MetaKeyUsage: map[string]any{
			"count":     e.Usage.Count,
			"windowKey": e.Usage.WindowKey,
		},
	}
	if e.ProSource != "" {
		md[MetaKeyProSource] = string(e.ProSource)
	} else {
		md[MetaKeyProSource] = nil
	}
	return md
}
