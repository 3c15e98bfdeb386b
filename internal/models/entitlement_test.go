package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntitlementFromMetadata(t *testing.T) {
	tests := []struct {
		name string
		md   map[string]any
		want Entitlement
	}{
		{
			name: "пустые метаданные дают free без premium",
			md:   nil,
			want: Entitlement{Tier: TierFree},
		},
		{
			name: "полный набор полей",
			md: map[string]any{
				"isPremium": true,
				"tier":      "pro",
				"proSource": "promo_trial",
				"usage":     map[string]any{"count": float64(7), "windowKey": "2026-01"},
			},
			want: Entitlement{
				IsPremium: true,
				Tier:      TierPro,
				ProSource: ProSourcePromoTrial,
				Usage:     Usage{Count: 7, WindowKey: "2026-01"},
			},
		},
		{
			name: "неизвестный tier заменяется на free",
			md: map[string]any{
				"isPremium": true,
				"tier":      "platinum",
			},
			want: Entitlement{IsPremium: true, Tier: TierFree},
		},
		{
			name: "повреждённый usage игнорируется",
			md: map[string]any{
				"tier":  "pro",
				"usage": "garbage",
			},
			want: Entitlement{Tier: TierPro},
		},
		{
			name: "состояние после отмены вебхуком: premium снят, tier остался",
			md: map[string]any{
				"isPremium": false,
				"tier":      "pro",
				"proSource": "paid",
			},
			want: Entitlement{IsPremium: false, Tier: TierPro, ProSource: ProSourcePaid},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EntitlementFromMetadata(tt.md))
		})
	}
}

func TestEntitlementLimitKey(t *testing.T) {
	tests := []struct {
		name      string
		ent       Entitlement
		wantKey   LimitKey
		wantLimit int
	}{
		{
			name:      "pro_plus",
			ent:       Entitlement{IsPremium: true, Tier: TierProPlus},
			wantKey:   LimitKeyProPlus,
			wantLimit: 100,
		},
		{
			name:      "pro оплаченный",
			ent:       Entitlement{IsPremium: true, Tier: TierPro, ProSource: ProSourcePaid},
			wantKey:   LimitKeyProPaid,
			wantLimit: 30,
		},
		{
			name:      "pro промо",
			ent:       Entitlement{IsPremium: true, Tier: TierPro, ProSource: ProSourcePromoTrial},
			wantKey:   LimitKeyProPromo,
			wantLimit: 15,
		},
		{
			name:      "pro без источника",
			ent:       Entitlement{IsPremium: true, Tier: TierPro},
			wantKey:   LimitKeyProPromo,
			wantLimit: 15,
		},
		{
			name:      "несогласованная комбинация получает щадящий лимит",
			ent:       Entitlement{IsPremium: true, Tier: TierFree},
			wantKey:   LimitKeyProPromo,
			wantLimit: 15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := tt.ent.LimitKey()
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantLimit, key.MonthlyLimit())
		})
	}
}

func TestEntitlementToMetadataRoundTrip(t *testing.T) {
	ent := Entitlement{
		IsPremium: true,
		Tier:      TierPro,
		ProSource: ProSourcePromoLifetime,
		Usage:     Usage{Count: 3, WindowKey: "2026-02"},
	}
	got := EntitlementFromMetadata(ent.ToMetadata())
	assert.Equal(t, ent, got)
}
