package domain

import "fmt"

// Settings — бизнес-настройки, которые меняются во время работы без перезапуска.
type Settings struct {
	RetailDivisor     float64  // розничная цена = закупочная / делитель
	MinOfferPrice     int64    // предложения дешевле не попадают в фид
	CommissionPercent float64  // комиссия маркетплейса, %
	TaxPercent        float64  // налог, %
	LogisticsCost     int64    // фиксированная стоимость доставки
	StoreID           string   // идентификатор точки самовывоза в availability
	MerchantID        string   // идентификатор продавца в конверте фида
	CompanyName       string   // название компании в конверте фида
	DefaultStock      int      // остаток, если specs.stock отсутствует или равен нулю; 0 означает не подставлять
	SKUOrder          SKUOrder // приоритет источников SKU
	DefaultCategory   string   // категория предложения, если у товара её нет
}

// Setting keys хранятся в таблице settings.
const (
	SettingRetailDivisor     = "retail_divisor"
	SettingMinOfferPrice     = "min_offer_price"
	SettingCommissionPercent = "commission_percent"
	SettingTaxPercent        = "tax_percent"
	SettingLogisticsCost     = "logistics_cost"
	SettingStoreID           = "store_id"
	SettingMerchantID        = "merchant_id"
	SettingCompanyName       = "company_name"
	SettingDefaultStock      = "default_stock"
	SettingSKUOrder          = "sku_order"
	SettingDefaultCategory   = "default_category"
)

// SettingsPatch — частичное обновление настроек. nil означает «не менять».
type SettingsPatch struct {
	RetailDivisor     *float64
	MinOfferPrice     *int64
	CommissionPercent *float64
	TaxPercent        *float64
	LogisticsCost     *int64
	StoreID           *string
	MerchantID        *string
	CompanyName       *string
	DefaultStock      *int
	SKUOrder          *SKUOrder
	DefaultCategory   *string
}

// Apply возвращает настройки с применённым патчем.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.RetailDivisor != nil {
		s.RetailDivisor = *p.RetailDivisor
	}
	if p.MinOfferPrice != nil {
		s.MinOfferPrice = *p.MinOfferPrice
	}
	if p.CommissionPercent != nil {
		s.CommissionPercent = *p.CommissionPercent
	}
	if p.TaxPercent != nil {
		s.TaxPercent = *p.TaxPercent
	}
	if p.LogisticsCost != nil {
		s.LogisticsCost = *p.LogisticsCost
	}
	if p.StoreID != nil {
		s.StoreID = *p.StoreID
	}
	if p.MerchantID != nil {
		s.MerchantID = *p.MerchantID
	}
	if p.CompanyName != nil {
		s.CompanyName = *p.CompanyName
	}
	if p.DefaultStock != nil {
		s.DefaultStock = *p.DefaultStock
	}
	if p.SKUOrder != nil {
		s.SKUOrder = *p.SKUOrder
	}
	if p.DefaultCategory != nil {
		s.DefaultCategory = *p.DefaultCategory
	}
	return s
}

// Validate проверяет инварианты настроек.
func (s Settings) Validate() error {
	switch {
	case s.RetailDivisor <= 0:
		return fmt.Errorf("retail_divisor must be positive")
	case s.MinOfferPrice < 0:
		return fmt.Errorf("min_offer_price must not be negative")
	case s.CommissionPercent < 0 || s.CommissionPercent > 100:
		return fmt.Errorf("commission_percent must be within [0, 100]")
	case s.TaxPercent < 0 || s.TaxPercent > 100:
		return fmt.Errorf("tax_percent must be within [0, 100]")
	case s.LogisticsCost < 0:
		return fmt.Errorf("logistics_cost must not be negative")
	case s.DefaultStock < 0:
		return fmt.Errorf("default_stock must not be negative")
	case !s.SKUOrder.Valid():
		return fmt.Errorf("sku_order must be %q or %q", SKUExplicitFirst, SKUERPFirst)
	}
	return nil
}
