package domain

import "time"

// CatalogOffer — одно предложение (offer) XML-фида маркетплейса. Живёт только в рамках генерации фида.
type CatalogOffer struct {
	SKU          string
	Model        string
	Brand        string
	Description  string
	Category     string
	Images       []string
	Availability Availability
	Price        int64
	Params       []OfferParam
}

// Availability — наличие на точке самовывоза.
type Availability struct {
	Available  bool
	StoreID    string
	StockCount int
}

// OfferParam — пара имя/значение характеристики товара.
type OfferParam struct {
	Name  string
	Value string
}

// FeedEnvelope — данные конверта фида, которые не входят в поддерево offers.
type FeedEnvelope struct {
	CompanyName string
	MerchantID  string
	GeneratedAt time.Time
}

// SKUOrder задаёт приоритет источников SKU при сборке предложения.
type SKUOrder string

const (
	// SKUExplicitFirst: specs.kaspi_sku > код ERP > внутренний id.
	SKUExplicitFirst SKUOrder = "explicit_first"
	// SKUERPFirst: код ERP > specs.kaspi_sku > внутренний id.
	SKUERPFirst SKUOrder = "erp_first"
)

func (o SKUOrder) Valid() bool {
	return o == SKUExplicitFirst || o == SKUERPFirst
}
