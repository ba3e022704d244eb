package feedxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
)

const (
	tagOffers       = "offers"
	tagOffer        = "offer"
	tagPrice        = "price"
	tagCityPrices   = "cityprices"
	tagCityPrice    = "cityprice"
	attrSKU         = "sku"
	envelopeDateFmt = "02.01.2006 15:04"
)

// Catalog — коллекция предложений каталога маркетплейса в виде дерева XML.
// Предложения всегда хранятся списком дочерних элементов offers, даже если в исходном документе оно одно.
type Catalog struct {
	offers *etree.Element
}

// NewEmpty возвращает каталог без предложений.
func NewEmpty() *Catalog {
	return &Catalog{offers: etree.NewElement(tagOffers)}
}

// Parse разбирает документ каталога. Отсутствие элемента offers означает пустой каталог,
// отсутствие корневого элемента считается ошибкой.
func Parse(data []byte) (*Catalog, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrMalformedCatalog, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: document has no root element", e.ErrMalformedCatalog)
	}

	offers := root.SelectElement(tagOffers)
	if offers == nil && root.Tag == tagOffers {
		offers = root
	}
	if offers == nil {
		return NewEmpty(), nil
	}

	return &Catalog{offers: offers.Copy()}, nil
}

// SKUs возвращает непустые SKU предложений в порядке документа.
func (c *Catalog) SKUs() []string {
	offers := c.offerElements()
	skus := make([]string, 0, len(offers))
	for _, offer := range offers {
		if sku := offerSKU(offer); sku != "" {
			skus = append(skus, sku)
		}
	}
	return skus
}

func (c *Catalog) OfferCount() int {
	return len(c.offerElements())
}

// AppendOffer добавляет предложение в конец коллекции.
func (c *Catalog) AppendOffer(o domain.CatalogOffer) {
	offer := c.offers.CreateElement(tagOffer)
	offer.CreateAttr(attrSKU, o.SKU)

	addText(offer, "model", o.Model)
	addText(offer, "brand", o.Brand)
	addText(offer, "description", o.Description)
	addText(offer, "category", o.Category)

	if len(o.Images) > 0 {
		images := offer.CreateElement("images")
		for _, url := range o.Images {
			images.CreateElement("image").SetText(url)
		}
	}

	availability := offer.CreateElement("availabilities").CreateElement("availability")
	availability.CreateAttr("available", yesNo(o.Availability.Available))
	availability.CreateAttr("storeId", o.Availability.StoreID)
	availability.CreateAttr("stockCount", strconv.Itoa(o.Availability.StockCount))

	offer.CreateElement(tagPrice).SetText(strconv.FormatInt(o.Price, 10))

	for _, p := range o.Params {
		param := offer.CreateElement("param")
		param.CreateAttr("name", p.Name)
		param.SetText(p.Value)
	}
}

// FilterByMinPrice удаляет предложения без числовой цены или с ценой ниже min.
func (c *Catalog) FilterByMinPrice(min int64) int {
	floor := decimal.NewFromInt(min)
	removed := 0
	for _, offer := range c.offerElements() {
		price, ok := offerPrice(offer)
		if ok && !price.LessThan(floor) {
			continue
		}
		c.offers.RemoveChild(offer)
		removed++
	}
	return removed
}

// Dedup оставляет первое предложение каждого SKU. Предложения без SKU не считаются дублями и остаются как есть.
func (c *Catalog) Dedup() int {
	seen := make(map[string]struct{})
	removed := 0
	for _, offer := range c.offerElements() {
		sku := offerSKU(offer)
		if sku == "" {
			continue
		}
		if _, dup := seen[sku]; !dup {
			seen[sku] = struct{}{}
			continue
		}
		c.offers.RemoveChild(offer)
		removed++
	}
	return removed
}

// Render сериализует поддерево offers через etree и вкладывает его в конверт, собранный вручную:
// ровно одна XML-декларация и фиксированный порядок атрибутов корня.
func (c *Catalog) Render(env domain.FeedEnvelope) ([]byte, error) {
	offers := c.offers.Copy()
	normalizeNamespaces(offers)

	doc := etree.NewDocument()
	doc.SetRoot(offers)
	doc.Indent(2)

	body, err := doc.WriteToBytes()
	if err != nil {
		return nil, e.Wrap("feedxml.Render", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 512)
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	buf.WriteString(`<kaspi_catalog date="`)
	buf.WriteString(escape(env.GeneratedAt.Format(envelopeDateFmt)))
	buf.WriteString(`" xmlns="kaspiShopping" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"` +
		` xsi:schemaLocation="kaspiShopping http://kaspi.kz/kaspishopping.xsd">` + "\n")
	buf.WriteString("<company>" + escape(env.CompanyName) + "</company>\n")
	buf.WriteString("<merchantid>" + escape(env.MerchantID) + "</merchantid>\n")
	buf.Write(bytes.TrimRight(body, "\n"))
	buf.WriteString("\n</kaspi_catalog>\n")

	return buf.Bytes(), nil
}

func (c *Catalog) offerElements() []*etree.Element {
	return c.offers.SelectElements(tagOffer)
}

func offerSKU(offer *etree.Element) string {
	return strings.TrimSpace(offer.SelectAttrValue(attrSKU, ""))
}

// offerPrice читает price, а при его отсутствии минимальную cityprice.
func offerPrice(offer *etree.Element) (decimal.Decimal, bool) {
	if el := offer.SelectElement(tagPrice); el != nil {
		return parsePrice(el.Text())
	}

	cityPrices := offer.SelectElement(tagCityPrices)
	if cityPrices == nil {
		return decimal.Decimal{}, false
	}

	var (
		min   decimal.Decimal
		found bool
	)
	for _, el := range cityPrices.SelectElements(tagCityPrice) {
		price, ok := parsePrice(el.Text())
		if !ok {
			return decimal.Decimal{}, false
		}
		if !found || price.LessThan(min) {
			min, found = price, true
		}
	}
	return min, found
}

func parsePrice(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}

// normalizeNamespaces снимает префиксы и объявления пространств имён: поддерево живёт в пространстве конверта.
func normalizeNamespaces(el *etree.Element) {
	el.Space = ""
	attrs := el.Attr[:0]
	for _, a := range el.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		attrs = append(attrs, a)
	}
	el.Attr = attrs

	for _, child := range el.ChildElements() {
		normalizeNamespaces(child)
	}
}

func addText(parent *etree.Element, tag, value string) {
	if value == "" {
		return
	}
	parent.CreateElement(tag).SetText(value)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
