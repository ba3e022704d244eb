package usecase

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/internal/infrastructure/feedxml"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedBase = `<?xml version="1.0" encoding="utf-8"?>
<kaspi_catalog date="x" xmlns="kaspiShopping">
  <offers>
    <offer sku="B-1"><model>Base phone</model><price>20000</price></offer>
    <offer sku="B-2"><model>Base cheap</model><price>100</price></offer>
    <offer sku="SHARED"><model>Base shared</model><price>9000</price></offer>
  </offers>
</kaspi_catalog>`

type feedFixture struct {
	repo    *fakeProductRepo
	source  *fakeSource
	erp     *fakeERP
	cache   *fakeCache
	metrics *fakeMetrics
	s       domain.Settings
}

func newFeedFixture(records ...domain.ProductRecord) *feedFixture {
	return &feedFixture{
		repo:    newFakeProductRepo(records...),
		source:  &fakeSource{body: feedBase},
		erp:     &fakeERP{codes: map[string]string{}},
		cache:   &fakeCache{},
		metrics: newFakeMetrics(),
		s:       testSettings(),
	}
}

func (f *feedFixture) uc() *FeedUseCase {
	return NewFeedUC(f.repo, f.source, f.erp, f.cache, fakeSettings{f.s}, f.metrics, logger.NewNop())
}

func (f *feedFixture) generate(t *testing.T) *feedxml.Catalog {
	t.Helper()
	f.cache.body = nil

	res, err := f.uc().Generate(context.Background())
	require.NoError(t, err)
	require.False(t, res.Cached)

	catalog, err := feedxml.Parse(res.Body)
	require.NoError(t, err)
	return catalog
}

func offerBySKU(t *testing.T, body []byte, sku string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(body))
	for _, offer := range doc.Root().SelectElement("offers").SelectElements("offer") {
		if offer.SelectAttrValue("sku", "") == sku {
			return offer
		}
	}
	t.Fatalf("offer %s not found", sku)
	return nil
}

func TestFeed_NoEligibleRecordsKeepsBaseOffers(t *testing.T) {
	f := newFeedFixture(domain.ProductRecord{ID: 1, Name: "not published", Price: 5000})
	f.s.MinOfferPrice = 0

	catalog := f.generate(t)

	base, err := feedxml.Parse([]byte(feedBase))
	require.NoError(t, err)
	assert.Equal(t, base.SKUs(), catalog.SKUs())
	assert.Zero(t, f.erp.calls, "no records, no ERP scan")
}

func TestFeed_ExampleRecord(t *testing.T) {
	f := newFeedFixture(domain.ProductRecord{
		ID:           42,
		Name:         "Kettle",
		Brand:        "Acme",
		Price:        1000,
		KaspiCreated: true,
		Specs:        mustSpecs(`{"stock": 0}`),
	})

	res, err := f.uc().Generate(context.Background())
	require.NoError(t, err)

	offer := offerBySKU(t, res.Body, "42")
	availability := offer.FindElement("availabilities/availability")
	require.NotNil(t, availability)
	assert.Equal(t, "no", availability.SelectAttrValue("available", ""))
	assert.Equal(t, "0", availability.SelectAttrValue("stockCount", ""))
	assert.Equal(t, "PP1", availability.SelectAttrValue("storeId", ""))
	assert.Equal(t, "3333", offer.SelectElement("price").Text())
	assert.Equal(t, "Kettle", offer.SelectElement("model").Text())
}

func TestFeed_DefaultStockFloor(t *testing.T) {
	f := newFeedFixture(domain.ProductRecord{ID: 42, Name: "Kettle", Price: 1000, KaspiCreated: true})
	f.s.DefaultStock = 10

	res, err := f.uc().Generate(context.Background())
	require.NoError(t, err)

	availability := offerBySKU(t, res.Body, "42").FindElement("availabilities/availability")
	assert.Equal(t, "yes", availability.SelectAttrValue("available", ""))
	assert.Equal(t, "10", availability.SelectAttrValue("stockCount", ""))
}

func TestFeed_PriceFloorAppliesToBaseAndInternal(t *testing.T) {
	f := newFeedFixture(
		domain.ProductRecord{ID: 1, Name: "cheap", Price: 100, KaspiCreated: true}, // 333 < 500
		domain.ProductRecord{ID: 2, Name: "fine", Price: 200, KaspiCreated: true},  // 667
	)

	catalog := f.generate(t)

	assert.NotContains(t, catalog.SKUs(), "B-2")
	assert.NotContains(t, catalog.SKUs(), "1")
	assert.Contains(t, catalog.SKUs(), "2")
}

func TestFeed_BaseOfferWinsOnCollision(t *testing.T) {
	f := newFeedFixture(domain.ProductRecord{
		ID: 5, Name: "Internal shared", Price: 4000, KaspiCreated: true,
		Specs: mustSpecs(`{"kaspi_sku": "SHARED"}`),
	})

	res, err := f.uc().Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Base shared", offerBySKU(t, res.Body, "SHARED").SelectElement("model").Text())
	catalog, err := feedxml.Parse(res.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"B-1", "SHARED"}, catalog.SKUs())
}

func TestFeed_SameResolvedSKUYieldsOneOffer(t *testing.T) {
	f := newFeedFixture(
		domain.ProductRecord{ID: 1, Name: "first", Price: 1000, KaspiCreated: true, Specs: mustSpecs(`{"kaspi_sku": "DUP"}`)},
		domain.ProductRecord{ID: 2, Name: "second", Price: 1000, Specs: mustSpecs(`{"is_in_feed": true}`)},
	)
	f.erp.codes = map[string]string{"2": "DUP"}

	first := f.generate(t)
	second := f.generate(t)

	assert.Equal(t, []string{"B-1", "SHARED", "DUP"}, first.SKUs())
	assert.Equal(t, first.SKUs(), second.SKUs(), "generation is repeatable")
}

func TestFeed_SKUPriority(t *testing.T) {
	records := []domain.ProductRecord{
		{ID: 10, Name: "explicit", Price: 1000, KaspiCreated: true, Specs: mustSpecs(`{"kaspi_sku": "EXPL"}`)},
		{ID: 11, Name: "erp", Price: 1000, KaspiCreated: true},
		{ID: 12, Name: "raw", Price: 1000, KaspiCreated: true},
	}
	codes := map[string]string{"10": "ERP-10", "11": "ERP-11"}

	t.Run("explicit first", func(t *testing.T) {
		f := newFeedFixture(records...)
		f.erp.codes = codes

		assert.Equal(t, []string{"B-1", "SHARED", "EXPL", "ERP-11", "12"}, f.generate(t).SKUs())
		assert.Equal(t, 1, f.erp.calls, "one full scan per generation")
	})

	t.Run("erp first", func(t *testing.T) {
		f := newFeedFixture(records...)
		f.erp.codes = codes
		f.s.SKUOrder = domain.SKUERPFirst

		assert.Equal(t, []string{"B-1", "SHARED", "ERP-10", "ERP-11", "12"}, f.generate(t).SKUs())
	})

	t.Run("explicit skus skip the scan", func(t *testing.T) {
		f := newFeedFixture(records[0])

		f.generate(t)
		assert.Zero(t, f.erp.calls)
	})
}

func TestFeed_OfferContent(t *testing.T) {
	f := newFeedFixture(domain.ProductRecord{
		ID: 9, Name: "Phone", Brand: "Acme", Description: "column description", Price: 30000, KaspiCreated: true,
		Specs: mustSpecs(`{
			"stock": 3,
			"image_urls": ["https://img/1.jpg", "https://img/2.jpg"],
			"kaspi_category": "Smartphones",
			"description": "specs description",
			"kaspi_attributes": {"Smartphones*Color": ["black", "white"], "Smartphones*Memory": 128}
		}`),
	})

	res, err := f.uc().Generate(context.Background())
	require.NoError(t, err)
	offer := offerBySKU(t, res.Body, "9")

	assert.Equal(t, "specs description", offer.SelectElement("description").Text())
	assert.Equal(t, "Smartphones", offer.SelectElement("category").Text())
	assert.Len(t, offer.FindElements("images/image"), 2)

	params := offer.SelectElements("param")
	require.Len(t, params, 3)
	assert.Equal(t, "Color", params[0].SelectAttrValue("name", ""))
	assert.Equal(t, "black", params[0].Text())
	assert.Equal(t, "Color", params[1].SelectAttrValue("name", ""))
	assert.Equal(t, "Memory", params[2].SelectAttrValue("name", ""))
	assert.Equal(t, "128", params[2].Text())
}

func TestFeed_FailuresAbortWholeRequest(t *testing.T) {
	t.Run("base catalog", func(t *testing.T) {
		f := newFeedFixture()
		f.source.err = e.Upstream("fetch base catalog", errors.New("timeout"))

		_, err := f.uc().Generate(context.Background())
		assert.ErrorIs(t, err, e.ErrUpstreamUnavailable)
		assert.Zero(t, f.cache.sets, "nothing is cached on failure")
	})

	t.Run("malformed base catalog", func(t *testing.T) {
		f := newFeedFixture()
		f.source.body = "<kaspi_catalog date=1>"

		_, err := f.uc().Generate(context.Background())
		assert.ErrorIs(t, err, e.ErrMalformedCatalog)
	})

	t.Run("datastore", func(t *testing.T) {
		f := newFeedFixture()
		f.repo.failOn("ListFeedEligible", errors.New("pool closed"))

		_, err := f.uc().Generate(context.Background())
		assert.Error(t, err)
	})

	t.Run("erp", func(t *testing.T) {
		f := newFeedFixture(domain.ProductRecord{ID: 1, Name: "x", Price: 1000, KaspiCreated: true})
		f.erp.err = e.Upstream("erp scan", errors.New("429"))

		_, err := f.uc().Generate(context.Background())
		assert.ErrorIs(t, err, e.ErrUpstreamUnavailable)
	})
}

func TestFeed_Cache(t *testing.T) {
	f := newFeedFixture()
	uc := f.uc()

	first, err := uc.Generate(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, f.cache.sets)

	second, err := uc.Generate(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 1, f.source.calls)

	uc.Invalidate(context.Background())
	third, err := uc.Generate(context.Background())
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, f.source.calls)
}

func TestFeed_EnvelopeFromSettings(t *testing.T) {
	f := newFeedFixture()

	res, err := f.uc().Generate(context.Background())
	require.NoError(t, err)

	body := string(res.Body)
	assert.Contains(t, body, "<company>Shop</company>")
	assert.Contains(t, body, "<merchantid>M-1</merchantid>")
	assert.Regexp(t, regexp.MustCompile(`<kaspi_catalog date="\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}" xmlns="kaspiShopping"`), body)
}
