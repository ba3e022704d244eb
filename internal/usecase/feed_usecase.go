package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

// FeedUseCase собирает XML-фид: базовый каталог плюс опубликованные записи конвейера.
// Ничего не пишет в хранилище; при любой ошибке источника или базы документ не отдаётся.
type FeedUseCase struct {
	productRepo ProductRepository
	baseSource  BaseCatalogSource
	erp         ERPCatalog
	cacheRepo   FeedCacheRepository
	settings    SettingsProvider
	metrics     MetricsRecorder
	logger      logger.Logger
}

func NewFeedUC(
	productRepo ProductRepository,
	baseSource BaseCatalogSource,
	erp ERPCatalog,
	cacheRepo FeedCacheRepository,
	settings SettingsProvider,
	metrics MetricsRecorder,
	logger logger.Logger,
) *FeedUseCase {
	return &FeedUseCase{
		productRepo: productRepo,
		baseSource:  baseSource,
		erp:         erp,
		cacheRepo:   cacheRepo,
		settings:    settings,
		metrics:     metrics,
		logger:      logger,
	}
}

// Generate возвращает фид из кэша или собирает его заново.
func (f *FeedUseCase) Generate(ctx context.Context) (*FeedRes, error) {
	const op = "FeedUseCase.Generate"
	start := time.Now()

	cached, err := f.cacheRepo.Get(ctx)
	switch {
	case err == nil:
		f.metrics.ObserveFeed(time.Since(start), 0, true, nil)
		return &FeedRes{Body: cached, Cached: true}, nil
	case !errors.Is(err, e.ErrCacheMiss):
		f.logger.Warnf("feed cache read failed: %v", e.Wrap(op, err))
	}

	res, err := f.build(ctx)
	f.metrics.ObserveFeed(time.Since(start), offerCount(res), false, err)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if err := f.cacheRepo.Set(ctx, res.Body); err != nil {
		f.logger.Warnf("feed cache write failed: %v", e.Wrap(op, err))
	}

	return res, nil
}

// Invalidate сбрасывает закэшированный фид после изменений, влияющих на его содержимое.
func (f *FeedUseCase) Invalidate(ctx context.Context) {
	if err := f.cacheRepo.Invalidate(ctx); err != nil {
		f.logger.Warnf("feed cache invalidation failed: %v", e.Wrap("FeedUseCase.Invalidate", err))
	}
}

func (f *FeedUseCase) build(ctx context.Context) (*FeedRes, error) {
	settings := f.settings.Get()

	// Базовый каталог
	doc, err := f.baseSource.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	records, err := f.productRepo.ListFeedEligible(ctx)
	if err != nil {
		return nil, err
	}

	// Справочник ERP читается один раз и только если он нужен
	var codes map[string]string
	if needsERPCodes(settings.SKUOrder, records) {
		codes, err = f.erp.ArticleCodes(ctx)
		if err != nil {
			return nil, err
		}
	}
	resolver := newSKUResolver(settings.SKUOrder, codes)

	existing := make(map[string]struct{})
	for _, sku := range doc.SKUs() {
		existing[sku] = struct{}{}
	}

	appended := 0
	for i := range records {
		rec := &records[i]
		if !rec.FeedEligible() {
			continue
		}

		sku := resolver.Resolve(rec)
		if _, ok := existing[sku]; ok {
			continue
		}
		existing[sku] = struct{}{}

		doc.AppendOffer(buildOffer(rec, sku, settings))
		appended++
	}

	// Фильтр цены применяется и к предложениям базового каталога
	dropped := doc.FilterByMinPrice(settings.MinOfferPrice)
	duplicates := doc.Dedup()

	body, err := doc.Render(domain.FeedEnvelope{
		CompanyName: settings.CompanyName,
		MerchantID:  settings.MerchantID,
		GeneratedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	f.logger.Infof("feed generated: offers=%d appended=%d dropped_by_price=%d duplicates=%d",
		doc.OfferCount(), appended, dropped, duplicates)

	return &FeedRes{Body: body, Offers: doc.OfferCount()}, nil
}

func offerCount(res *FeedRes) int {
	if res == nil {
		return 0
	}
	return res.Offers
}
