package kaspi

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/internal/infrastructure/feedxml"
	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

// maxCatalogSize ограничивает размер базового каталога, читаемого в память.
const maxCatalogSize = 64 << 20

// BaseCatalogSource загружает базовый XML-каталог по HTTP без авторизации.
type BaseCatalogSource struct {
	client *http.Client
	url    string
	logger logger.Logger
}

func NewBaseCatalogSource(cfg *cfg.FeedCfg, logger logger.Logger) *BaseCatalogSource {
	return &BaseCatalogSource{
		client: &http.Client{Timeout: cfg.FetchTimeout},
		url:    cfg.BaseCatalogURL,
		logger: logger,
	}
}

// Fetch скачивает и разбирает базовый каталог. Пустой URL означает пустой каталог.
func (s *BaseCatalogSource) Fetch(ctx context.Context) (usecase.CatalogDocument, error) {
	const op = "BaseCatalogSource.Fetch"

	if s.url == "" {
		s.logger.Debugf("base catalog url is not configured, starting from an empty catalog")
		return feedxml.NewEmpty(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, e.Upstream(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, e.Upstream(op, fmt.Errorf("unexpected status code: %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogSize))
	if err != nil {
		return nil, e.Upstream(op, err)
	}

	catalog, err := feedxml.Parse(body)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	s.logger.Debugf("base catalog fetched: %d bytes, %d offers", len(body), catalog.OfferCount())
	return catalog, nil
}
