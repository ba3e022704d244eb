package scripts

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/shopspring/decimal"
)

// Runner запускает скрипт и возвращает его JSON-результат.
type Runner interface {
	Run(ctx context.Context, script string, args ...string) (json.RawMessage, error)
}

// Gateway выполняет этапы конвейера и discovery через внешние скрипты.
type Gateway struct {
	runner   Runner
	scripts  map[domain.ConveyorStage]string
	discover string
	logger   logger.Logger
}

func NewGateway(runner Runner, cfg *cfg.ScriptsCfg, logger logger.Logger) *Gateway {
	return &Gateway{
		runner: runner,
		scripts: map[domain.ConveyorStage]string{
			domain.StageERPCreate: cfg.ERPCreate,
			domain.StageStock:     cfg.ERPStock,
			domain.StageKaspiCard: cfg.KaspiCreate,
		},
		discover: cfg.DiscoverScript,
		logger:   logger,
	}
}

// stageResult — ответ скрипта этапа. Отсутствие success трактуется как успех, раз процесс завершился с кодом 0.
type stageResult struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// RunStage запускает скрипт этапа с данными товара.
func (g *Gateway) RunStage(ctx context.Context, stage domain.ConveyorStage, req *usecase.StageReq) error {
	const op = "scripts.Gateway.RunStage"

	script, ok := g.scripts[stage]
	if !ok || script == "" {
		return e.Wrap(op, fmt.Errorf("no script configured for stage %s", stage))
	}

	args, err := stageArgs(req)
	if err != nil {
		return e.Wrap(op, err)
	}

	raw, err := g.runner.Run(ctx, script, args...)
	if err != nil {
		return e.Wrap(op, err)
	}

	var res stageResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return e.Upstream(op, fmt.Errorf("%w: %v", e.ErrMalformedOutput, err))
	}
	if res.Error != "" || (res.Success != nil && !*res.Success) {
		msg := res.Error
		if msg == "" {
			msg = "script reported failure"
		}
		return e.Upstream(op, fmt.Errorf("stage %s: %s", stage, msg))
	}

	g.logger.Debugf("stage %s completed for product %d", stage, req.ProductID)
	return nil
}

func stageArgs(req *usecase.StageReq) ([]string, error) {
	payload, err := json.Marshal(newStagePayload(req))
	if err != nil {
		return nil, err
	}

	return []string{
		"--article", req.Article,
		"--name", req.Name,
		"--brand", req.Brand,
		"--price", strconv.FormatInt(req.Price, 10),
		"--cost", strconv.FormatInt(req.Cost, 10),
		"--stock", strconv.Itoa(req.Stock),
		"--images", strings.Join(req.Images, ","),
		"--payload", string(payload),
	}, nil
}

type stagePayload struct {
	ProductID   int64            `json:"product_id"`
	Description string           `json:"description,omitempty"`
	Category    string           `json:"category,omitempty"`
	CategoryID  string           `json:"category_id,omitempty"`
	Attributes  []attributeParam `json:"attributes,omitempty"`
}

type attributeParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func newStagePayload(req *usecase.StageReq) stagePayload {
	attrs := make([]attributeParam, 0, len(req.Attributes))
	for _, a := range req.Attributes {
		attrs = append(attrs, attributeParam{Name: a.Name, Value: a.Value})
	}
	return stagePayload{
		ProductID:   req.ProductID,
		Description: req.Description,
		Category:    req.Category,
		CategoryID:  req.CategoryID,
		Attributes:  attrs,
	}
}

type discoverResult struct {
	Items []discoveredItem `json:"items"`
}

type discoveredItem struct {
	Name        string       `json:"name"`
	Brand       string       `json:"brand"`
	Description string       `json:"description"`
	Price       json.Number  `json:"price"`
	Specs       domain.Specs `json:"specs"`
}

// Discover запускает скрипт поиска товаров по запросу и странице.
func (g *Gateway) Discover(ctx context.Context, query string, page int) ([]domain.DiscoveredItem, error) {
	const op = "scripts.Gateway.Discover"

	raw, err := g.runner.Run(ctx, g.discover, "--query", query, "--page", strconv.Itoa(page))
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	var res discoverResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, e.Upstream(op, fmt.Errorf("%w: %v", e.ErrMalformedOutput, err))
	}

	items := make([]domain.DiscoveredItem, 0, len(res.Items))
	for _, it := range res.Items {
		price, err := parsePrice(it.Price)
		if err != nil {
			g.logger.Warnf("discovered item %q skipped: %v", it.Name, err)
			continue
		}
		items = append(items, domain.DiscoveredItem{
			Name:        it.Name,
			Brand:       it.Brand,
			Description: it.Description,
			Price:       price,
			Specs:       it.Specs,
		})
	}

	return items, nil
}

// parsePrice округляет цену до целых единиц; отсутствующая цена равна нулю.
func parsePrice(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", n)
	}
	return d.Round(0).IntPart(), nil
}
