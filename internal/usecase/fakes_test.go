package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/internal/infrastructure/feedxml"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
)

// fakeProductRepo повторяет семантику SQL-репозитория в памяти.
type fakeProductRepo struct {
	mu        sync.Mutex
	records   map[int64]*domain.ProductRecord
	nextID    int64
	mutations int
	locked    int
	errs      map[string]error
}

func newFakeProductRepo(records ...domain.ProductRecord) *fakeProductRepo {
	r := &fakeProductRepo{records: make(map[int64]*domain.ProductRecord), errs: make(map[string]error)}
	for i := range records {
		rec := records[i]
		r.records[rec.ID] = &rec
		if rec.ID > r.nextID {
			r.nextID = rec.ID
		}
	}
	return r
}

func (r *fakeProductRepo) failOn(method string, err error) { r.errs[method] = err }

func (r *fakeProductRepo) get(id int64) (*domain.ProductRecord, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, e.ErrProductNotFound
	}
	return rec, nil
}

func (r *fakeProductRepo) snapshot(id int64) domain.ProductRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.records[id]
}

func (r *fakeProductRepo) GetByID(_ context.Context, id int64) (*domain.ProductRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs["GetByID"]; err != nil {
		return nil, err
	}
	rec, err := r.get(id)
	if err != nil {
		return nil, err
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeProductRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.ProductRecord, error) {
	r.mu.Lock()
	r.locked++
	r.mu.Unlock()
	return r.GetByID(ctx, id)
}

func (r *fakeProductRepo) ListFeedEligible(_ context.Context) ([]domain.ProductRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs["ListFeedEligible"]; err != nil {
		return nil, err
	}
	var out []domain.ProductRecord
	for _, rec := range r.sorted() {
		if rec.FeedEligible() {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeProductRepo) ListRejected(_ context.Context, maxRetries int, limit int) ([]domain.ProductRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProductRecord
	for _, rec := range r.sorted() {
		if rec.KaspiStatus == domain.KaspiStatusRejected && rec.ModerationRetries < maxRetries && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeProductRepo) ForceSync(_ context.Context, id int64, logLine string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.get(id)
	if err != nil {
		return err
	}
	r.mutations++
	rec.ConveyorStatus = domain.ConveyorIdle
	rec.MSCreated, rec.StockAdded, rec.KaspiCreated = false, false, false
	rec.ConveyorLog += logLine
	return nil
}

func (r *fakeProductRepo) MarkInFeed(_ context.Context, id int64, logLine string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.get(id)
	if err != nil {
		return err
	}
	r.mutations++
	if !(rec.KaspiCreated && rec.ConveyorStatus == domain.ConveyorInFeed) {
		rec.ConveyorLog += logLine
	}
	rec.KaspiCreated = true
	rec.ConveyorStatus = domain.ConveyorInFeed
	return nil
}

func (r *fakeProductRepo) Enqueue(_ context.Context, id int64, logLine string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.get(id)
	if err != nil {
		return err
	}
	if rec.EffectiveConveyorStatus() != domain.ConveyorIdle {
		return e.ErrInvalidStatusShift
	}
	r.mutations++
	rec.ConveyorStatus = domain.ConveyorPending
	rec.ConveyorLog += logLine
	return nil
}

func (r *fakeProductRepo) RecordRejection(_ context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.get(id)
	if err != nil {
		return err
	}
	if rec.KaspiStatus == domain.KaspiStatusClosed {
		return e.ErrRetryLimitReached
	}
	r.mutations++
	rec.KaspiStatus = domain.KaspiStatusRejected
	rec.KaspiDetails = reason
	return nil
}

func (r *fakeProductRepo) ApplyColumnFix(_ context.Context, id int64, field domain.FixField, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs["ApplyColumnFix"]; err != nil {
		return err
	}
	rec, err := r.get(id)
	if err != nil {
		return err
	}
	if rec.KaspiStatus == domain.KaspiStatusClosed {
		return e.ErrRetryLimitReached
	}
	r.mutations++
	switch field {
	case domain.FixFieldName:
		rec.Name = value
	case domain.FixFieldBrand:
		rec.Brand = value
	case domain.FixFieldDescription:
		rec.Description = value
	default:
		return e.ErrFieldNotAllowed
	}
	rec.KaspiStatus = domain.KaspiStatusPending
	rec.KaspiDetails = ""
	return nil
}

func (r *fakeProductRepo) ApplySpecsFix(_ context.Context, id int64, specs domain.Specs) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs["ApplySpecsFix"]; err != nil {
		return err
	}
	rec, err := r.get(id)
	if err != nil {
		return err
	}
	if rec.KaspiStatus == domain.KaspiStatusClosed {
		return e.ErrRetryLimitReached
	}
	r.mutations++
	rec.Specs = specs
	rec.KaspiStatus = domain.KaspiStatusPending
	rec.KaspiDetails = ""
	return nil
}

func (r *fakeProductRepo) ResetForResubmit(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs["ResetForResubmit"]; err != nil {
		return err
	}
	rec, err := r.get(id)
	if err != nil {
		return err
	}
	if rec.KaspiStatus == domain.KaspiStatusClosed {
		return e.ErrRetryLimitReached
	}
	r.mutations++
	rec.KaspiStatus = domain.KaspiStatusPending
	rec.KaspiDetails = ""
	return nil
}

func (r *fakeProductRepo) RegisterModerationCycle(_ context.Context, id int64, limit int, closedSummary string) (*ModerationCycleRes, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if rec.KaspiStatus == domain.KaspiStatusClosed {
		return nil, e.ErrRetryLimitReached
	}
	r.mutations++
	rec.ModerationRetries++
	if rec.ModerationRetries >= limit {
		rec.KaspiStatus = domain.KaspiStatusClosed
		rec.KaspiDetails = closedSummary
		rec.Specs, _ = rec.Specs.With(domain.SpecIsClosed, true)
	}
	return NewModerationCycleRes(rec.ModerationRetries, rec.KaspiStatus), nil
}

func (r *fakeProductRepo) ClaimPending(_ context.Context) (*domain.ProductRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.sorted() {
		if rec.ConveyorStatus == domain.ConveyorPending {
			r.mutations++
			rec.ConveyorStatus = domain.ConveyorProcessing
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeProductRepo) CompleteStage(_ context.Context, id int64, stage domain.ConveyorStage, logLine string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.get(id)
	if err != nil {
		return false, err
	}
	if rec.ConveyorStatus != domain.ConveyorProcessing {
		return false, nil
	}
	r.mutations++
	switch stage {
	case domain.StageERPCreate:
		rec.MSCreated = true
	case domain.StageStock:
		rec.StockAdded = true
	case domain.StageKaspiCard:
		rec.KaspiCreated = true
		rec.KaspiStatus = domain.KaspiStatusPending
	}
	rec.ConveyorLog += logLine
	return true, nil
}

func (r *fakeProductRepo) FinishConveyor(_ context.Context, id int64, status domain.ConveyorStatus, logLine string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.get(id)
	if err != nil {
		return false, err
	}
	if rec.ConveyorStatus != domain.ConveyorProcessing {
		return false, nil
	}
	r.mutations++
	rec.ConveyorStatus = status
	rec.ConveyorLog += logLine
	return true, nil
}

func (r *fakeProductRepo) InsertDiscovered(_ context.Context, records []*domain.ProductRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs["InsertDiscovered"]; err != nil {
		return 0, err
	}
	names := make(map[string]struct{}, len(r.records))
	for _, rec := range r.records {
		names[rec.Name] = struct{}{}
	}
	inserted := 0
	for _, rec := range records {
		if _, ok := names[rec.Name]; ok {
			continue
		}
		r.nextID++
		cp := *rec
		cp.ID = r.nextID
		r.records[cp.ID] = &cp
		names[cp.Name] = struct{}{}
		inserted++
	}
	r.mutations += inserted
	return inserted, nil
}

func (r *fakeProductRepo) Stats(_ context.Context) (*ProductStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := NewProductStats()
	for _, rec := range r.records {
		stats.Total++
		stats.ByConveyorStatus[rec.EffectiveConveyorStatus()]++
		stats.ByKaspiStatus[rec.KaspiStatus]++
		if rec.FeedEligible() {
			stats.FeedEligible++
		}
		if rec.KaspiStatus == domain.KaspiStatusClosed {
			stats.Closed++
		}
		if rec.ConveyorStatus == domain.ConveyorError {
			stats.Errors++
		}
	}
	return stats, nil
}

func (r *fakeProductRepo) sorted() []*domain.ProductRecord {
	out := make([]*domain.ProductRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fakeJobRepo struct {
	mu     sync.Mutex
	jobs   []*domain.Job
	nextID int64
	err    error
}

func (r *fakeJobRepo) Create(_ context.Context, job *domain.Job) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *job
	cp.ID = r.nextID
	cp.CreatedAt = time.Now().Add(time.Duration(r.nextID) * time.Millisecond)
	r.jobs = append(r.jobs, &cp)
	out := cp
	return &out, nil
}

func (r *fakeJobRepo) List(_ context.Context, limit int) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for i := len(r.jobs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *r.jobs[i])
	}
	return out, nil
}

func (r *fakeJobRepo) Latest(_ context.Context) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if len(r.jobs) == 0 {
		return nil, nil
	}
	cp := *r.jobs[len(r.jobs)-1]
	return &cp, nil
}

func (r *fakeJobRepo) HasActive(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	for _, j := range r.jobs {
		if j.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeJobRepo) StopPending(_ context.Context, logLine string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, j := range r.jobs {
		if j.Status == domain.JobPending {
			j.Status = domain.JobStopped
			j.Log += logLine
			n++
		}
	}
	return n, nil
}

func (r *fakeJobRepo) ClaimPending(_ context.Context) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.Status == domain.JobPending {
			j.Status = domain.JobProcessing
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeJobRepo) AppendLog(_ context.Context, id int64, logLine string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			j.Log += logLine
			return nil
		}
	}
	return e.ErrJobNotFound
}

func (r *fakeJobRepo) Finish(_ context.Context, id int64, status domain.JobStatus, logLine string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			j.Status = status
			j.Log += logLine
			return nil
		}
	}
	return e.ErrJobNotFound
}

func (r *fakeJobRepo) byID(id int64) domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			return *j
		}
	}
	return domain.Job{}
}

// fakeSource каждый раз разбирает базовый документ заново, как настоящий источник.
type fakeSource struct {
	body  string
	err   error
	calls int
}

func (s *fakeSource) Fetch(_ context.Context) (CatalogDocument, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.body == "" {
		return feedxml.NewEmpty(), nil
	}
	return feedxml.Parse([]byte(s.body))
}

type fakeERP struct {
	codes map[string]string
	err   error
	calls int
}

func (f *fakeERP) ArticleCodes(_ context.Context) (map[string]string, error) {
	f.calls++
	return f.codes, f.err
}

type fakeCache struct {
	body        []byte
	getErr      error
	sets        int
	invalidated int
}

func (c *fakeCache) Get(_ context.Context) ([]byte, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	if c.body == nil {
		return nil, e.ErrCacheMiss
	}
	return c.body, nil
}

func (c *fakeCache) Set(_ context.Context, body []byte) error {
	c.sets++
	c.body = body
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context) error {
	c.invalidated++
	c.body = nil
	return nil
}

type fakeSettings struct{ s domain.Settings }

func (f fakeSettings) Get() domain.Settings { return f.s }

func testSettings() domain.Settings {
	return domain.Settings{
		RetailDivisor:     0.3,
		MinOfferPrice:     500,
		CommissionPercent: 12,
		TaxPercent:        4,
		StoreID:           "PP1",
		MerchantID:        "M-1",
		CompanyName:       "Shop",
		SKUOrder:          domain.SKUExplicitFirst,
	}
}

type fakeProvider struct {
	name     string
	response string
	err      error
	hang     bool
	calls    int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, _ string) (string, error) {
	p.calls++
	if p.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return p.response, p.err
}

type fakeTx struct{ calls int }

func (t *fakeTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fakeGateway struct {
	fail  map[domain.ConveyorStage]error
	calls []domain.ConveyorStage
	reqs  []*StageReq
}

func (g *fakeGateway) RunStage(_ context.Context, stage domain.ConveyorStage, req *StageReq) error {
	g.calls = append(g.calls, stage)
	g.reqs = append(g.reqs, req)
	return g.fail[stage]
}

type fakeDiscovery struct {
	items []domain.DiscoveredItem
	err   error
}

func (d *fakeDiscovery) Discover(_ context.Context, _ string, _ int) ([]domain.DiscoveredItem, error) {
	return d.items, d.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*ConveyorEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event *ConveyorEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeMetrics struct {
	closed   int
	attempts map[string][]bool
	feeds    int
	stages   map[domain.ConveyorStage]int
	jobs     int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{attempts: make(map[string][]bool), stages: make(map[domain.ConveyorStage]int)}
}

func (m *fakeMetrics) ObserveFeed(time.Duration, int, bool, error) { m.feeds++ }

func (m *fakeMetrics) ProviderAttempt(provider string, ok bool) {
	m.attempts[provider] = append(m.attempts[provider], ok)
}

func (m *fakeMetrics) ModerationClosed() { m.closed++ }

func (m *fakeMetrics) StageFinished(stage domain.ConveyorStage, _ bool) { m.stages[stage]++ }

func (m *fakeMetrics) JobFinished(domain.JobStatus) { m.jobs++ }

type fakeFeed struct{ invalidated int }

func (f *fakeFeed) Generate(context.Context) (*FeedRes, error) { return &FeedRes{}, nil }

func (f *fakeFeed) Invalidate(context.Context) { f.invalidated++ }

func mustSpecs(raw string) domain.Specs {
	specs, err := domain.ParseSpecs([]byte(raw))
	if err != nil {
		panic(err)
	}
	return specs
}
