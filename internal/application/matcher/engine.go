package matcher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/matching"
	"github.com/modula-erp/emag-sync-go/internal/domain/ordering"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// Config tunes the matcher.
type Config struct {
	// MinSimilarity is the acceptance bar for name matches.
	MinSimilarity float64
	// Workers bounds the pool a batch re-match runs on.
	Workers int
}

func (c Config) withDefaults() Config {
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = matching.DefaultMinSimilarity
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	return c
}

// Outcome describes what auto-matching did to one supplier product.
type Outcome struct {
	SupplierProductID int64
	Matched           bool
	ProductID         int64
	Score             float64
	Method            matching.Method
}

// Report summarises a batch re-match over one supplier.
type Report struct {
	Total     int
	Unlinked  int64
	Confirmed int
	Matched   int
	Unmatched int
	Failed    int
}

// Engine links supplier products to local catalog rows. The pipeline
// tries exact EAN, then exact part number key, then Chinese-name
// similarity; the first stage that produces a candidate wins.
type Engine struct {
	supplierProducts matching.SupplierProductRepository
	suppliers        ordering.SupplierRepository
	products         catalog.ProductRepository
	clock            shared.Clock
	logger           *zap.Logger
	cfg              Config
}

// NewEngine creates a matcher engine. logger may be nil.
func NewEngine(
	supplierProducts matching.SupplierProductRepository,
	suppliers ordering.SupplierRepository,
	products catalog.ProductRepository,
	clock shared.Clock,
	logger *zap.Logger,
	cfg Config,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		supplierProducts: supplierProducts,
		suppliers:        suppliers,
		products:         products,
		clock:            clock,
		logger:           logger,
		cfg:              cfg.withDefaults(),
	}
}

// MatchOne auto-matches a single unmatched supplier product. A miss is
// not an error: the row simply stays unmatched.
func (e *Engine) MatchOne(ctx context.Context, supplierProductID int64) (*Outcome, error) {
	sp, err := e.supplierProducts.FindByID(ctx, supplierProductID)
	if err != nil {
		return nil, err
	}
	if sp.State() != matching.StateUnmatched {
		return nil, fmt.Errorf("cannot auto-match %s supplier product %d", sp.State(), sp.ID)
	}
	idx, err := e.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	out := &Outcome{SupplierProductID: sp.ID}
	cand, ok := idx.match(sp, e.cfg.MinSimilarity)
	if !ok {
		return out, nil
	}
	if err := sp.LinkPending(cand.ProductID, cand.Score, e.clock.Now()); err != nil {
		return nil, err
	}
	if err := e.supplierProducts.Save(ctx, sp); err != nil {
		return nil, err
	}
	out.Matched = true
	out.ProductID = cand.ProductID
	out.Score = cand.Score
	out.Method = cand.Method
	return out, nil
}

// RematchAll clears the supplier's pending links, then auto-matches
// every row that is not confirmed. Confirmed links survive untouched.
func (e *Engine) RematchAll(ctx context.Context, supplierID int64) (*Report, error) {
	if _, err := e.suppliers.FindByID(ctx, supplierID); err != nil {
		return nil, err
	}
	idx, err := e.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	unlinked, err := e.supplierProducts.UnlinkPending(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	rows, err := e.supplierProducts.ListBySupplier(ctx, supplierID, nil)
	if err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(e.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to start matcher pool: %w", err)
	}
	defer pool.Release()

	report := &Report{Total: len(rows), Unlinked: unlinked}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	for _, sp := range rows {
		if sp.State() == matching.StateConfirmed {
			report.Confirmed++
			continue
		}
		sp := sp
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				count(&report.Failed)
				return
			}
			cand, ok := idx.match(sp, e.cfg.MinSimilarity)
			if !ok {
				count(&report.Unmatched)
				return
			}
			if err := sp.LinkPending(cand.ProductID, cand.Score, e.clock.Now()); err != nil {
				e.logger.Warn("re-match could not link row",
					zap.Int64("supplier_product_id", sp.ID), zap.Error(err))
				count(&report.Failed)
				return
			}
			if err := e.supplierProducts.Save(ctx, sp); err != nil {
				e.logger.Warn("re-match could not save row",
					zap.Int64("supplier_product_id", sp.ID), zap.Error(err))
				count(&report.Failed)
				return
			}
			count(&report.Matched)
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			count(&report.Failed)
		}
	}
	wg.Wait()

	e.logger.Info("supplier re-match finished",
		zap.Int64("supplier_id", supplierID),
		zap.Int("total", report.Total),
		zap.Int64("unlinked", report.Unlinked),
		zap.Int("matched", report.Matched),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("confirmed_kept", report.Confirmed),
		zap.Int("failed", report.Failed))
	return report, nil
}

// Confirm promotes a pending link to confirmed. At most one confirmed
// match may exist per (supplier, local product); a second confirmation
// fails with ConflictExists.
func (e *Engine) Confirm(ctx context.Context, supplierProductID int64, actor string) error {
	sp, err := e.supplierProducts.FindByID(ctx, supplierProductID)
	if err != nil {
		return err
	}
	if err := sp.Confirm(actor, e.clock.Now()); err != nil {
		return err
	}
	return e.supplierProducts.ConfirmExclusive(ctx, sp)
}

// Reject drops a pending link back to unmatched.
func (e *Engine) Reject(ctx context.Context, supplierProductID int64) error {
	sp, err := e.supplierProducts.FindByID(ctx, supplierProductID)
	if err != nil {
		return err
	}
	if err := sp.Reject(e.clock.Now()); err != nil {
		return err
	}
	return e.supplierProducts.Save(ctx, sp)
}

// Unmatch clears any link, pending or confirmed.
func (e *Engine) Unmatch(ctx context.Context, supplierProductID int64) error {
	sp, err := e.supplierProducts.FindByID(ctx, supplierProductID)
	if err != nil {
		return err
	}
	if err := sp.Unmatch(e.clock.Now()); err != nil {
		return err
	}
	return e.supplierProducts.Save(ctx, sp)
}

// List returns a supplier's rows, optionally narrowed to one state.
func (e *Engine) List(ctx context.Context, supplierID int64, state *matching.State) ([]*matching.SupplierProduct, error) {
	return e.supplierProducts.ListBySupplier(ctx, supplierID, state)
}

// entry is one local product in the name-matching set.
type entry struct {
	id      int64
	name    string
	nameLen int
}

// index is an in-memory snapshot of the local catalog. Auto-matching
// reads it lock-free from every pool worker.
type index struct {
	byEAN map[string][]int64
	byPNK map[string][]int64
	named []entry
}

func (e *Engine) loadIndex(ctx context.Context) (*index, error) {
	idx := &index{
		byEAN: make(map[string][]int64),
		byPNK: make(map[string][]int64),
	}
	for _, account := range shared.AllAccounts() {
		rows, err := e.products.List(ctx, account, catalog.ProductFilter{})
		if err != nil {
			return nil, fmt.Errorf("failed to load %s catalog: %w", account, err)
		}
		for _, p := range rows {
			for _, ean := range p.EANs {
				idx.byEAN[ean] = append(idx.byEAN[ean], p.ID)
			}
			if p.PartNumberKey != "" {
				idx.byPNK[p.PartNumberKey] = append(idx.byPNK[p.PartNumberKey], p.ID)
			}
			if name := matching.Normalize(p.ChineseName); name != "" {
				idx.named = append(idx.named, entry{id: p.ID, name: name, nameLen: len([]rune(name))})
			}
		}
	}
	return idx, nil
}

// match runs the pipeline for one supplier product. Exact stages score
// 1.0 and break ties on the smallest product id.
func (idx *index) match(sp *matching.SupplierProduct, minSimilarity float64) (matching.Candidate, bool) {
	if ean := strings.TrimSpace(sp.EAN); ean != "" {
		if ids := idx.byEAN[ean]; len(ids) > 0 {
			return exactCandidate(ids, matching.MethodEAN), true
		}
	}
	if pnk := strings.TrimSpace(sp.PartNumberKey); pnk != "" {
		if ids := idx.byPNK[pnk]; len(ids) > 0 {
			return exactCandidate(ids, matching.MethodPNK), true
		}
	}

	name := sp.NormalizedName
	if name == "" {
		name = matching.Normalize(sp.RawName)
	}
	if name == "" {
		return matching.Candidate{}, false
	}
	nameLen := len([]rune(name))
	var candidates []matching.Candidate
	for _, en := range idx.named {
		score := matching.Score(name, en.name)
		if score < minSimilarity {
			continue
		}
		diff := nameLen - en.nameLen
		if diff < 0 {
			diff = -diff
		}
		candidates = append(candidates, matching.Candidate{
			ProductID:  en.id,
			Score:      score,
			Method:     matching.MethodName,
			LengthDiff: diff,
		})
	}
	return matching.Best(candidates, minSimilarity)
}

func exactCandidate(ids []int64, method matching.Method) matching.Candidate {
	best := ids[0]
	for _, id := range ids[1:] {
		if id < best {
			best = id
		}
	}
	return matching.Candidate{ProductID: best, Score: 1, Method: method}
}
