package syncrun

import (
	"fmt"
	"time"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// Resource is what a sync run pulls from the marketplace.
type Resource string

const (
	ResourceProducts Resource = "products"
	ResourceOffers   Resource = "offers"
	ResourceOrders   Resource = "orders"
)

// ParseResource validates a user-supplied resource name.
func ParseResource(s string) (Resource, error) {
	switch Resource(s) {
	case ResourceProducts, ResourceOffers, ResourceOrders:
		return Resource(s), nil
	}
	return "", shared.NewValidationError("resource", fmt.Sprintf("unknown resource %q", s))
}

// RateClass returns the marketplace throttle class the resource's
// endpoints belong to. Order endpoints get the wider budget; all
// others share the narrow one.
func (r Resource) RateClass() string {
	if r == ResourceOrders {
		return ClassOrders
	}
	return ClassOther
}

// Rate limiter class names, fixed by the marketplace contract.
const (
	ClassOrders = "orders"
	ClassOther  = "other"
)

// SupportsIncremental reports whether the resource's read endpoint
// accepts a modified-after filter. Offer reads do not, so an
// incremental offers run falls back to a full read.
func (r Resource) SupportsIncremental() bool {
	return r != ResourceOffers
}

// Mode selects how much of the remote catalog a run covers.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeSelective   Mode = "selective"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull, ModeIncremental, ModeSelective:
		return Mode(s), nil
	}
	return "", shared.NewValidationError("mode", fmt.Sprintf("unknown mode %q", s))
}

// ConflictStrategy decides who wins when a pulled record collides with
// a locally modified row.
type ConflictStrategy string

const (
	StrategyEmagPriority  ConflictStrategy = "emag_priority"
	StrategyLocalPriority ConflictStrategy = "local_priority"
	StrategyNewestWins    ConflictStrategy = "newest_wins"
	StrategyManual        ConflictStrategy = "manual"
)

func ParseConflictStrategy(s string) (ConflictStrategy, error) {
	switch ConflictStrategy(s) {
	case StrategyEmagPriority, StrategyLocalPriority, StrategyNewestWins, StrategyManual:
		return ConflictStrategy(s), nil
	}
	return "", shared.NewValidationError("conflict", fmt.Sprintf("unknown conflict strategy %q", s))
}

// Filters narrows a selective run.
type Filters struct {
	CategoryIDs        []int64
	ValidationStatuses []int
}

// Empty reports whether no predicate is set.
func (f Filters) Empty() bool {
	return len(f.CategoryIDs) == 0 && len(f.ValidationStatuses) == 0
}

// Request describes one sync submission.
type Request struct {
	Account  shared.Account
	Resource Resource
	Mode     Mode
	Strategy ConflictStrategy
	MaxPages int
	Filters  Filters
	Actor    string
	Async    bool
}

// Validate rejects malformed submissions before a log row is written.
func (r *Request) Validate() error {
	if _, err := shared.ParseAccount(string(r.Account)); err != nil {
		return err
	}
	if _, err := ParseResource(string(r.Resource)); err != nil {
		return err
	}
	if _, err := ParseMode(string(r.Mode)); err != nil {
		return err
	}
	if r.Strategy == "" {
		r.Strategy = StrategyEmagPriority
	}
	if _, err := ParseConflictStrategy(string(r.Strategy)); err != nil {
		return err
	}
	if r.MaxPages < 0 {
		return shared.NewValidationError("max_pages", "must not be negative")
	}
	if r.Mode == ModeSelective && r.Filters.Empty() {
		return shared.NewValidationError("filters", "selective mode requires at least one filter")
	}
	return nil
}

// Key identifies the controller slot a request occupies.
func (r *Request) Key() string {
	return string(r.Account) + "/" + string(r.Resource)
}

// incrementalLookback bounds how far back an incremental run reaches
// when the previous successful run is old or absent.
const incrementalLookback = 24 * time.Hour

// ModifiedSince computes the incremental watermark: the later of the
// last successful run's start and now minus 24h. Using started_at
// rather than finished_at re-covers records modified while that run
// was already paging.
func ModifiedSince(lastSuccessStartedAt *time.Time, now time.Time) time.Time {
	floor := now.Add(-incrementalLookback)
	if lastSuccessStartedAt == nil || lastSuccessStartedAt.Before(floor) {
		return floor
	}
	return *lastSuccessStartedAt
}
