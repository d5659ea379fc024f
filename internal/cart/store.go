package cart

import (
	"context"
	"strings"
	"sync"

	"github.com/angelmondragon/betza-storefront/internal/notifications"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/angelmondragon/betza-storefront/pkg/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	opAdd       = "add"
	opDecrement = "decrement"
	opSet       = "set_quantity"
	opRemove    = "remove"
	opClear     = "clear"
	opMerge     = "merge"
)

const staleViewMessage = "Your cart was updated but could not be reloaded. Pull to refresh."

// StoreParams groups the dependencies of a cart Store.
type StoreParams struct {
	Persistence Persistence
	Catalog     Catalog
	Notifier    notifications.Sink
	Logger      *logger.Logger
	Metrics     *metrics.CartMetrics
}

// Store is the single cart of one application session. While anonymous it
// keeps lines in memory; once bound to a user it mirrors that user's
// persisted rows. Mutations on the same (owner, product) are linearized, and
// Clear is linearized against all of them.
type Store struct {
	persistence Persistence
	catalog     Catalog
	notifier    notifications.Sink
	logg        *logger.Logger
	metrics     *metrics.CartMetrics

	// line writes hold gate for reading, Clear holds it for writing
	gate      sync.RWMutex
	locks     *keyedMutex
	refreshes singleflight.Group

	// beforeLocal runs ahead of every local mutation; tests use it to bind
	// the store concurrently.
	beforeLocal func()

	mu      sync.RWMutex
	owner   string
	gen     uint64
	lines   []Line
	seq     uint64
	applied uint64
	subs    map[int]chan []Line
	nextSub int
}

// NewStore builds an anonymous, empty store.
func NewStore(params StoreParams) (*Store, error) {
	if params.Persistence == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart persistence is required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product catalog is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.Discard
	}
	return &Store{
		persistence: params.Persistence,
		catalog:     params.Catalog,
		notifier:    notifier,
		logg:        params.Logger,
		metrics:     params.Metrics,
		locks:       newKeyedMutex(),
		lines:       []Line{},
		subs:        map[int]chan []Line{},
	}, nil
}

// Lines returns a copy of the current snapshot.
func (s *Store) Lines() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyLines(s.lines)
}

// Owner returns the bound user id, or "" while anonymous.
func (s *Store) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// IsRemote reports whether the store mirrors a persisted account cart.
func (s *Store) IsRemote() bool {
	return s.Owner() != ""
}

// Subtotal sums price times quantity over the snapshot.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Total())
	}
	return total
}

// Count sums quantities; it drives the cart badge.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// Subscribe returns a feed of snapshots. The channel keeps only the newest
// snapshot when the reader falls behind. Call the returned func to stop.
func (s *Store) Subscribe() (<-chan []Line, func()) {
	ch := make(chan []Line, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// AddOrIncrement adds delta units of product, creating the line when absent.
func (s *Store) AddOrIncrement(ctx context.Context, product Product, delta int) error {
	if strings.TrimSpace(product.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if delta < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity to add must be at least 1")
	}

	owner, gen := s.mutateLocal(func() bool {
		if i := s.indexOf(product.ID); i >= 0 {
			s.lines[i].Quantity += delta
		} else {
			s.lines = append(s.lines, lineFromProduct(product, delta))
		}
		return true
	})
	if owner == "" {
		s.metrics.ObserveMutation(opAdd, nil)
		return nil
	}

	err := s.withLine(owner, product.ID, func() error {
		return s.incrementRemote(ctx, owner, product.ID, delta)
	})
	return s.finishRemote(ctx, opAdd, owner, gen, product.ID, err)
}

// DecrementOrRemove lowers the quantity by delta and removes the line at zero.
// A product that is not in the cart is left alone.
func (s *Store) DecrementOrRemove(ctx context.Context, productID string, delta int) error {
	if delta < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity to remove must be at least 1")
	}

	owner, gen := s.mutateLocal(func() bool {
		i := s.indexOf(productID)
		if i < 0 {
			return false
		}
		if next := s.lines[i].Quantity - delta; next > 0 {
			s.lines[i].Quantity = next
		} else {
			s.removeAt(i)
		}
		return true
	})
	if owner == "" {
		s.metrics.ObserveMutation(opDecrement, nil)
		return nil
	}

	err := s.withLine(owner, productID, func() error {
		row, err := s.persistence.Get(ctx, owner, productID)
		if err != nil || row == nil {
			return err
		}
		if next := row.Quantity - delta; next > 0 {
			return s.persistence.Upsert(ctx, owner, productID, next)
		}
		return s.persistence.Delete(ctx, owner, productID)
	})
	return s.finishRemote(ctx, opDecrement, owner, gen, productID, err)
}

// SetQuantity replaces the quantity of an existing line; zero or less removes it.
func (s *Store) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return s.remove(ctx, opSet, productID)
	}

	owner, gen := s.mutateLocal(func() bool {
		i := s.indexOf(productID)
		if i < 0 {
			return false
		}
		s.lines[i].Quantity = quantity
		return true
	})
	if owner == "" {
		s.metrics.ObserveMutation(opSet, nil)
		return nil
	}

	err := s.withLine(owner, productID, func() error {
		row, err := s.persistence.Get(ctx, owner, productID)
		if err != nil || row == nil {
			return err
		}
		return s.persistence.Upsert(ctx, owner, productID, quantity)
	})
	return s.finishRemote(ctx, opSet, owner, gen, productID, err)
}

// Remove deletes the line for productID if present.
func (s *Store) Remove(ctx context.Context, productID string) error {
	return s.remove(ctx, opRemove, productID)
}

func (s *Store) remove(ctx context.Context, op, productID string) error {
	owner, gen := s.mutateLocal(func() bool {
		i := s.indexOf(productID)
		if i < 0 {
			return false
		}
		s.removeAt(i)
		return true
	})
	if owner == "" {
		s.metrics.ObserveMutation(op, nil)
		return nil
	}

	err := s.withLine(owner, productID, func() error {
		return s.persistence.Delete(ctx, owner, productID)
	})
	return s.finishRemote(ctx, op, owner, gen, productID, err)
}

// Clear empties the cart. Clearing an empty cart succeeds.
func (s *Store) Clear(ctx context.Context) error {
	owner, gen := s.mutateLocal(func() bool {
		if len(s.lines) == 0 {
			return false
		}
		s.lines = []Line{}
		return true
	})
	if owner == "" {
		s.metrics.ObserveMutation(opClear, nil)
		return nil
	}

	s.gate.Lock()
	err := s.persistence.DeleteAll(ctx, owner)
	s.gate.Unlock()
	return s.finishRemote(ctx, opClear, owner, gen, "", err)
}

// Refresh re-reads the account cart. Concurrent calls for the same owner share
// one read. Anonymous stores have nothing to refresh.
func (s *Store) Refresh(ctx context.Context) error {
	owner, gen := s.binding()
	if owner == "" {
		return nil
	}
	_, err, _ := s.refreshes.Do(owner, func() (any, error) {
		return nil, s.refresh(ctx, owner, gen)
	})
	if err != nil {
		s.logg.Warn(s.logg.WithUserID(ctx, owner), "cart refresh failed: "+err.Error())
	}
	return err
}

func (s *Store) refresh(ctx context.Context, owner string, gen uint64) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	rows, err := s.persistence.List(ctx, owner)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeCartPersistence, err, "list account cart")
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	products, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve cart products")
	}
	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = Product{ID: p.ID, Name: p.Name, Price: p.Price, ImageRef: p.ImageURL}
	}

	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		p, ok := byID[row.ProductID]
		if !ok {
			s.logg.Debug(s.logg.WithProductID(ctx, row.ProductID), "cart row skipped: product not in catalog")
			continue
		}
		if row.Quantity < 1 {
			continue
		}
		lines = append(lines, lineFromProduct(p, row.Quantity))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || seq <= s.applied {
		return nil
	}
	s.applied = seq
	s.lines = lines
	s.publishLocked()
	return nil
}

// incrementRemote performs the read-modify-write for one row. Callers hold the line lock.
func (s *Store) incrementRemote(ctx context.Context, owner, productID string, delta int) error {
	row, err := s.persistence.Get(ctx, owner, productID)
	if err != nil {
		return err
	}
	next := delta
	if row != nil {
		next += row.Quantity
	}
	return s.persistence.Upsert(ctx, owner, productID, next)
}

func (s *Store) withLine(owner, productID string, fn func() error) error {
	s.gate.RLock()
	defer s.gate.RUnlock()
	unlock := s.locks.Lock(lineKey(owner, productID))
	defer unlock()
	return fn()
}

// mutateLocal applies fn to the in-memory lines if the store is still
// anonymous and publishes when fn reports a change. Otherwise it leaves the
// lines alone and returns the binding the caller must write through.
func (s *Store) mutateLocal(fn func() bool) (string, uint64) {
	if s.beforeLocal != nil {
		s.beforeLocal()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != "" {
		return s.owner, s.gen
	}
	if fn() {
		s.publishLocked()
	}
	return "", s.gen
}

// finishRemote maps a persistence failure to the cart taxonomy and notifies the
// user, or refreshes the mirror after a successful write. A write whose
// refresh fails twice is reported as a stale view so the caller does not
// trust Lines().
func (s *Store) finishRemote(ctx context.Context, op, owner string, gen uint64, productID string, err error) error {
	s.metrics.ObserveMutation(op, err)
	ctx = s.logg.WithUserID(ctx, owner)
	if productID != "" {
		ctx = s.logg.WithProductID(ctx, productID)
	}
	if err != nil {
		wrapped := pkgerrors.Wrap(pkgerrors.CodeCartPersistence, err, "cart "+op+" failed")
		s.logg.Error(ctx, "cart mutation failed", err)
		s.notifier.Notify(ctx, notifications.Error(pkgerrors.PublicMessage(wrapped)))
		return wrapped
	}
	rerr := s.refresh(ctx, owner, gen)
	if rerr == nil {
		return nil
	}
	s.logg.Warn(ctx, "cart refresh after "+op+" failed, retrying: "+rerr.Error())
	if rerr = s.Refresh(ctx); rerr == nil {
		return nil
	}
	stale := pkgerrors.Wrap(pkgerrors.CodeCartPersistence, rerr, "cart "+op+" saved but the cart view is stale").
		WithDetails(StaleView{Op: op})
	s.notifier.Notify(ctx, notifications.Info(staleViewMessage))
	return stale
}

// binding returns the current owner and its generation.
func (s *Store) binding() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, s.gen
}

// bindUser attaches the store to userID and returns the lines held at that
// moment. When keepLines is set the snapshot stays visible until the next
// refresh replaces it.
func (s *Store) bindUser(userID string, keepLines bool) ([]Line, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	captured := copyLines(s.lines)
	s.owner = userID
	s.gen++
	if !keepLines {
		s.lines = []Line{}
		s.publishLocked()
	}
	return captured, s.gen
}

// resetAnonymous drops the binding and starts an empty local cart.
func (s *Store) resetAnonymous() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = ""
	s.gen++
	s.lines = []Line{}
	s.publishLocked()
}

// mergeLine adds one captured line to the account cart without refreshing.
func (s *Store) mergeLine(ctx context.Context, owner string, line Line) error {
	err := s.withLine(owner, line.ProductID, func() error {
		return s.incrementRemote(ctx, owner, line.ProductID, line.Quantity)
	})
	s.metrics.ObserveMutation(opMerge, err)
	return err
}

func (s *Store) indexOf(productID string) int {
	for i, l := range s.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) removeAt(i int) {
	s.lines = append(s.lines[:i:i], s.lines[i+1:]...)
}

// publishLocked pushes the snapshot to subscribers. Callers hold s.mu.
func (s *Store) publishLocked() {
	for _, ch := range s.subs {
		snapshot := copyLines(s.lines)
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}
