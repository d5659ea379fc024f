package cart

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/betza-storefront/pkg/db/models"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

var errBoom = errors.New("boom")

// memPersistence is an in-memory Persistence with optional latency and failure injection.
type memPersistence struct {
	mu       sync.Mutex
	rows     map[string]map[string]int
	order    map[string][]string
	getDelay time.Duration

	failUpsert map[string]error
	failList   error
	failClear  error
	upserts    int
}

func newMemPersistence() *memPersistence {
	return &memPersistence{
		rows:       map[string]map[string]int{},
		order:      map[string][]string{},
		failUpsert: map[string]error{},
	}
}

func (m *memPersistence) seed(userID, productID string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(userID, productID, qty)
}

func (m *memPersistence) setLocked(userID, productID string, qty int) {
	if m.rows[userID] == nil {
		m.rows[userID] = map[string]int{}
	}
	if _, ok := m.rows[userID][productID]; !ok {
		m.order[userID] = append(m.order[userID], productID)
	}
	m.rows[userID][productID] = qty
}

func (m *memPersistence) quantity(userID, productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[userID][productID]
}

func (m *memPersistence) List(_ context.Context, userID string) ([]models.UserCartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	out := []models.UserCartLine{}
	for _, id := range m.order[userID] {
		if qty, ok := m.rows[userID][id]; ok {
			out = append(out, models.UserCartLine{UserID: userID, ProductID: id, Quantity: qty})
		}
	}
	return out, nil
}

func (m *memPersistence) Get(_ context.Context, userID, productID string) (*models.UserCartLine, error) {
	m.mu.Lock()
	qty, ok := m.rows[userID][productID]
	delay := m.getDelay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		return nil, nil
	}
	return &models.UserCartLine{UserID: userID, ProductID: productID, Quantity: qty}, nil
}

func (m *memPersistence) Upsert(_ context.Context, userID, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failUpsert[productID]; err != nil {
		return err
	}
	m.upserts++
	m.setLocked(userID, productID, quantity)
	return nil
}

func (m *memPersistence) Delete(_ context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows[userID], productID)
	ids := m.order[userID][:0]
	for _, id := range m.order[userID] {
		if id != productID {
			ids = append(ids, id)
		}
	}
	m.order[userID] = ids
	return nil
}

func (m *memPersistence) DeleteAll(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClear != nil {
		return m.failClear
	}
	delete(m.rows, userID)
	delete(m.order, userID)
	return nil
}

type stubCatalog struct {
	products map[string]models.Product
	err      error
}

func newStubCatalog(ids ...string) *stubCatalog {
	c := &stubCatalog{products: map[string]models.Product{}}
	for i, id := range ids {
		c.products[id] = models.Product{
			ID:       id,
			Name:     "Product " + id,
			Price:    decimal.NewFromInt(int64(100 * (i + 1))),
			IsActive: true,
		}
	}
	return c
}

func (c *stubCatalog) FindByIDs(_ context.Context, ids []string) ([]models.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *stubCatalog) product(id string) Product {
	p := c.products[id]
	return Product{ID: p.ID, Name: p.Name, Price: p.Price}
}

func quantities(lines []Line) map[string]int {
	out := make(map[string]int, len(lines))
	for _, l := range lines {
		out[l.ProductID] = l.Quantity
	}
	return out
}

func productIDs(lines []Line) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func testLogger() *logger.Logger {
	return logger.Nop()
}
