package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"reservation-service/internal/models"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory catalog and ledger without transactions
type memStore struct {
	mu        sync.Mutex
	listings  map[int64]*models.Listing
	orders    map[int64]*models.Order
	processed map[string]bool

	nextListingID int64
	nextOrderID   int64

	insertErr         error
	incrementFailures int
	incrementCalls    int
	markFailures      int
	statusErr         error
}

func newMemStore() *memStore {
	return &memStore{
		listings:  make(map[int64]*models.Listing),
		orders:    make(map[int64]*models.Order),
		processed: make(map[string]bool),
	}
}

func (m *memStore) addListing(restaurantID int64, quantity int, unitPrice int64) *models.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextListingID++
	l := &models.Listing{
		ID:                m.nextListingID,
		RestaurantID:      restaurantID,
		Name:              fmt.Sprintf("Surprise bag %d", m.nextListingID),
		OriginalPrice:     unitPrice * 2,
		UnitPrice:         unitPrice,
		QuantityAvailable: quantity,
		QuantityPosted:    quantity,
		PickupStart:       time.Now(),
		PickupEnd:         time.Now().Add(2 * time.Hour),
	}
	m.listings[l.ID] = l
	cp := *l
	return &cp
}

func (m *memStore) available(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listings[id].QuantityAvailable
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) held(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heldLocked(id)
}

func (m *memStore) heldLocked(id int64) int {
	held := 0
	for _, o := range m.orders {
		if o.ListingID == id && o.Status.Holds() {
			held += o.Quantity
		}
	}
	return held
}

func (m *memStore) setStatus(id int64, status models.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id].Status = status
}

func (m *memStore) GetListing(_ context.Context, id int64) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrListingNotFound, id)
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) ConditionalDecrement(_ context.Context, listingID int64, amount int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok || l.QuantityAvailable < amount {
		return false, nil
	}
	l.QuantityAvailable -= amount
	return true, nil
}

func (m *memStore) Increment(_ context.Context, listingID int64, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incrementCalls++
	if m.incrementFailures != 0 {
		if m.incrementFailures > 0 {
			m.incrementFailures--
		}
		return errStoreDown
	}
	return m.incrementLocked(listingID, amount)
}

func (m *memStore) incrementLocked(listingID int64, amount int) error {
	l, ok := m.listings[listingID]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrListingNotFound, listingID)
	}
	l.QuantityAvailable += amount
	if l.QuantityAvailable > l.QuantityPosted {
		l.QuantityAvailable = l.QuantityPosted
	}
	return nil
}

func (m *memStore) InsertOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.insertLocked(order)
	return nil
}

func (m *memStore) insertLocked(order *models.Order) {
	m.nextOrderID++
	order.ID = m.nextOrderID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	m.orders[order.ID] = &cp
}

func (m *memStore) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, change models.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return m.statusErr
	}
	_, err := m.casLocked(change)
	return err
}

func (m *memStore) casLocked(change models.StatusChange) (*models.Order, error) {
	o, ok := m.orders[change.OrderID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, change.OrderID)
	}
	if o.Status != change.From {
		return nil, fmt.Errorf("%w: order %d", models.ErrStatusConflict, change.OrderID)
	}
	o.Status = change.To
	if change.To == models.OrderStatusCancelled {
		o.CancelledBy = change.ActorID
	}
	o.UpdatedAt = time.Now()
	return o, nil
}

func (m *memStore) ListOrders(_ context.Context, filter models.OrderFilter) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := []models.Order{}
	for _, o := range m.orders {
		switch {
		case filter.CustomerID != "" && o.CustomerID != filter.CustomerID:
		case filter.RestaurantID != 0 && o.RestaurantID != filter.RestaurantID:
		case filter.ListingID != 0 && o.ListingID != filter.ListingID:
		case filter.Status != "" && o.Status != filter.Status:
		default:
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func (m *memStore) CreateListing(_ context.Context, l *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextListingID++
	l.ID = m.nextListingID
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	cp := *l
	m.listings[l.ID] = &cp
	return nil
}

func (m *memStore) ListListings(_ context.Context, restaurantID int64, limit, offset int) ([]models.Listing, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []models.Listing{}
	for _, l := range m.listings {
		if restaurantID == 0 || l.RestaurantID == restaurantID {
			all = append(all, *l)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return []models.Listing{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memStore) UpdateListingDetails(_ context.Context, l *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.listings[l.ID]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrListingNotFound, l.ID)
	}
	l.QuantityAvailable = cur.QuantityAvailable
	l.QuantityPosted = cur.QuantityPosted
	cp := *l
	m.listings[l.ID] = &cp
	return nil
}

func (m *memStore) Restock(_ context.Context, listingID int64, amount int) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrListingNotFound, listingID)
	}
	l.QuantityAvailable += amount
	l.QuantityPosted += amount
	cp := *l
	return &cp, nil
}

func (m *memStore) DeleteListing(_ context.Context, listingID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[listingID]; !ok {
		return fmt.Errorf("%w: %d", models.ErrListingNotFound, listingID)
	}
	for _, o := range m.orders {
		if o.ListingID == listingID {
			return fmt.Errorf("%w: listing %d has orders", models.ErrConflict, listingID)
		}
	}
	delete(m.listings, listingID)
	return nil
}

func (m *memStore) GetStockLevel(_ context.Context, listingID int64) (*models.StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrListingNotFound, listingID)
	}
	return &models.StockLevel{ListingID: l.ID, Available: l.QuantityAvailable}, nil
}

func (m *memStore) ListStockLevels(_ context.Context) ([]models.StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	levels := []models.StockLevel{}
	for _, l := range m.listings {
		levels = append(levels, models.StockLevel{ListingID: l.ID, Available: l.QuantityAvailable})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].ListingID < levels[j].ListingID })
	return levels, nil
}

func (m *memStore) HeldQuantity(_ context.Context, listingID int64) (int, error) {
	return m.held(listingID), nil
}

// SettleCompensation mirrors the store's single transaction: a failure at
// any step leaves both stock and the processed set unchanged
func (m *memStore) SettleCompensation(_ context.Context, alert *models.CompensationFailedEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed[alert.EventID] {
		return false, nil
	}

	m.incrementCalls++
	if m.incrementFailures != 0 {
		if m.incrementFailures > 0 {
			m.incrementFailures--
		}
		return false, errStoreDown
	}
	l, ok := m.listings[alert.ListingID]
	if !ok {
		m.processed[alert.EventID] = true
		return false, fmt.Errorf("%w: %d", models.ErrListingNotFound, alert.ListingID)
	}
	before := l.QuantityAvailable
	if err := m.incrementLocked(alert.ListingID, alert.Quantity); err != nil {
		return false, err
	}
	if m.markFailures > 0 {
		m.markFailures--
		l.QuantityAvailable = before
		return false, errStoreDown
	}
	m.processed[alert.EventID] = true
	return true, nil
}

// txStore adds all-or-nothing placement and cancellation to memStore
type txStore struct {
	*memStore
}

func (t txStore) PlaceOrderTx(_ context.Context, order *models.Order) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.listings[order.ListingID]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrListingNotFound, order.ListingID)
	}
	if l.QuantityAvailable < order.Quantity {
		return fmt.Errorf("%w: listing %d", models.ErrInsufficientStock, order.ListingID)
	}
	if t.insertErr != nil {
		return fmt.Errorf("%w: insert: %v", models.ErrOrderPersistenceFailed, t.insertErr)
	}

	l.QuantityAvailable -= order.Quantity
	order.UnitPrice = l.UnitPrice
	order.RestaurantID = l.RestaurantID
	order.TotalPrice = l.UnitPrice * int64(order.Quantity)
	t.insertLocked(order)
	return nil
}

func (t txStore) CancelOrderTx(_ context.Context, change models.StatusChange) (*models.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, err := t.casLocked(change)
	if err != nil {
		return nil, err
	}
	if err := t.incrementLocked(o.ListingID, o.Quantity); err != nil {
		return nil, err
	}
	cp := *o
	return &cp, nil
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu       sync.Mutex
	placed   []*models.OrderPlacedEvent
	changed  []*models.OrderStatusChangedEvent
	canceled []*models.OrderCancelledEvent
	restocks []*models.ListingRestockedEvent
	alerts   []*models.CompensationFailedEvent
	settled  []*models.CompensationSettledEvent
	err      error
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, e)
	return p.err
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return p.err
}

func (p *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = append(p.canceled, e)
	return p.err
}

func (p *recordingPublisher) PublishListingRestocked(_ context.Context, e *models.ListingRestockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restocks = append(p.restocks, e)
	return p.err
}

func (p *recordingPublisher) PublishCompensationFailed(_ context.Context, e *models.CompensationFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, e)
	return p.err
}

func (p *recordingPublisher) PublishCompensationSettled(_ context.Context, e *models.CompensationSettledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled = append(p.settled, e)
	return p.err
}

// memMirror is an in-memory availability mirror
type memMirror struct {
	mu     sync.Mutex
	values map[int64]int
	err    error
}

func newMemMirror() *memMirror {
	return &memMirror{values: make(map[int64]int)}
}

func (m *memMirror) SetAvailable(_ context.Context, listingID int64, available int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[listingID] = available
	return nil
}

func (m *memMirror) AdjustAvailable(_ context.Context, listingID int64, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	v, ok := m.values[listingID]
	if !ok {
		return nil
	}
	v += delta
	if v < 0 {
		v = 0
	}
	m.values[listingID] = v
	return nil
}

func (m *memMirror) GetAvailable(_ context.Context, listingID int64) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}
	v, ok := m.values[listingID]
	return v, ok, nil
}

func (m *memMirror) RemoveAvailable(_ context.Context, listingID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.values, listingID)
	return nil
}
