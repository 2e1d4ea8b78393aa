// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/stay-engine/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements core.TxStore with maps keyed by tenant. WithTx holds the
// write lock for the whole unit of work, so transactions are serialized.
type Memory struct {
	mu sync.RWMutex
	data
}

type data struct {
	tenants  map[core.TenantID]core.Tenant
	units    map[tenantKey]core.Unit
	guests   map[tenantKey]core.Guest
	bookings map[tenantKey]core.Booking
	charges  map[tenantKey]core.Charge
	payments map[tenantKey]core.Payment
	events   map[tenantKey]core.CheckEvent
	seq      int64 // insertion order for stable listing
	order    map[tenantKey]int64
}

type tenantKey struct {
	Tenant core.TenantID
	ID     string
}

func key(t core.TenantID, id any) tenantKey {
	switch v := id.(type) {
	case core.UnitID:
		return tenantKey{t, "unit:" + string(v)}
	case core.GuestID:
		return tenantKey{t, "guest:" + string(v)}
	case core.BookingID:
		return tenantKey{t, "booking:" + string(v)}
	case core.ChargeID:
		return tenantKey{t, "charge:" + string(v)}
	case core.PaymentID:
		return tenantKey{t, "payment:" + string(v)}
	case core.CheckEventID:
		return tenantKey{t, "event:" + string(v)}
	}
	panic("memory store: unsupported id type")
}

func NewMemory() *Memory {
	return &Memory{data: newData()}
}

func newData() data {
	return data{
		tenants:  make(map[core.TenantID]core.Tenant),
		units:    make(map[tenantKey]core.Unit),
		guests:   make(map[tenantKey]core.Guest),
		bookings: make(map[tenantKey]core.Booking),
		charges:  make(map[tenantKey]core.Charge),
		payments: make(map[tenantKey]core.Payment),
		events:   make(map[tenantKey]core.CheckEvent),
		order:    make(map[tenantKey]int64),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(core.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&view{d: &m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (d *data) clone() data {
	c := newData()
	for k, v := range d.tenants {
		c.tenants[k] = v
	}
	for k, v := range d.units {
		c.units[k] = v
	}
	for k, v := range d.guests {
		c.guests[k] = v
	}
	for k, v := range d.bookings {
		c.bookings[k] = v
	}
	for k, v := range d.charges {
		c.charges[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	for k, v := range d.order {
		c.order[k] = v
	}
	c.seq = d.seq
	return c
}

// Reset drops every row.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = newData()
	return nil
}

// read runs fn against the data under the read lock.
func (m *Memory) read(fn func(s core.Store) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&view{d: &m.data})
}

// write runs fn against the data under the write lock.
func (m *Memory) write(fn func(s core.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{d: &m.data})
}

// =============================================================================
// LOCKED ENTRY POINTS (core.Store)
// =============================================================================

func (m *Memory) GetTenant(ctx context.Context, id core.TenantID) (t *core.Tenant, err error) {
	err = m.read(func(s core.Store) error { t, err = s.GetTenant(ctx, id); return err })
	return
}

func (m *Memory) ListTenants(ctx context.Context) (ts []core.Tenant, err error) {
	err = m.read(func(s core.Store) error { ts, err = s.ListTenants(ctx); return err })
	return
}

func (m *Memory) ListBookingTenants(ctx context.Context) (ids []core.TenantID, err error) {
	err = m.read(func(s core.Store) error { ids, err = s.ListBookingTenants(ctx); return err })
	return
}

func (m *Memory) SaveTenant(ctx context.Context, t core.Tenant) error {
	return m.write(func(s core.Store) error { return s.SaveTenant(ctx, t) })
}

func (m *Memory) GetUnit(ctx context.Context, tid core.TenantID, id core.UnitID) (u *core.Unit, err error) {
	err = m.read(func(s core.Store) error { u, err = s.GetUnit(ctx, tid, id); return err })
	return
}

func (m *Memory) SaveUnit(ctx context.Context, tid core.TenantID, u core.Unit) error {
	return m.write(func(s core.Store) error { return s.SaveUnit(ctx, tid, u) })
}

func (m *Memory) GetGuest(ctx context.Context, tid core.TenantID, id core.GuestID) (g *core.Guest, err error) {
	err = m.read(func(s core.Store) error { g, err = s.GetGuest(ctx, tid, id); return err })
	return
}

func (m *Memory) SaveGuest(ctx context.Context, tid core.TenantID, g core.Guest) error {
	return m.write(func(s core.Store) error { return s.SaveGuest(ctx, tid, g) })
}

func (m *Memory) GetBooking(ctx context.Context, tid core.TenantID, id core.BookingID) (b *core.Booking, err error) {
	err = m.read(func(s core.Store) error { b, err = s.GetBooking(ctx, tid, id); return err })
	return
}

func (m *Memory) ListBookings(ctx context.Context, tid core.TenantID, f core.BookingFilter) (bs []core.Booking, err error) {
	err = m.read(func(s core.Store) error { bs, err = s.ListBookings(ctx, tid, f); return err })
	return
}

func (m *Memory) FindOverlapping(ctx context.Context, tid core.TenantID, unitID core.UnitID, stay core.Interval, exclude core.BookingID) (bs []core.Booking, err error) {
	err = m.read(func(s core.Store) error { bs, err = s.FindOverlapping(ctx, tid, unitID, stay, exclude); return err })
	return
}

func (m *Memory) FindCheckedIn(ctx context.Context, tid core.TenantID, unitID core.UnitID, exclude core.BookingID) (bs []core.Booking, err error) {
	err = m.read(func(s core.Store) error { bs, err = s.FindCheckedIn(ctx, tid, unitID, exclude); return err })
	return
}

func (m *Memory) InsertBooking(ctx context.Context, tid core.TenantID, b core.Booking) error {
	return m.write(func(s core.Store) error { return s.InsertBooking(ctx, tid, b) })
}

func (m *Memory) UpdateBooking(ctx context.Context, tid core.TenantID, b core.Booking) error {
	return m.write(func(s core.Store) error { return s.UpdateBooking(ctx, tid, b) })
}

func (m *Memory) DeleteBooking(ctx context.Context, tid core.TenantID, id core.BookingID) error {
	return m.write(func(s core.Store) error { return s.DeleteBooking(ctx, tid, id) })
}

func (m *Memory) ListCharges(ctx context.Context, tid core.TenantID, bid core.BookingID) (cs []core.Charge, err error) {
	err = m.read(func(s core.Store) error { cs, err = s.ListCharges(ctx, tid, bid); return err })
	return
}

func (m *Memory) GetCharge(ctx context.Context, tid core.TenantID, id core.ChargeID) (c *core.Charge, err error) {
	err = m.read(func(s core.Store) error { c, err = s.GetCharge(ctx, tid, id); return err })
	return
}

func (m *Memory) InsertCharge(ctx context.Context, tid core.TenantID, c core.Charge) error {
	return m.write(func(s core.Store) error { return s.InsertCharge(ctx, tid, c) })
}

func (m *Memory) UpdateCharge(ctx context.Context, tid core.TenantID, c core.Charge) error {
	return m.write(func(s core.Store) error { return s.UpdateCharge(ctx, tid, c) })
}

func (m *Memory) DeleteCharges(ctx context.Context, tid core.TenantID, bid core.BookingID) error {
	return m.write(func(s core.Store) error { return s.DeleteCharges(ctx, tid, bid) })
}

func (m *Memory) ListPayments(ctx context.Context, tid core.TenantID, bid core.BookingID) (ps []core.Payment, err error) {
	err = m.read(func(s core.Store) error { ps, err = s.ListPayments(ctx, tid, bid); return err })
	return
}

func (m *Memory) GetPayment(ctx context.Context, tid core.TenantID, id core.PaymentID) (p *core.Payment, err error) {
	err = m.read(func(s core.Store) error { p, err = s.GetPayment(ctx, tid, id); return err })
	return
}

func (m *Memory) InsertPayment(ctx context.Context, tid core.TenantID, p core.Payment) error {
	return m.write(func(s core.Store) error { return s.InsertPayment(ctx, tid, p) })
}

func (m *Memory) UpdatePayment(ctx context.Context, tid core.TenantID, p core.Payment) error {
	return m.write(func(s core.Store) error { return s.UpdatePayment(ctx, tid, p) })
}

func (m *Memory) DeletePayments(ctx context.Context, tid core.TenantID, bid core.BookingID, states ...core.PaymentState) error {
	return m.write(func(s core.Store) error { return s.DeletePayments(ctx, tid, bid, states...) })
}

func (m *Memory) AppendCheckEvent(ctx context.Context, tid core.TenantID, e core.CheckEvent) error {
	return m.write(func(s core.Store) error { return s.AppendCheckEvent(ctx, tid, e) })
}

func (m *Memory) ListCheckEvents(ctx context.Context, tid core.TenantID, bid core.BookingID) (es []core.CheckEvent, err error) {
	err = m.read(func(s core.Store) error { es, err = s.ListCheckEvents(ctx, tid, bid); return err })
	return
}

func (m *Memory) DeleteCheckEvents(ctx context.Context, tid core.TenantID, bid core.BookingID) error {
	return m.write(func(s core.Store) error { return s.DeleteCheckEvents(ctx, tid, bid) })
}

// =============================================================================
// VIEW - Unlocked access used inside a held lock
// =============================================================================

type view struct {
	d *data
}

func (v *view) touch(k tenantKey) {
	if _, ok := v.d.order[k]; !ok {
		v.d.seq++
		v.d.order[k] = v.d.seq
	}
}

func (v *view) GetTenant(_ context.Context, id core.TenantID) (*core.Tenant, error) {
	t, ok := v.d.tenants[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (v *view) ListTenants(_ context.Context) ([]core.Tenant, error) {
	out := make([]core.Tenant, 0, len(v.d.tenants))
	for _, t := range v.d.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) SaveTenant(_ context.Context, t core.Tenant) error {
	v.d.tenants[t.ID] = t
	return nil
}

func (v *view) GetUnit(_ context.Context, tid core.TenantID, id core.UnitID) (*core.Unit, error) {
	u, ok := v.d.units[key(tid, id)]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (v *view) SaveUnit(_ context.Context, tid core.TenantID, u core.Unit) error {
	u.TenantID = tid
	v.d.units[key(tid, u.ID)] = u
	return nil
}

func (v *view) GetGuest(_ context.Context, tid core.TenantID, id core.GuestID) (*core.Guest, error) {
	g, ok := v.d.guests[key(tid, id)]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (v *view) SaveGuest(_ context.Context, tid core.TenantID, g core.Guest) error {
	g.TenantID = tid
	v.d.guests[key(tid, g.ID)] = g
	return nil
}

func (v *view) GetBooking(_ context.Context, tid core.TenantID, id core.BookingID) (*core.Booking, error) {
	b, ok := v.d.bookings[key(tid, id)]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (v *view) ListBookingTenants(_ context.Context) ([]core.TenantID, error) {
	seen := map[core.TenantID]bool{}
	var out []core.TenantID
	for _, b := range v.d.bookings {
		if !seen[b.TenantID] {
			seen[b.TenantID] = true
			out = append(out, b.TenantID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (v *view) ListBookings(_ context.Context, tid core.TenantID, f core.BookingFilter) ([]core.Booking, error) {
	var out []core.Booking
	for _, b := range v.d.bookings {
		if b.TenantID != tid || !matches(b, f) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Stay.CheckIn.Equal(out[j].Stay.CheckIn) {
			return out[i].Stay.CheckIn.Before(out[j].Stay.CheckIn)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(b core.Booking, f core.BookingFilter) bool {
	if f.UnitID != "" && b.UnitID != f.UnitID {
		return false
	}
	if f.GuestID != "" && b.GuestID != f.GuestID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if b.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && !b.Stay.CheckOut.After(*f.From) {
		return false
	}
	if f.To != nil && !b.Stay.CheckIn.Before(*f.To) {
		return false
	}
	return true
}

func (v *view) FindOverlapping(_ context.Context, tid core.TenantID, unitID core.UnitID, stay core.Interval, exclude core.BookingID) ([]core.Booking, error) {
	var out []core.Booking
	for _, b := range v.d.bookings {
		if b.TenantID != tid || b.UnitID != unitID || b.ID == exclude {
			continue
		}
		if b.Status.IsActive() && b.Stay.Overlaps(stay) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stay.CheckIn.Before(out[j].Stay.CheckIn) })
	return out, nil
}

func (v *view) FindCheckedIn(_ context.Context, tid core.TenantID, unitID core.UnitID, exclude core.BookingID) ([]core.Booking, error) {
	var out []core.Booking
	for _, b := range v.d.bookings {
		if b.TenantID == tid && b.UnitID == unitID && b.ID != exclude && b.Status == core.StatusCheckedIn {
			out = append(out, b)
		}
	}
	return out, nil
}

func (v *view) InsertBooking(_ context.Context, tid core.TenantID, b core.Booking) error {
	b.TenantID = tid
	k := key(tid, b.ID)
	v.d.bookings[k] = b
	v.touch(k)
	return nil
}

func (v *view) UpdateBooking(_ context.Context, tid core.TenantID, b core.Booking) error {
	k := key(tid, b.ID)
	if _, ok := v.d.bookings[k]; !ok {
		return core.NotFound("booking", b.ID)
	}
	b.TenantID = tid
	v.d.bookings[k] = b
	return nil
}

func (v *view) DeleteBooking(_ context.Context, tid core.TenantID, id core.BookingID) error {
	k := key(tid, id)
	delete(v.d.bookings, k)
	delete(v.d.order, k)
	return nil
}

func (v *view) ListCharges(_ context.Context, tid core.TenantID, bid core.BookingID) ([]core.Charge, error) {
	var out []core.Charge
	for k, c := range v.d.charges {
		if k.Tenant == tid && c.BookingID == bid {
			out = append(out, c)
		}
	}
	v.sortByOrder(len(out), func(i int) tenantKey { return key(tid, out[i].ID) }, func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

func (v *view) GetCharge(_ context.Context, tid core.TenantID, id core.ChargeID) (*core.Charge, error) {
	c, ok := v.d.charges[key(tid, id)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (v *view) InsertCharge(_ context.Context, tid core.TenantID, c core.Charge) error {
	c.TenantID = tid
	k := key(tid, c.ID)
	v.d.charges[k] = c
	v.touch(k)
	return nil
}

func (v *view) UpdateCharge(_ context.Context, tid core.TenantID, c core.Charge) error {
	k := key(tid, c.ID)
	if _, ok := v.d.charges[k]; !ok {
		return core.NotFound("charge", c.ID)
	}
	c.TenantID = tid
	v.d.charges[k] = c
	return nil
}

func (v *view) DeleteCharges(_ context.Context, tid core.TenantID, bid core.BookingID) error {
	for k, c := range v.d.charges {
		if k.Tenant == tid && c.BookingID == bid {
			delete(v.d.charges, k)
			delete(v.d.order, k)
		}
	}
	return nil
}

func (v *view) ListPayments(_ context.Context, tid core.TenantID, bid core.BookingID) ([]core.Payment, error) {
	var out []core.Payment
	for k, p := range v.d.payments {
		if k.Tenant == tid && p.BookingID == bid {
			out = append(out, p)
		}
	}
	v.sortByOrder(len(out), func(i int) tenantKey { return key(tid, out[i].ID) }, func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

func (v *view) GetPayment(_ context.Context, tid core.TenantID, id core.PaymentID) (*core.Payment, error) {
	p, ok := v.d.payments[key(tid, id)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (v *view) InsertPayment(_ context.Context, tid core.TenantID, p core.Payment) error {
	p.TenantID = tid
	k := key(tid, p.ID)
	v.d.payments[k] = p
	v.touch(k)
	return nil
}

func (v *view) UpdatePayment(_ context.Context, tid core.TenantID, p core.Payment) error {
	k := key(tid, p.ID)
	if _, ok := v.d.payments[k]; !ok {
		return core.NotFound("payment", p.ID)
	}
	p.TenantID = tid
	v.d.payments[k] = p
	return nil
}

func (v *view) DeletePayments(_ context.Context, tid core.TenantID, bid core.BookingID, states ...core.PaymentState) error {
	for k, p := range v.d.payments {
		if k.Tenant != tid || p.BookingID != bid {
			continue
		}
		for _, s := range states {
			if p.Status == s {
				delete(v.d.payments, k)
				delete(v.d.order, k)
				break
			}
		}
	}
	return nil
}

func (v *view) AppendCheckEvent(_ context.Context, tid core.TenantID, e core.CheckEvent) error {
	e.TenantID = tid
	k := key(tid, e.ID)
	v.d.events[k] = e
	v.touch(k)
	return nil
}

func (v *view) ListCheckEvents(_ context.Context, tid core.TenantID, bid core.BookingID) ([]core.CheckEvent, error) {
	var out []core.CheckEvent
	for k, e := range v.d.events {
		if k.Tenant == tid && e.BookingID == bid {
			out = append(out, e)
		}
	}
	v.sortByOrder(len(out), func(i int) tenantKey { return key(tid, out[i].ID) }, func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

func (v *view) DeleteCheckEvents(_ context.Context, tid core.TenantID, bid core.BookingID) error {
	for k, e := range v.d.events {
		if k.Tenant == tid && e.BookingID == bid {
			delete(v.d.events, k)
			delete(v.d.order, k)
		}
	}
	return nil
}

// sortByOrder sorts n items by insertion sequence (insertion sort; lists are short).
func (v *view) sortByOrder(n int, keyAt func(int) tenantKey, swap func(i, j int)) {
	for i := 1; i < n; i++ {
		for j := i; j > 0 && v.d.order[keyAt(j)] < v.d.order[keyAt(j-1)]; j-- {
			swap(j, j-1)
		}
	}
}

var _ core.TxStore = (*Memory)(nil)
