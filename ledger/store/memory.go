// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	tenants      map[ledger.TenantID]*ledger.Tenant
	settings     map[ledger.TenantID]*ledger.Settings
	transactions map[dayKey][]ledger.Transaction
	archives     map[archiveKey]ledger.Archive
	audit        []ledger.AuditEntry
}

type dayKey struct {
	Tenant ledger.TenantID
	Date   string
}

type archiveKey struct {
	Tenant ledger.TenantID
	Date   string
	Kind   ledger.ArchiveKind
}

func NewMemory() *Memory {
	return &Memory{
		tenants:      make(map[ledger.TenantID]*ledger.Tenant),
		settings:     make(map[ledger.TenantID]*ledger.Settings),
		transactions: make(map[dayKey][]ledger.Transaction),
		archives:     make(map[archiveKey]ledger.Archive),
	}
}

// ---- tenants ----

func (m *Memory) EnsureTenant(_ context.Context, id ledger.TenantID, timezone string) (*ledger.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureTenantLocked(id, timezone), nil
}

func (m *Memory) ensureTenantLocked(id ledger.TenantID, timezone string) *ledger.Tenant {
	if t, ok := m.tenants[id]; ok {
		return copyTenant(t)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	t := &ledger.Tenant{
		ID:            id,
		Timezone:      timezone,
		ResetHour:     ledger.DefaultResetHour,
		State:         ledger.StateWaitingForStart,
		LedgerEnabled: true,
		CreatedAt:     time.Now().UTC(),
	}
	m.tenants[id] = t
	return copyTenant(t)
}

func (m *Memory) GetTenant(_ context.Context, id ledger.TenantID) (*ledger.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ledger.ErrTenantNotFound
	}
	return copyTenant(t), nil
}

func (m *Memory) ListActiveTenants(_ context.Context) ([]ledger.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, *copyTenant(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateTenantState(_ context.Context, id ledger.TenantID, state ledger.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return ledger.ErrTenantNotFound
	}
	t.State = state
	return nil
}

func (m *Memory) StampAutoReset(_ context.Context, id ledger.TenantID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return ledger.ErrTenantNotFound
	}
	stamp := at
	t.LastAutoReset = &stamp
	return nil
}

// SetTenant overwrites a tenant row. Test helper.
func (m *Memory) SetTenant(t ledger.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = copyTenant(&t)
}

// ---- settings ----

func (m *Memory) EnsureSettings(_ context.Context, id ledger.TenantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settings[id]; !ok {
		s := ledger.DefaultSettings(id)
		m.settings[id] = &s
	}
	return nil
}

func (m *Memory) GetSettings(_ context.Context, id ledger.TenantID) (*ledger.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[id]
	if !ok {
		return nil, ledger.ErrSettingsNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) SetFeeRate(_ context.Context, id ledger.TenantID, dir ledger.FeeDirection, rate decimal.Decimal) error {
	return m.mutateSettings(id, func(s *ledger.Settings) {
		if dir == ledger.FeeOut {
			s.RateOut = rate
		} else {
			s.RateIn = rate
		}
	})
}

func (m *Memory) SetForexRate(_ context.Context, id ledger.TenantID, code string, rate decimal.Decimal) error {
	return m.mutateSettings(id, func(s *ledger.Settings) {
		switch code {
		case ledger.CurrencyUSD:
			s.RateUSD = rate
		case ledger.CurrencyMYR:
			s.RateMYR = rate
		case ledger.CurrencyPHP:
			s.RatePHP = rate
		case ledger.CurrencyTHB:
			s.RateTHB = rate
		}
	})
}

func (m *Memory) SetDisplayMode(_ context.Context, id ledger.TenantID, mode int) error {
	return m.mutateSettings(id, func(s *ledger.Settings) { s.DisplayMode = mode })
}

func (m *Memory) SetDecimals(_ context.Context, id ledger.TenantID, show bool) error {
	return m.mutateSettings(id, func(s *ledger.Settings) { s.ShowDecimals = show })
}

func (m *Memory) mutateSettings(id ledger.TenantID, fn func(*ledger.Settings)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[id]
	if !ok {
		return ledger.ErrSettingsNotFound
	}
	fn(s)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ---- transactions ----

func (m *Memory) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(tx)
}

func (m *Memory) insertLocked(tx ledger.Transaction) error {
	k := dayKey{Tenant: tx.TenantID, Date: tx.BusinessDate}
	txs := m.transactions[k]

	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].RecordedAt.After(tx.RecordedAt)
	})
	txs = append(txs, ledger.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[k] = txs
	return nil
}

func (m *Memory) TransactionsForDate(_ context.Context, id ledger.TenantID, businessDate string) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k := dayKey{Tenant: id, Date: businessDate}
	result := make([]ledger.Transaction, len(m.transactions[k]))
	copy(result, m.transactions[k])
	return result, nil
}

func (m *Memory) UpdateTransactionAmounts(_ context.Context, txID string, feeRate, feeAmount, netAmount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, txs := range m.transactions {
		for i := range txs {
			if txs[i].ID == txID {
				txs[i].FeeRate = feeRate
				txs[i].FeeAmount = feeAmount
				txs[i].NetAmount = netAmount
				m.transactions[k] = txs
				return nil
			}
		}
	}
	return nil
}

func (m *Memory) DeleteTransactionsForDate(_ context.Context, id ledger.TenantID, businessDate string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := dayKey{Tenant: id, Date: businessDate}
	n := int64(len(m.transactions[k]))
	delete(m.transactions, k)
	return n, nil
}

// ---- archives ----

func (m *Memory) SaveArchive(_ context.Context, a ledger.Archive) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archives[archiveKey{Tenant: a.TenantID, Date: a.BusinessDate, Kind: a.Kind}] = a
	return nil
}

func (m *Memory) GetArchive(_ context.Context, id ledger.TenantID, businessDate string, kind ledger.ArchiveKind) (*ledger.Archive, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.archives[archiveKey{Tenant: id, Date: businessDate, Kind: kind}]
	if !ok {
		return nil, nil
	}
	cp := a
	return &cp, nil
}

func (m *Memory) HasArchive(_ context.Context, id ledger.TenantID, businessDate string, kind ledger.ArchiveKind) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.archives[archiveKey{Tenant: id, Date: businessDate, Kind: kind}]
	return ok, nil
}

// ---- audit ----

func (m *Memory) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

// AuditEntries returns a copy of the audit log. Test helper.
func (m *Memory) AuditEntries() []ledger.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

// ---- retention ----

func (m *Memory) PurgeBefore(_ context.Context, cutoffDate string, cutoffTime time.Time) (ledger.PurgeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res ledger.PurgeResult
	for k, txs := range m.transactions {
		if k.Date < cutoffDate {
			res.Transactions += int64(len(txs))
			delete(m.transactions, k)
		}
	}
	for k := range m.archives {
		if k.Date < cutoffDate {
			res.Archives++
			delete(m.archives, k)
		}
	}
	kept := m.audit[:0]
	for _, e := range m.audit {
		if e.CreatedAt.Before(cutoffTime) {
			res.AuditEntries++
			continue
		}
		kept = append(kept, e)
	}
	m.audit = kept
	return res, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn against the store, simulated with a snapshot that is
// restored if fn returns an error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	tenants      map[ledger.TenantID]*ledger.Tenant
	settings     map[ledger.TenantID]*ledger.Settings
	transactions map[dayKey][]ledger.Transaction
	archives     map[archiveKey]ledger.Archive
	audit        []ledger.AuditEntry
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		tenants:      make(map[ledger.TenantID]*ledger.Tenant, len(tm.tenants)),
		settings:     make(map[ledger.TenantID]*ledger.Settings, len(tm.settings)),
		transactions: make(map[dayKey][]ledger.Transaction, len(tm.transactions)),
		archives:     make(map[archiveKey]ledger.Archive, len(tm.archives)),
		audit:        append([]ledger.AuditEntry{}, tm.audit...),
	}
	for k, v := range tm.tenants {
		s.tenants[k] = copyTenant(v)
	}
	for k, v := range tm.settings {
		cp := *v
		s.settings[k] = &cp
	}
	for k, v := range tm.transactions {
		s.transactions[k] = append([]ledger.Transaction{}, v...)
	}
	for k, v := range tm.archives {
		s.archives[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.tenants = s.tenants
	tm.settings = s.settings
	tm.transactions = s.transactions
	tm.archives = s.archives
	tm.audit = s.audit
}

func copyTenant(t *ledger.Tenant) *ledger.Tenant {
	cp := *t
	if t.LastAutoReset != nil {
		stamp := *t.LastAutoReset
		cp.LastAutoReset = &stamp
	}
	return &cp
}
