package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Checker-Finance/private-otc/pkg/model"
)

// MemoryStore is an in-process Store for tests and local runs.
//
// Row locks stand in for SELECT ... FOR UPDATE: status updates and fills
// take the row lock of every row they change, always request before quote,
// and then the data mutex.
type MemoryStore struct {
	mu        sync.RWMutex
	requests  map[string]model.QuoteRequest
	quotes    map[string]model.Quote
	messages  []model.Message
	whitelist map[string]model.WhitelistEntry
	audit     []model.AuditRecord
	usedSigs  map[string]model.UsedSignature

	rowMu sync.Mutex
	rows  map[string]*sync.Mutex
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		requests:  make(map[string]model.QuoteRequest),
		quotes:    make(map[string]model.Quote),
		whitelist: make(map[string]model.WhitelistEntry),
		usedSigs:  make(map[string]model.UsedSignature),
		rows:      make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) rowLock(kind, id string) *sync.Mutex {
	key := kind + ":" + id
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	m, ok := s.rows[key]
	if !ok {
		m = &sync.Mutex{}
		s.rows[key] = m
	}
	return m
}

func (s *MemoryStore) InsertQuoteRequest(_ context.Context, r *model.QuoteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; ok {
		return fmt.Errorf("quote request %s: %w", r.ID, ErrDuplicate)
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *MemoryStore) GetQuoteRequest(_ context.Context, id string) (*model.QuoteRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("quote request %s: %w", id, ErrNotFound)
	}
	return &r, nil
}

func (s *MemoryStore) UpdateQuoteRequestStatus(_ context.Context, id string, from, to model.RequestStatus) (bool, error) {
	row := s.rowLock("request", id)
	row.Lock()
	defer row.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	s.requests[id] = r
	return true, nil
}

func (s *MemoryStore) FillQuoteRequest(ctx context.Context, requestID, quoteID string, settle SettleFunc) (*model.QuoteRequest, *model.Quote, error) {
	reqRow := s.rowLock("request", requestID)
	reqRow.Lock()
	defer reqRow.Unlock()
	quoteRow := s.rowLock("quote", quoteID)
	quoteRow.Lock()
	defer quoteRow.Unlock()

	s.mu.RLock()
	req, reqOK := s.requests[requestID]
	quote, quoteOK := s.quotes[quoteID]
	s.mu.RUnlock()
	if !reqOK {
		return nil, nil, fmt.Errorf("quote request %s: %w", requestID, ErrNotFound)
	}
	if !quoteOK {
		return nil, nil, fmt.Errorf("quote %s: %w", quoteID, ErrNotFound)
	}

	fill, err := settle(ctx, &req, &quote)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.requests[requestID]
	curQuote := s.quotes[quoteID]
	if cur.Status != model.RequestActive || curQuote.Status != model.QuoteActive {
		return nil, nil, fmt.Errorf("fill %s: status changed under lock", requestID)
	}
	cur.Status = model.RequestFilled
	cur.NullifierHash = fill.NullifierHash
	cur.SettlementTxHash = fill.SettlementTxHash
	cur.FilledQuoteID = quoteID
	curQuote.Status = model.QuoteAccepted
	s.requests[requestID] = cur
	s.quotes[quoteID] = curQuote
	return &cur, &curQuote, nil
}

func (s *MemoryStore) InsertQuote(_ context.Context, q *model.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quotes[q.ID]; ok {
		return fmt.Errorf("quote %s: %w", q.ID, ErrDuplicate)
	}
	s.quotes[q.ID] = *q
	return nil
}

func (s *MemoryStore) GetQuote(_ context.Context, id string) (*model.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[id]
	if !ok {
		return nil, fmt.Errorf("quote %s: %w", id, ErrNotFound)
	}
	return &q, nil
}

func (s *MemoryStore) ListQuotesByRequest(_ context.Context, requestID string, status model.QuoteStatus, aliveAt time.Time) ([]model.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Quote
	for _, q := range s.quotes {
		if q.QuoteRequestID != requestID {
			continue
		}
		if status != "" && q.Status != status {
			continue
		}
		if !aliveAt.IsZero() && !aliveAt.Before(q.ExpiresAt) {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateQuoteStatus(_ context.Context, id string, from, to model.QuoteStatus) (bool, error) {
	row := s.rowLock("quote", id)
	row.Lock()
	defer row.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[id]
	if !ok || q.Status != from {
		return false, nil
	}
	q.Status = to
	s.quotes[id] = q
	return true, nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.messages {
		if existing.ID == m.ID {
			return fmt.Errorf("message %s: %w", m.ID, ErrDuplicate)
		}
	}
	s.messages = append(s.messages, *m)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, requestID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, m := range s.messages {
		if m.QuoteRequestID == requestID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddWhitelistEntry(_ context.Context, e model.WhitelistEntry, audit model.AuditRecord) error {
	key := strings.ToLower(e.Address)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.whitelist[key]; ok {
		return fmt.Errorf("whitelist %s: %w", e.Address, ErrDuplicate)
	}
	e.Address = key
	s.whitelist[key] = e
	s.audit = append(s.audit, audit)
	return nil
}

func (s *MemoryStore) RemoveWhitelistEntry(_ context.Context, address string, audit model.AuditRecord) error {
	key := strings.ToLower(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.whitelist[key]; !ok {
		return fmt.Errorf("whitelist %s: %w", address, ErrNotFound)
	}
	delete(s.whitelist, key)
	s.audit = append(s.audit, audit)
	return nil
}

func (s *MemoryStore) GetWhitelistEntry(_ context.Context, address string) (*model.WhitelistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.whitelist[strings.ToLower(address)]
	if !ok {
		return nil, fmt.Errorf("whitelist %s: %w", address, ErrNotFound)
	}
	return &e, nil
}

func (s *MemoryStore) ListWhitelist(_ context.Context) ([]model.WhitelistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WhitelistEntry, 0, len(s.whitelist))
	for _, e := range s.whitelist {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

// ListAudit returns the newest limit records, newest first. limit <= 0 returns all.
func (s *MemoryStore) ListAudit(_ context.Context, limit int) ([]model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditRecord, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		out = append(out, s.audit[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) GetUsedSignature(_ context.Context, hash string) (*model.UsedSignature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.usedSigs[hash]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) InsertUsedSignature(_ context.Context, rec model.UsedSignature) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usedSigs[rec.SignatureHash]; ok {
		return false, nil
	}
	s.usedSigs[rec.SignatureHash] = rec
	return true, nil
}

func (s *MemoryStore) DeleteUsedSignature(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.usedSigs, hash)
	return nil
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) ExpireQuoteRequests(_ context.Context, now time.Time) ([]string, error) {
	var expired []string
	for _, id := range s.candidates(func() []string {
		var ids []string
		for id, r := range s.requests {
			if r.Status == model.RequestActive && r.ExpiredAt(now) {
				ids = append(ids, id)
			}
		}
		return ids
	}) {
		row := s.rowLock("request", id)
		row.Lock()
		s.mu.Lock()
		r := s.requests[id]
		if r.Status == model.RequestActive && r.ExpiredAt(now) {
			r.Status = model.RequestExpired
			s.requests[id] = r
			expired = append(expired, id)
		}
		s.mu.Unlock()
		row.Unlock()
	}
	return expired, nil
}

func (s *MemoryStore) ExpireQuotes(_ context.Context, now time.Time) ([]string, error) {
	var expired []string
	for _, id := range s.candidates(func() []string {
		var ids []string
		for id, q := range s.quotes {
			if q.Status == model.QuoteActive && q.ExpiredAt(now) {
				ids = append(ids, id)
			}
		}
		return ids
	}) {
		row := s.rowLock("quote", id)
		row.Lock()
		s.mu.Lock()
		q := s.quotes[id]
		if q.Status == model.QuoteActive && q.ExpiredAt(now) {
			q.Status = model.QuoteExpired
			s.quotes[id] = q
			expired = append(expired, id)
		}
		s.mu.Unlock()
		row.Unlock()
	}
	return expired, nil
}

// candidates collects ids under the read lock, sorted for a stable lock order.
func (s *MemoryStore) candidates(scan func() []string) []string {
	s.mu.RLock()
	ids := scan()
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
