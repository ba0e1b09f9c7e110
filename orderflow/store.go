package orderflow

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

/* ---------- sessions ---------- */

// MemorySessionStore keeps sessions in a process-local map.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate stored state without a Put.
	cp := *sess
	cp.Fields = make(map[string]string, len(sess.Fields))
	for k, v := range sess.Fields {
		cp.Fields[k] = v
	}
	return &cp, nil
}

func (s *MemorySessionStore) Put(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	cp.Fields = make(map[string]string, len(sess.Fields))
	for k, v := range sess.Fields {
		cp.Fields[k] = v
	}
	cp.UpdatedAt = time.Now()
	s.sessions[sess.SessionID] = &cp
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

/* ---------- orders (memory) ---------- */

// MemoryOrderStore keeps finalized orders in a process-local slice.
// Append and id assignment happen under one lock, so concurrent completions
// always receive unique sequential ids.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders []Order
}

// NewMemoryOrderStore creates an empty in-memory order store.
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{}
}

func (s *MemoryOrderStore) Append(_ context.Context, ord *Order) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ord.OrderID = len(s.orders) + 1
	if ord.Timestamp == "" {
		ord.Timestamp = time.Now().Format(time.RFC3339)
	}
	if ord.Status == "" {
		ord.Status = StatusNew
	}
	s.orders = append(s.orders, *ord)
	return ord.OrderID, nil
}

func (s *MemoryOrderStore) Orders(_ context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out, nil
}

func (s *MemoryOrderStore) UpdateStatus(_ context.Context, orderID int, status OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].OrderID == orderID {
			s.orders[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
}

/* ---------- orders (append-only file) ---------- */

// FileOrderStore persists orders as one JSON record per line, appended to a
// flat file. Existing records are loaded on open so order ids keep increasing
// across restarts. Status updates are recorded by appending the updated
// record; the latest line for an id wins on reload.
type FileOrderStore struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	orders []Order
}

// NewFileOrderStore opens (or creates) the order file at path and loads
// existing records.
func NewFileOrderStore(path string) (*FileOrderStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return nil, fmt.Errorf("opening order file: %w", err)
	}

	s := &FileOrderStore{path: path, file: f}
	if err := s.load(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("seeking order file: %w", err)
	}
	return s, nil
}

func (s *FileOrderStore) load() error {
	byID := make(map[int]int) // order id -> index in s.orders
	scanner := bufio.NewScanner(s.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ord Order
		if err := json.Unmarshal(line, &ord); err != nil {
			return fmt.Errorf("corrupt order record: %w", err)
		}
		if i, ok := byID[ord.OrderID]; ok {
			s.orders[i] = ord
			continue
		}
		byID[ord.OrderID] = len(s.orders)
		s.orders = append(s.orders, ord)
	}
	return scanner.Err()
}

// Close closes the underlying file.
func (s *FileOrderStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *FileOrderStore) Append(_ context.Context, ord *Order) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord.OrderID = s.nextIDLocked()
	if ord.Timestamp == "" {
		ord.Timestamp = time.Now().Format(time.RFC3339)
	}
	if ord.Status == "" {
		ord.Status = StatusNew
	}

	if err := s.writeLocked(*ord); err != nil {
		return 0, err
	}
	s.orders = append(s.orders, *ord)
	return ord.OrderID, nil
}

func (s *FileOrderStore) Orders(_ context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out, nil
}

func (s *FileOrderStore) UpdateStatus(_ context.Context, orderID int, status OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].OrderID == orderID {
			updated := s.orders[i]
			updated.Status = status
			if err := s.writeLocked(updated); err != nil {
				return err
			}
			s.orders[i] = updated
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
}

func (s *FileOrderStore) nextIDLocked() int {
	max := 0
	for i := range s.orders {
		if s.orders[i].OrderID > max {
			max = s.orders[i].OrderID
		}
	}
	return max + 1
}

func (s *FileOrderStore) writeLocked(ord Order) error {
	data, err := json.Marshal(ord)
	if err != nil {
		return fmt.Errorf("encoding order: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("appending order: %w", err)
	}
	return s.file.Sync()
}
