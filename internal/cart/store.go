package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Store holds the ordered line list for one persistence key. Every mutator
// persists the full list synchronously after the change. Mutators serialize
// through the store's own mutex; tenant-level discipline (which store a
// request may touch at all) is the guard's job.
type Store struct {
	kv  KV
	key string

	mu    sync.RWMutex
	lines []Line
}

func NewStore(kv KV, key string) *Store {
	return &Store{kv: kv, key: key}
}

func (s *Store) Key() string {
	return s.key
}

// Load reads the persisted cart. A missing key or malformed payload both
// start from an empty cart; neither is an error for the caller.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			logger.Warn().Err(err).Str("key", s.key).Msg("cart load failed, starting empty")
		}
		s.setLines(nil)
		return nil
	}

	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		logger.Warn().Err(err).Str("key", s.key).Msg("stored cart is malformed, starting empty")
		s.setLines(nil)
		return nil
	}

	s.setLines(lines)
	return nil
}

func (s *Store) setLines(lines []Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = lines
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

func (s *Store) Snapshot() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Add appends a line, or merges it into an existing line with the same
// product and an equal customization by summing quantities. Returns the
// index of the resulting line.
func (s *Store) Add(ctx context.Context, line Line) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.lines {
		if s.lines[i].ProductID == line.ProductID &&
			s.lines[i].Customization.Equal(line.Customization) {
			s.lines[i].Quantity += line.Quantity
			s.lines[i].Reprice()
			return i, s.persist(ctx)
		}
	}

	s.lines = append(s.lines, line)
	return len(s.lines) - 1, s.persist(ctx)
}

// UpdateQuantity replaces the line's quantity; zero or below removes the
// line.
func (s *Store) UpdateQuantity(ctx context.Context, index, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	if quantity <= 0 {
		return s.removeAt(ctx, index)
	}
	s.lines[index].Quantity = quantity
	s.lines[index].Reprice()
	return s.persist(ctx)
}

func (s *Store) UpdateNote(ctx context.Context, index int, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.lines[index].Customization.Note = note
	return s.persist(ctx)
}

func (s *Store) RemoveAt(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	return s.removeAt(ctx, index)
}

func (s *Store) removeAt(ctx context.Context, index int) error {
	s.lines = append(s.lines[:index], s.lines[index+1:]...)
	return s.persist(ctx)
}

func (s *Store) ReplaceAt(ctx context.Context, index int, line Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.lines[index] = line
	return s.persist(ctx)
}

// SetLines swaps the whole list, used by reconciliation to apply a corrected
// cart in one write.
func (s *Store) SetLines(ctx context.Context, lines []Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = lines
	return s.persist(ctx)
}

// Clear empties the cart and erases its persisted representation.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	if err := s.kv.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("kv.Remove: %w", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) error {
	payload, err := json.Marshal(s.lines)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(payload)); err != nil {
		return fmt.Errorf("kv.Set: %w", err)
	}
	return nil
}

func (s *Store) checkIndex(index int) error {
	if index < 0 || index >= len(s.lines) {
		return fmt.Errorf("line index %d out of range (cart has %d lines)", index, len(s.lines))
	}
	return nil
}
