package inventory

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Publisher receives the full collection after every successful mutation.
// Publish runs under the write lock, so it must hand off rather than wait
// on a slow consumer.
type Publisher interface {
	Publish(ctx context.Context, products Collection)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Collection) {}

// Service applies collection operations to the stored document.
//
// Mutations run load, apply, save and publish under one mutex, so two
// concurrent writers can no longer lose each other's change. Reads take no
// lock and never publish.
type Service struct {
	Store     Store
	Publisher Publisher
	Log       *zap.Logger

	mu sync.Mutex
}

func NewService(store Store, pub Publisher, log *zap.Logger) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Store: store, Publisher: pub, Log: log}
}

func (s *Service) List(ctx context.Context) (Collection, error) {
	doc, err := s.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Products, nil
}

// Snapshot is what a subscriber receives when it asks for the current state.
func (s *Service) Snapshot(ctx context.Context) (Collection, error) {
	return s.List(ctx)
}

func (s *Service) Create(ctx context.Context, p Product) (Product, error) {
	err := s.mutate(ctx, func(c Collection) (Collection, error) {
		return Append(c, p), nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update merges partial into the first product with the given key.
func (s *Service) Update(ctx context.Context, key string, partial Product) (Product, error) {
	var merged Product
	err := s.mutate(ctx, func(c Collection) (Collection, error) {
		out, m, ok := ReplaceByKey(c, key, partial)
		if !ok {
			return nil, ErrNotFound
		}
		merged = m
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Delete removes every product with the given key. A missing key is not an
// error; the removed count is 0 and the save and broadcast still happen.
func (s *Service) Delete(ctx context.Context, key string) (int, error) {
	var removed int
	err := s.mutate(ctx, func(c Collection) (Collection, error) {
		out, n := RemoveByKey(c, key)
		removed = n
		return out, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Service) ReplaceAll(ctx context.Context, products Collection) (int, error) {
	if products == nil {
		products = Collection{}
	}
	err := s.mutate(ctx, func(Collection) (Collection, error) {
		return products, nil
	})
	if err != nil {
		return 0, err
	}
	return len(products), nil
}

func (s *Service) mutate(ctx context.Context, apply func(Collection) (Collection, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Store.Load(ctx)
	if err != nil {
		return err
	}

	next, err := apply(doc.Products)
	if err != nil {
		return err
	}
	doc.Products = next

	if err := s.Store.Save(ctx, doc); err != nil {
		return err
	}

	s.Publisher.Publish(ctx, doc.Products)
	s.Log.Debug("products changed", zap.Int("total", len(doc.Products)))
	return nil
}
