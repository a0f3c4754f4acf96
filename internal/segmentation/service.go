package segmentation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsecrm/engage/internal/domain"
)

// Repository defines the data access contract for segments.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single segment. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Segment, error)

	// List returns all segments ordered by created_at DESC.
	List(ctx context.Context) ([]domain.Segment, error)

	// Create inserts a new segment.
	Create(ctx context.Context, s *domain.Segment) error

	// Update replaces a segment's mutable fields (name, description, rules,
	// cached count).
	Update(ctx context.Context, s *domain.Segment) error

	// Delete removes a segment.
	Delete(ctx context.Context, id string) error
}

// CustomerResolver is the read-only view of the customer collection the
// service needs. *Engine satisfies it against Postgres; tests use fixtures.
type CustomerResolver interface {
	Count(ctx context.Context, p Predicate) (int, error)
	Find(ctx context.Context, p Predicate) ([]domain.Customer, error)
}

// Service implements segment business logic: CRUD plus rule preview. The
// cached CustomerCount is recomputed on create/update only; it is a snapshot
// and is allowed to drift afterward.
type Service struct {
	repo     Repository
	resolver CustomerResolver
}

// NewService creates a segment service.
func NewService(repo Repository, resolver CustomerResolver) *Service {
	return &Service{repo: repo, resolver: resolver}
}

// Get returns a single segment.
func (s *Service) Get(ctx context.Context, id string) (*domain.Segment, error) {
	return s.repo.Get(ctx, id)
}

// List returns all segments.
func (s *Service) List(ctx context.Context) ([]domain.Segment, error) {
	return s.repo.List(ctx)
}

// Preview compiles a rule list and returns the matching customer count
// without persisting anything.
func (s *Service) Preview(ctx context.Context, rules []domain.SegmentRule) (int, error) {
	if err := ValidateRules(rules); err != nil {
		return 0, err
	}
	return s.resolver.Count(ctx, Compile(rules))
}

// Create validates and persists a new segment, computing the initial
// customer-count snapshot.
func (s *Service) Create(ctx context.Context, name, description string, rules []domain.SegmentRule) (*domain.Segment, error) {
	if name == "" {
		return nil, ErrNameMissing
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	count, err := s.resolver.Count(ctx, Compile(rules))
	if err != nil {
		return nil, fmt.Errorf("compute segment count: %w", err)
	}

	now := time.Now()
	seg := &domain.Segment{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   description,
		Rules:         rules,
		CustomerCount: count,
		RulesHash:     HashPredicate(rules),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

// Update replaces a segment's name, description, and rules, recomputing the
// customer-count snapshot.
func (s *Service) Update(ctx context.Context, id, name, description string, rules []domain.SegmentRule) (*domain.Segment, error) {
	if name == "" {
		return nil, ErrNameMissing
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	seg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// The count snapshot only depends on the rules: when they are unchanged
	// the cached value is kept and no recount is issued.
	hash := HashPredicate(rules)
	if hash != seg.RulesHash {
		count, err := s.resolver.Count(ctx, Compile(rules))
		if err != nil {
			return nil, fmt.Errorf("compute segment count: %w", err)
		}
		seg.CustomerCount = count
		seg.RulesHash = hash
	}

	seg.Name = name
	seg.Description = description
	seg.Rules = rules
	seg.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

// Delete removes a segment.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Resolve loads a segment and returns the customers its rules match right
// now. This is the recipient-resolution path the dispatch orchestrator uses.
func (s *Service) Resolve(ctx context.Context, id string) ([]domain.Customer, error) {
	seg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolver.Find(ctx, Compile(seg.Rules))
}

// ValidateRules is the strict pre-compilation check: the compiler itself
// silently drops unknown pairs, so callers that want hard failures run this
// first. Only structural problems (missing field/operator, nil value for a
// value-carrying operator) are rejected; unknown combinations still pass so
// rules stored by older clients keep loading.
func ValidateRules(rules []domain.SegmentRule) error {
	for i, r := range rules {
		if r.Field == "" || r.Operator == "" {
			return fmt.Errorf("%w: rule %d is missing field or operator", ErrInvalidRule, i)
		}
		if r.Value == nil {
			return fmt.Errorf("%w: rule %d has no value", ErrInvalidRule, i)
		}
	}
	return nil
}
