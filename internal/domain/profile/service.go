package profile

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"audience/internal/core/apperror"
	"audience/internal/core/id"
	"audience/internal/core/tenant"
	"audience/internal/core/tx"
	"audience/internal/domain"
	"audience/internal/domain/filter"
	"audience/pkg/logger"
)

var tracer = otel.Tracer("audience/profile")

const entityName = "profile"

// Query selects one page of the filtered profile set.
type Query struct {
	Criteria filter.Criteria
	Limit    int
	Offset   int
}

// Service implements profile use cases on top of Repository.
type Service struct {
	repo      Repository
	txManager tx.Manager
	keys      FieldKeyCache
	observer  domain.EvaluationObserver
	hooks     *domain.HookRegistry[*Profile]
}

// ServiceConfig configures Service. TxManager may be nil, in which case the
// tenant transaction manager is taken from the request context.
type ServiceConfig struct {
	Repo      Repository
	TxManager tx.Manager
	KeyCache  FieldKeyCache
	Observer  domain.EvaluationObserver
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:      cfg.Repo,
		txManager: cfg.TxManager,
		keys:      cfg.KeyCache,
		observer:  cfg.Observer,
		hooks:     domain.NewHookRegistry[*Profile](),
	}
	if s.observer == nil {
		s.observer = domain.NopObserver{}
	}
	return s
}

// Hooks exposes the registry so other components can react to committed changes.
func (s *Service) Hooks() *domain.HookRegistry[*Profile] {
	return s.hooks
}

func (s *Service) runHooks(ctx context.Context, event domain.HookEvent, p *Profile) {
	if err := s.hooks.Run(ctx, event, p); err != nil {
		logger.Warn(ctx, "profile hook failed", "event", event, "profile_id", p.ID, "error", err)
	}
}

func (s *Service) write(ctx context.Context, fn func(ctx context.Context) error) error {
	txm, err := domain.TxManager(ctx, s.txManager)
	if err != nil {
		return err
	}
	return txm.RunInTransaction(ctx, fn)
}

// Create stores a new profile.
func (s *Service) Create(ctx context.Context, p *Profile) error {
	p.Normalize()
	if err := p.Validate(ctx); err != nil {
		return domain.ValidationErr(err)
	}

	err := s.write(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateKeys(ctx)
	s.runHooks(ctx, domain.AfterCreate, p)
	return nil
}

// Update writes p with optimistic locking on p.Version.
func (s *Service) Update(ctx context.Context, p *Profile) error {
	p.Normalize()
	if err := p.Validate(ctx); err != nil {
		return domain.ValidationErr(err)
	}
	p.Touch()

	err := s.write(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, p); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.GetErr(err, entityName, p.ID.String())
	}

	s.invalidateKeys(ctx)
	s.runHooks(ctx, domain.AfterUpdate, p)
	return nil
}

// Get returns one profile.
func (s *Service) Get(ctx context.Context, profileID id.ID) (*Profile, error) {
	p, err := s.repo.GetByID(ctx, profileID)
	if err != nil {
		return nil, domain.GetErr(err, entityName, profileID.String())
	}
	return p, nil
}

// Delete marks the profile Inactive. Rows are never removed.
func (s *Service) Delete(ctx context.Context, profileID id.ID) error {
	p, err := s.Get(ctx, profileID)
	if err != nil {
		return err
	}

	err = s.write(ctx, func(ctx context.Context) error {
		if err := s.repo.SetStatus(ctx, profileID, StatusInactive); err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.GetErr(err, entityName, profileID.String())
	}

	p.Status = StatusInactive
	s.runHooks(ctx, domain.AfterDelete, p)
	return nil
}

// Match returns every profile satisfying c, in storage order.
func (s *Service) Match(ctx context.Context, c filter.Criteria) ([]*Profile, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("load profiles: %w", err))
	}
	return s.Evaluate(ctx, "profiles", all, c), nil
}

// Evaluate filters an already loaded profile set and records timing.
func (s *Service) Evaluate(ctx context.Context, scope string, all []*Profile, c filter.Criteria) []*Profile {
	_, span := tracer.Start(ctx, "filter.evaluate")
	defer span.End()

	start := time.Now()
	matched := filter.Select(all, View, c)
	s.observer.ObserveEvaluation(scope, len(all), len(matched), time.Since(start))

	span.SetAttributes(
		attribute.String("filter.scope", scope),
		attribute.Int("filter.scanned", len(all)),
		attribute.Int("filter.matched", len(matched)),
	)
	return matched
}

// LoadAll returns every stored profile of the tenant.
func (s *Service) LoadAll(ctx context.Context) ([]*Profile, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("load profiles: %w", err))
	}
	return all, nil
}

// List returns one page of the profiles matching q.Criteria.
func (s *Service) List(ctx context.Context, q Query) (domain.ListResult[*Profile], error) {
	matched, err := s.Match(ctx, q.Criteria)
	if err != nil {
		return domain.ListResult[*Profile]{}, err
	}
	return domain.Paginate(matched, q.Limit, q.Offset), nil
}

// Export writes the profiles matching c in the requested format and returns how many were written.
func (s *Service) Export(ctx context.Context, c filter.Criteria, format ExportFormat, w io.Writer) (int, error) {
	matched, err := s.Match(ctx, c)
	if err != nil {
		return 0, err
	}
	if err := WriteExport(w, format, matched); err != nil {
		return 0, apperror.NewInternal(fmt.Errorf("export profiles: %w", err))
	}
	logger.Info(ctx, "profiles exported", "format", format, "count", len(matched))
	return len(matched), nil
}

// UpsertMany merges imported rows into the tenant's profiles in one transaction.
func (s *Service) UpsertMany(ctx context.Context, rows []Incoming) (UpsertResult, error) {
	var res UpsertResult
	err := s.write(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.repo.Upsert(ctx, rows)
		return err
	})
	if err != nil {
		return UpsertResult{}, apperror.NewInternal(fmt.Errorf("upsert profiles: %w", err))
	}
	s.invalidateKeys(ctx)
	return res, nil
}

// CustomFieldKeys lists custom field names in use, served from cache when possible.
func (s *Service) CustomFieldKeys(ctx context.Context) ([]string, error) {
	tenantID := tenant.GetTenantID(ctx)
	if s.keys != nil {
		if keys, ok := s.keys.Get(tenantID); ok {
			return keys, nil
		}
	}

	keys, err := s.repo.CustomFieldKeys(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("load custom field keys: %w", err))
	}
	if keys == nil {
		keys = []string{}
	}
	if s.keys != nil {
		s.keys.Set(tenantID, keys)
	}
	return keys, nil
}

func (s *Service) invalidateKeys(ctx context.Context) {
	if s.keys != nil {
		s.keys.Invalidate(tenant.GetTenantID(ctx))
	}
}
