package segment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"audience/internal/core/apperror"
	appctx "audience/internal/core/context"
	"audience/internal/core/id"
	"audience/internal/core/tx"
	"audience/internal/domain"
	"audience/internal/domain/filter"
	"audience/internal/domain/profile"
	"audience/pkg/logger"
)

var tracer = otel.Tracer("audience/segment")

const (
	entityName = "segment"

	DefaultPreviewSample = 10
	MaxPreviewSample     = 100
)

// ProfileSource loads and filters the tenant's profiles.
type ProfileSource interface {
	LoadAll(ctx context.Context) ([]*profile.Profile, error)
	Evaluate(ctx context.Context, scope string, all []*profile.Profile, c filter.Criteria) []*profile.Profile
}

// ServiceConfig configures Service. TxManager may be nil, in which case the
// tenant transaction manager is taken from the request context.
type ServiceConfig struct {
	Repo      Repository
	Snapshots SnapshotStore
	Profiles  ProfileSource
	TxManager tx.Manager
	Now       func() time.Time
}

type Service struct {
	repo      Repository
	snapshots SnapshotStore
	profiles  ProfileSource
	txManager tx.Manager
	now       func() time.Time
	hooks     *domain.HookRegistry[*Segment]
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:      cfg.Repo,
		snapshots: cfg.Snapshots,
		profiles:  cfg.Profiles,
		txManager: cfg.TxManager,
		now:       cfg.Now,
		hooks:     domain.NewHookRegistry[*Segment](),
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *Service) Hooks() *domain.HookRegistry[*Segment] {
	return s.hooks
}

func (s *Service) write(ctx context.Context, fn func(ctx context.Context) error) error {
	txm, err := domain.TxManager(ctx, s.txManager)
	if err != nil {
		return err
	}
	return txm.RunInTransaction(ctx, fn)
}

func (s *Service) loadProfiles(ctx context.Context) ([]*profile.Profile, error) {
	all, err := s.profiles.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	return all, nil
}

// evaluate runs seg's criteria over all and stamps the size on seg.
func (s *Service) evaluate(ctx context.Context, seg *Segment, all []*profile.Profile) *Snapshot {
	matched := s.profiles.Evaluate(ctx, "segment", all, seg.Criteria)
	now := s.now()
	seg.SetSize(len(matched), now)

	snap := &Snapshot{SegmentID: seg.ID, MemberIDs: make([]id.ID, len(matched)), ComputedAt: now}
	for i, p := range matched {
		snap.MemberIDs[i] = p.ID
	}
	return snap
}

// Create validates seg, computes its size and stores it with a first snapshot.
func (s *Service) Create(ctx context.Context, seg *Segment) error {
	seg.Normalize()
	if err := seg.Validate(ctx); err != nil {
		return domain.ValidationErr(err)
	}
	if seg.CreatedBy == nil {
		if uid := appctx.GetUserID(ctx); uid != "" {
			seg.CreatedBy = &uid
		}
	}

	all, err := s.loadProfiles(ctx)
	if err != nil {
		return apperror.NewInternal(err)
	}
	snap := s.evaluate(ctx, seg, all)

	err = s.write(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, seg); err != nil {
			return fmt.Errorf("create segment: %w", err)
		}
		return s.snapshots.Save(ctx, snap)
	})
	if err != nil {
		return domain.GetErr(err, entityName, seg.ID.String())
	}

	logger.Info(ctx, "segment created", "segment_id", seg.ID, "size", seg.EstimatedSize, "source", seg.Source)
	s.runHooks(ctx, domain.AfterCreate, seg)
	return nil
}

// Update re-validates seg, recomputes its size and writes it with optimistic locking.
func (s *Service) Update(ctx context.Context, seg *Segment) error {
	seg.Normalize()
	if err := seg.Validate(ctx); err != nil {
		return domain.ValidationErr(err)
	}

	all, err := s.loadProfiles(ctx)
	if err != nil {
		return apperror.NewInternal(err)
	}
	snap := s.evaluate(ctx, seg, all)
	seg.Touch()

	err = s.write(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, seg); err != nil {
			return fmt.Errorf("update segment: %w", err)
		}
		return s.snapshots.Save(ctx, snap)
	})
	if err != nil {
		return domain.GetErr(err, entityName, seg.ID.String())
	}

	s.runHooks(ctx, domain.AfterUpdate, seg)
	return nil
}

func (s *Service) Get(ctx context.Context, segmentID id.ID) (*Segment, error) {
	seg, err := s.repo.GetByID(ctx, segmentID)
	if err != nil {
		return nil, domain.GetErr(err, entityName, segmentID.String())
	}
	return seg, nil
}

func (s *Service) List(ctx context.Context, q ListQuery) (domain.ListResult[*Segment], error) {
	q.Limit, q.Offset = domain.NormalizePage(q.Limit, q.Offset)
	res, err := s.repo.List(ctx, q)
	if err != nil {
		return domain.ListResult[*Segment]{}, apperror.NewInternal(fmt.Errorf("list segments: %w", err))
	}
	if res.Items == nil {
		res.Items = []*Segment{}
	}
	return res, nil
}

// Delete removes the segment and, through the storage cascade, its snapshot.
func (s *Service) Delete(ctx context.Context, segmentID id.ID) error {
	seg, err := s.Get(ctx, segmentID)
	if err != nil {
		return err
	}
	err = s.write(ctx, func(ctx context.Context) error {
		return s.repo.Delete(ctx, segmentID)
	})
	if err != nil {
		return domain.GetErr(err, entityName, segmentID.String())
	}
	s.runHooks(ctx, domain.AfterDelete, seg)
	return nil
}

// PreviewResult is the size of an unsaved criteria plus a few matching profiles.
type PreviewResult struct {
	Size   int                `json:"size"`
	Sample []*profile.Profile `json:"sample"`
}

// Preview evaluates c without persisting anything.
func (s *Service) Preview(ctx context.Context, c filter.Criteria, sample int) (PreviewResult, error) {
	if err := c.Validate(); err != nil {
		return PreviewResult{}, err
	}
	if sample <= 0 {
		sample = DefaultPreviewSample
	}
	sample = min(sample, MaxPreviewSample)

	all, err := s.loadProfiles(ctx)
	if err != nil {
		return PreviewResult{}, apperror.NewInternal(err)
	}
	matched := s.profiles.Evaluate(ctx, "preview", all, c)
	return PreviewResult{
		Size:   len(matched),
		Sample: append([]*profile.Profile{}, matched[:min(sample, len(matched))]...),
	}, nil
}

// Members re-evaluates the segment now and returns one page of its members.
func (s *Service) Members(ctx context.Context, segmentID id.ID, limit, offset int) (domain.ListResult[*profile.Profile], error) {
	seg, err := s.Get(ctx, segmentID)
	if err != nil {
		return domain.ListResult[*profile.Profile]{}, err
	}
	all, err := s.loadProfiles(ctx)
	if err != nil {
		return domain.ListResult[*profile.Profile]{}, apperror.NewInternal(err)
	}
	matched := s.profiles.Evaluate(ctx, "segment", all, seg.Criteria)
	return domain.Paginate(matched, limit, offset), nil
}

// CachedMembers returns the last snapshot, refreshing once when none exists.
func (s *Service) CachedMembers(ctx context.Context, segmentID id.ID) (*Snapshot, error) {
	snap, err := s.snapshots.Load(ctx, segmentID)
	if err == nil {
		return snap, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, apperror.NewInternal(fmt.Errorf("load snapshot: %w", err))
	}

	if _, err := s.Refresh(ctx, segmentID); err != nil {
		return nil, err
	}
	snap, err = s.snapshots.Load(ctx, segmentID)
	if err != nil {
		return nil, domain.GetErr(err, "snapshot", segmentID.String())
	}
	return snap, nil
}

// Refresh recomputes the size and snapshot of one segment.
func (s *Service) Refresh(ctx context.Context, segmentID id.ID) (*Segment, error) {
	seg, err := s.Get(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	all, err := s.loadProfiles(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if err := s.persistEvaluation(ctx, seg, all); err != nil {
		return nil, err
	}
	return seg, nil
}

func (s *Service) persistEvaluation(ctx context.Context, seg *Segment, all []*profile.Profile) error {
	snap := s.evaluate(ctx, seg, all)
	err := s.write(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateSize(ctx, seg.ID, seg.EstimatedSize, *seg.SizeComputedAt); err != nil {
			return fmt.Errorf("update segment size: %w", err)
		}
		return s.snapshots.Save(ctx, snap)
	})
	if err != nil {
		return domain.GetErr(err, entityName, seg.ID.String())
	}
	return nil
}

// RefreshSummary reports a RefreshAll run.
type RefreshSummary struct {
	Segments int           `json:"segments"`
	Failed   int           `json:"failed"`
	Profiles int           `json:"profiles"`
	Elapsed  time.Duration `json:"elapsed"`
}

// RefreshAll loads the profiles once and re-evaluates every segment. A failing
// segment does not stop the others; the joined errors are returned.
func (s *Service) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	ctx, span := tracer.Start(ctx, "segment.refresh_all")
	defer span.End()

	start := time.Now()
	segments, err := s.repo.ListAll(ctx)
	if err != nil {
		return RefreshSummary{}, apperror.NewInternal(fmt.Errorf("list segments: %w", err))
	}
	all, err := s.loadProfiles(ctx)
	if err != nil {
		return RefreshSummary{}, apperror.NewInternal(err)
	}

	sum := RefreshSummary{Segments: len(segments), Profiles: len(all)}
	var errs []error
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.persistEvaluation(ctx, seg, all); err != nil {
			sum.Failed++
			errs = append(errs, fmt.Errorf("segment %s: %w", seg.ID, err))
			logger.Warn(ctx, "segment refresh failed", "segment_id", seg.ID, "error", err)
		}
	}
	sum.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.Int("segment.count", sum.Segments),
		attribute.Int("segment.failed", sum.Failed),
		attribute.Int("profile.count", sum.Profiles),
	)
	return sum, errors.Join(errs...)
}

// OverviewItem compares the stored size of a segment with a live evaluation.
type OverviewItem struct {
	Segment  *Segment `json:"segment"`
	LiveSize int      `json:"liveSize"`
	// Drift is LiveSize minus the stored EstimatedSize.
	Drift int `json:"drift"`
}

type Overview struct {
	TotalProfiles int            `json:"totalProfiles"`
	Segments      []OverviewItem `json:"segments"`
}

// Overview fetches segments and profiles in parallel and evaluates every segment live.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var (
		segments []*Segment
		all      []*profile.Profile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		segments, err = s.repo.ListAll(gctx)
		if err != nil {
			return fmt.Errorf("list segments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		all, err = s.loadProfiles(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, apperror.NewInternal(err)
	}

	out := Overview{TotalProfiles: len(all), Segments: make([]OverviewItem, 0, len(segments))}
	for _, seg := range segments {
		live := len(s.profiles.Evaluate(ctx, "overview", all, seg.Criteria))
		out.Segments = append(out.Segments, OverviewItem{
			Segment:  seg,
			LiveSize: live,
			Drift:    live - seg.EstimatedSize,
		})
	}
	return out, nil
}

// CreateImportSegment stores the cohort segment of an import batch.
func (s *Service) CreateImportSegment(ctx context.Context, name, tag string) (*Segment, error) {
	if name == "" {
		name = "Import " + tag
	}
	seg := New(name, filter.NewImportCriteria(tag))
	seg.Source = SourceImport
	seg.Description = fmt.Sprintf("Profiles imported with tag %q", tag)

	if err := s.Create(ctx, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

func (s *Service) runHooks(ctx context.Context, event domain.HookEvent, seg *Segment) {
	if err := s.hooks.Run(ctx, event, seg); err != nil {
		logger.Warn(ctx, "segment hook failed", "event", event, "segment_id", seg.ID, "error", err)
	}
}
