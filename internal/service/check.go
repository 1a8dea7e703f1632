// Package service holds the verification logic behind the check endpoints.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/patientcheck/patientcheck/internal/metrics"
	"github.com/patientcheck/patientcheck/internal/model"
	"github.com/patientcheck/patientcheck/internal/repository"
	"github.com/patientcheck/patientcheck/internal/tracing"
)

// Service errors.
var (
	ErrStoreUnavailable = errors.New("record store unavailable")
	ErrProgramRequired  = errors.New("program name is required")
)

// Session is one store connection held for the duration of a check.
type Session interface {
	ResolveNumber(ctx context.Context, number model.ExternalNumber) ([]string, error)
	HasActiveMembership(ctx context.Context, pids []string, program string) (bool, error)
	BirthDates(ctx context.Context, pids []string) ([]model.Date, error)
	Release()
}

// Store hands out sessions.
type Store interface {
	Acquire(ctx context.Context) (Session, error)
}

// repositoryStore adapts repository.Repository to Store.
type repositoryStore struct {
	repo *repository.Repository
}

// NewRepositoryStore exposes a repository as a Store.
func NewRepositoryStore(repo *repository.Repository) Store {
	return repositoryStore{repo: repo}
}

func (s repositoryStore) Acquire(ctx context.Context) (Session, error) {
	session, err := s.repo.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// CheckConfig is the per-deployment check policy.
type CheckConfig struct {
	ProgramName string
	NumberType  string
	DemoEnabled bool
}

// CheckService answers verification requests.
type CheckService struct {
	store   Store
	cfg     CheckConfig
	demo    map[string]DemoPatient
	metrics metrics.Recorder
	tracer  tracing.Tracer
	hasher  *tracing.NumberHasher
	logger  *slog.Logger
}

// CheckOption configures a CheckService.
type CheckOption func(*CheckService)

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder metrics.Recorder) CheckOption {
	return func(s *CheckService) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer tracing.Tracer) CheckOption {
	return func(s *CheckService) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithNumberHasher sets how numbers are fingerprinted in logs and traces.
func WithNumberHasher(hasher *tracing.NumberHasher) CheckOption {
	return func(s *CheckService) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CheckOption {
	return func(s *CheckService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDemoPatients replaces the demo table.
func WithDemoPatients(patients map[string]DemoPatient) CheckOption {
	return func(s *CheckService) {
		s.demo = patients
	}
}

// NewCheckService creates a CheckService.
func NewCheckService(store Store, cfg CheckConfig, opts ...CheckOption) (*CheckService, error) {
	if cfg.ProgramName == "" {
		return nil, ErrProgramRequired
	}
	if cfg.NumberType == "" {
		cfg.NumberType = model.NumberTypeNational
	}

	s := &CheckService{
		store:   store,
		cfg:     cfg,
		demo:    DemoPatients,
		metrics: metrics.NewNoop(),
		tracer:  tracing.NewNoop(),
		hasher:  tracing.NewNumberHasher(nil),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Check answers whether req.ExternalNumber belongs to an active member of the
// configured program and whether req.DateOfBirth matches the one on file.
// Any store failure fails the whole check with ErrStoreUnavailable.
func (s *CheckService) Check(ctx context.Context, req model.CheckRequest) (outcome *model.CheckOutcome, err error) {
	start := time.Now()
	id := ulid.Make().String()

	ctx, span := s.tracer.Start(ctx, tracing.SpanCheck, tracing.String(tracing.AttrCheckID, id))
	defer func() { span.End(err) }()

	outcome = &model.CheckOutcome{ID: id, Source: model.SourceStore}

	if patient, ok := s.demoPatient(req.ExternalNumber); ok {
		outcome.Source = model.SourceDemo
		outcome.Result = patient.answer(req.DateOfBirth)
		span.AddEvent("demo_patient")
	} else {
		outcome.Result, err = s.checkStore(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	span.SetAttributes(tracing.String(tracing.AttrSource, outcome.Source))
	s.metrics.ObserveCheck(outcome.Source, outcome.Result.NumberMatched, outcome.Result.DateMatched, time.Since(start))
	return outcome, nil
}

func (s *CheckService) demoPatient(number string) (DemoPatient, bool) {
	if !s.cfg.DemoEnabled {
		return DemoPatient{}, false
	}
	p, ok := s.demo[number]
	return p, ok
}

func (s *CheckService) checkStore(ctx context.Context, req model.CheckRequest) (model.CheckResult, error) {
	session, err := s.store.Acquire(ctx)
	if err != nil {
		return model.CheckResult{}, s.storeFailure(ctx, metrics.StageAcquire, req, err)
	}
	defer session.Release()

	number := model.ExternalNumber{Value: req.ExternalNumber, Type: s.cfg.NumberType}

	spanCtx, span := s.tracer.Start(ctx, tracing.SpanResolveNumber,
		tracing.String(tracing.AttrNumberHash, s.hasher.Hash(number.Value)),
		tracing.String(tracing.AttrNumberType, number.Type),
	)
	pids, err := session.ResolveNumber(spanCtx, number)
	span.SetAttributes(tracing.Int(tracing.AttrRecordCount, len(pids)))
	span.End(err)
	if err != nil {
		return model.CheckResult{}, s.storeFailure(ctx, metrics.StageResolve, req, err)
	}
	if len(pids) == 0 {
		return model.CheckResult{}, nil
	}

	spanCtx, span = s.tracer.Start(ctx, tracing.SpanMembership)
	member, err := session.HasActiveMembership(spanCtx, pids, s.cfg.ProgramName)
	span.End(err)
	if err != nil {
		return model.CheckResult{}, s.storeFailure(ctx, metrics.StageMembership, req, err)
	}
	if !member {
		return model.CheckResult{}, nil
	}

	spanCtx, span = s.tracer.Start(ctx, tracing.SpanBirthDates)
	dates, err := session.BirthDates(spanCtx, pids)
	span.End(err)
	if err != nil {
		return model.CheckResult{}, s.storeFailure(ctx, metrics.StageBirthDate, req, err)
	}

	return model.CheckResult{NumberMatched: true, DateMatched: dateMatches(dates, req.DateOfBirth)}, nil
}

func (s *CheckService) storeFailure(ctx context.Context, stage string, req model.CheckRequest, err error) error {
	s.metrics.IncCheckFailure(stage)
	s.logger.WarnContext(ctx, "check failed",
		"stage", stage,
		"number_hash", s.hasher.Hash(req.ExternalNumber),
		"error", err,
	)
	return fmt.Errorf("%s: %w: %w", stage, ErrStoreUnavailable, err)
}

// dateMatches reports whether claimed equals any recorded date.
func dateMatches(recorded []model.Date, claimed model.Date) bool {
	for _, d := range recorded {
		if d == claimed {
			return true
		}
	}
	return false
}
