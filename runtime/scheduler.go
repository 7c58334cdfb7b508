// Package runtime drives the periodic background work: pattern mining,
// behavior learning, suggestion generation and retention sweeps.
package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/RajputVikashS5/Elixi-AI/habits"
	"github.com/RajputVikashS5/Elixi-AI/learning"
	"github.com/RajputVikashS5/Elixi-AI/preferences"
	"github.com/RajputVikashS5/Elixi-AI/retention"
	"github.com/RajputVikashS5/Elixi-AI/suggestions"
)

// sweepTimeout bounds a single background run so a stuck sweep cannot block
// the scheduler loop indefinitely.
const sweepTimeout = 5 * time.Minute

// Scheduler owns the background loops. Each loop runs on its own schedule
// and stops when the context is canceled.
type Scheduler struct {
	miner       *habits.Miner
	learner     *learning.Learner
	preferences *preferences.Store
	suggestions *suggestions.Store
	retention   *retention.Engine

	miningSchedule    cron.Schedule
	retentionSchedule cron.Schedule
	miningWindowDays  int
	behaviorWindow    int

	logger zerolog.Logger
}

// Config wires the scheduler's collaborators and cadence.
type Config struct {
	Miner       *habits.Miner
	Learner     *learning.Learner
	Preferences *preferences.Store
	Suggestions *suggestions.Store
	Retention   *retention.Engine

	MiningSchedule     string
	RetentionSchedule  string
	MiningWindowDays   int
	BehaviorWindowDays int
}

func NewScheduler(cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.Miner == nil || cfg.Learner == nil || cfg.Preferences == nil || cfg.Suggestions == nil || cfg.Retention == nil {
		return nil, errors.New("miner, learner, preference store, suggestion store and retention engine are required")
	}
	miningSchedule, err := ParseSchedule(cfg.MiningSchedule)
	if err != nil {
		return nil, err
	}
	retentionSchedule, err := ParseSchedule(cfg.RetentionSchedule)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		miner:             cfg.Miner,
		learner:           cfg.Learner,
		preferences:       cfg.Preferences,
		suggestions:       cfg.Suggestions,
		retention:         cfg.Retention,
		miningSchedule:    miningSchedule,
		retentionSchedule: retentionSchedule,
		miningWindowDays:  cfg.MiningWindowDays,
		behaviorWindow:    cfg.BehaviorWindowDays,
		logger:            logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Run blocks until ctx is canceled, firing each loop on its schedule.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Msg("Scheduler started")
	done := make(chan struct{})
	go s.loop(ctx, "mining", s.miningSchedule, s.runMining, done)
	go s.loop(ctx, "retention", s.retentionSchedule, s.runRetention, done)
	<-ctx.Done()
	<-done
	<-done
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, name string, schedule cron.Schedule, run func(context.Context), done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		next := schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.logger.Debug().Str("loop", name).Msg("Background run starting")
		runCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		run(runCtx)
		cancel()
	}
}

// runMining mines patterns, learns behavior, and turns the results into
// suggestions. Each stage failing is logged and the rest still run; the
// stages are independent reads over the same event log.
func (s *Scheduler) runMining(ctx context.Context) {
	patterns, err := s.miner.AnalyzeRecentEvents(ctx, s.miningWindowDays)
	if err != nil {
		s.logger.Error().Err(err).Msg("Pattern mining failed")
	} else if len(patterns) > 0 {
		if _, err := s.suggestions.GenerateFromPatterns(ctx, patterns); err != nil {
			s.logger.Error().Err(err).Msg("Suggestion generation from patterns failed")
		}
	}

	if _, err := s.learner.AnalyzeBehavior(ctx, s.behaviorWindow); err != nil {
		s.logger.Error().Err(err).Msg("Behavior analysis failed")
		return
	}
	if _, err := s.suggestions.GenerateFromRecommendations(ctx, s.preferences); err != nil {
		s.logger.Error().Err(err).Msg("Suggestion generation from recommendations failed")
	}
}

func (s *Scheduler) runRetention(ctx context.Context) {
	if _, err := s.retention.Run(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Retention run failed")
	}
}
