// Package query answers operator questions: retrieve, generate, compose.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/answer"
	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	"github.com/kailas-cloud/machinegpt/internal/metrics"
	"github.com/kailas-cloud/machinegpt/internal/usecase/compose"
)

// Service is the query path. It holds no per-request state and is safe for concurrent use.
type Service struct {
	retriever Retriever
	generator Generator
	composer  *compose.Composer
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a query Service.
func New(retriever Retriever, generator Generator, composer *compose.Composer, logger *zap.Logger) *Service {
	return &Service{retriever: retriever, generator: generator, composer: composer, logger: logger, now: time.Now}
}

// Ask answers question for tc. machineID > 0 narrows retrieval to that machine
// and must be one of tc's authorized machines.
//
// Errors are returned only for rejected requests (missing tenant, forbidden
// machine, empty question). Everything after that ends in a tagged Result:
// answered, no_content or provider_failure.
func (s *Service) Ask(ctx context.Context, tc tenant.Context, question string, machineID int64) (answer.Result, error) {
	if err := tc.Validate(); err != nil {
		return answer.Result{}, err
	}
	if machineID > 0 && !tc.Authorizes(machineID) {
		return answer.Result{}, fmt.Errorf("machine %d: %w", machineID, domain.ErrMachineForbidden)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return answer.Result{}, errors.New("question is required")
	}

	start := s.now()
	log := s.logger.With(zap.Int64("producer_id", tc.ProducerID()), zap.Int64("machine_id", machineID))

	matches, err := s.retriever.Retrieve(ctx, tc, question, machineID)
	retrieval := s.now().Sub(start)
	if err != nil {
		var res answer.Result
		if errors.Is(err, domain.ErrNoRelevantContent) {
			res = compose.NoContent()
		} else {
			log.Error("Retrieval failed", zap.Error(err))
			res = compose.ProviderFailure(err.Error())
		}
		res.Timings = answer.Timings{Retrieval: retrieval, Total: s.now().Sub(start)}
		return s.finish(res), nil
	}

	genStart := s.now()
	gen, err := s.generator.Generate(ctx, question, matches)
	generation := s.now().Sub(genStart)
	if err != nil {
		log.Error("Generation failed", zap.Error(err))
		res := compose.ProviderFailure(err.Error())
		res.Timings = answer.Timings{Retrieval: retrieval, Generation: generation, Total: s.now().Sub(start)}
		return s.finish(res), nil
	}

	res := s.composer.Answered(question, gen.Text, gen.Used, matches,
		answer.Tokens{Input: gen.TokensIn, Output: gen.TokensOut})
	res.Timings = answer.Timings{Retrieval: retrieval, Generation: generation, Total: s.now().Sub(start)}

	log.Info("Question answered",
		zap.Int("matches", len(matches)),
		zap.Int("sources", len(res.Sources)),
		zap.Int("images", len(res.Images)),
		zap.Duration("took", res.Timings.Total),
	)
	return s.finish(res), nil
}

func (s *Service) finish(res answer.Result) answer.Result {
	metrics.QueryOutcomesTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res
}
