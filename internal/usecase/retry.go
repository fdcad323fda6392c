package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reflection-journal/internal/domain"
)

// errGeneration marks failures of the generation call itself, as opposed to
// failures to parse what it returned.
var errGeneration = errors.New("usecase: generation failed")

var (
	retryInitialInterval = 250 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
)

// generateParsed calls gen until parse accepts the response, at most
// attempts times. Only ErrMalformedOutput is retried, with exponential
// backoff; generator errors are returned at once since the client has
// already retried transport failures.
func generateParsed[T any](ctx context.Context, gen Generator, msgs []domain.Turn, temperature float64, attempts int, parse func(string) (T, error)) (T, error) {
	if attempts <= 0 {
		attempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = retryInitialInterval
	exp.MaxInterval = retryMaxInterval
	exp.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(backoff.WithContext(exp, ctx), uint64(attempts-1))

	return backoff.RetryWithData(func() (T, error) {
		var zero T
		raw, err := gen.Generate(ctx, msgs, temperature)
		if err != nil {
			return zero, backoff.Permanent(fmt.Errorf("%w: %w", errGeneration, err))
		}
		v, err := parse(raw)
		if err != nil && !errors.Is(err, ErrMalformedOutput) {
			return zero, backoff.Permanent(err)
		}
		return v, err
	}, policy)
}

// isGenerationFailure reports whether err came from calling or parsing the
// model rather than from storage.
func isGenerationFailure(err error) bool {
	if _, ok := upstreamStatusCode(err); ok {
		return true
	}
	return errors.Is(err, errGeneration) || errors.Is(err, ErrMalformedOutput)
}
