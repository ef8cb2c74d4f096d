package engine

import "log/slog"

// Option configures a Runner via the functional options pattern.
type Option func(*Runner)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithParallelism bounds concurrent summaries and concurrent datasets within
// a summary. Values below 1 run everything sequentially.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		if n < 1 {
			n = 1
		}
		r.parallel = n
	}
}

// WithExternal registers a pre-aggregated benchmark table to append onto the
// named summary's combined result.
func WithExternal(summary string, ext ExternalTable) Option {
	return func(r *Runner) {
		r.externals[summary] = append(r.externals[summary], ext)
	}
}
