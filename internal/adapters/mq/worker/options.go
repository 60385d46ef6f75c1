package worker

import (
	"github.com/okian/vitals/pkg/logger"
)

// Option applies a configuration option to the Committer.
type Option func(*Committer)

// WithName sets the committer name used in logs.
func WithName(name string) Option {
	return func(w *Committer) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the committer.
func WithLogger(l logger.Logger) Option {
	return func(w *Committer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithCommitHook registers a hook run after every effective commit.
func WithCommitHook(h CommitHook) Option {
	return func(w *Committer) {
		if h != nil {
			w.hooks = append(w.hooks, h)
		}
	}
}
