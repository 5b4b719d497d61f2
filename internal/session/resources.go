package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/observability/metrics"
)

// CleanupError reports a path that could not be removed. Cleanup is best
// effort; these are logged, never fatal.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup %s: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// Resources is the ephemeral directory owned by one session. Intermediate
// audio files live here for the duration of a single call.
type Resources struct {
	dir     string
	log     zerolog.Logger
	metrics *metrics.Metrics

	once sync.Once
	err  error
}

// NewResources creates a fresh directory under root (os.TempDir when empty).
func NewResources(root, sessionId string) (*Resources, error) {
	prefix := "dispatch-" + strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(sessionId) + "-"
	dir, err := os.MkdirTemp(root, prefix)
	if err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &Resources{
		dir:     dir,
		log:     logging.WithSession(sessionId),
		metrics: metrics.DefaultMetrics,
	}, nil
}

// Dir returns the directory path.
func (r *Resources) Dir() string {
	return r.dir
}

// Path returns the path of a file inside the directory.
func (r *Resources) Path(name string) string {
	return filepath.Join(r.dir, filepath.Base(name))
}

// Cleanup removes every file and then the directory. Only the first call
// does any work; later calls return the same result.
func (r *Resources) Cleanup() error {
	r.once.Do(func() {
		r.err = r.cleanup()
	})
	return r.err
}

func (r *Resources) cleanup() error {
	var errs []error

	entries, err := os.ReadDir(r.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, &CleanupError{Path: r.dir, Err: err})
	}
	for _, e := range entries {
		p := filepath.Join(r.dir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, &CleanupError{Path: p, Err: err})
		}
	}
	if err := os.Remove(r.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, &CleanupError{Path: r.dir, Err: err})
	}

	for _, err := range errs {
		r.metrics.RecordCleanupError()
		r.log.Warn().Err(err).Msg("Session cleanup incomplete")
	}
	if len(errs) == 0 {
		r.log.Debug().Str("dir", r.dir).Msg("Session directory removed")
	}
	return errors.Join(errs...)
}
