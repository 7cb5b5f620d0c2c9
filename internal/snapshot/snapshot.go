// Package snapshot copies the persisted document off the data volume, so an
// operator can compare what the pod wrote with what survived a restart.
package snapshot

import (
	"context"
	"errors"

	"github.com/paastest/clustertest/pkg/metrics"
)

// Exporter ships one serialized document somewhere outside the volume.
type Exporter interface {
	Name() string
	Export(ctx context.Context, data []byte) error
}

// Multi fans a snapshot out to every exporter and joins their errors.
type Multi []Exporter

func (m Multi) Export(ctx context.Context, data []byte) error {
	var errs []error
	for _, e := range m {
		err := e.Export(ctx, data)
		metrics.SnapshotExports.WithLabelValues(e.Name(), metrics.Result(err)).Inc()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
