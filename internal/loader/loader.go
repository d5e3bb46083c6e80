// Package loader assembles a method.Dataset from a method directory.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kronigert/timsCompare/internal/geometry"
	"github.com/kronigert/timsCompare/internal/logging"
	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/normalize"
	"github.com/kronigert/timsCompare/internal/reader"
)

// KeyCalibration marks a segment as a calibration segment.
const KeyCalibration = "calibration_segment"

// Option configures Load.
type Option func(*options)

type options struct {
	catalogue *normalize.Catalogue
	logger    *zap.Logger
	ionSource string
}

// WithCatalogue replaces the embedded parameter catalogue.
func WithCatalogue(c *normalize.Catalogue) Option {
	return func(o *options) { o.catalogue = c }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithIonSource selects source-dependent parameter blocks.
func WithIonSource(source string) Option {
	return func(o *options) { o.ionSource = source }
}

// Load reads dir and returns the fully built dataset. Nothing is returned
// unless every segment was assembled, so a cancelled or failed load leaves
// no partial state behind.
func Load(ctx context.Context, dir string, opts ...Option) (*method.Dataset, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cat := o.catalogue
	if cat == nil {
		cat = normalize.Default()
	}
	log := logging.OrNop(o.logger).With(zap.String("path", dir))

	dir = filepath.Clean(dir)
	raw, err := reader.Read(ctx, dir,
		reader.WithScanModes(cat.ScanModes()),
		reader.WithPolarityNames(cat.PolarityNames()),
		reader.WithIonSource(o.ionSource),
	)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", dir, err)
	}

	warnings := append([]error(nil), raw.Warnings...)
	specs := make([]method.SegmentSpec, 0, len(raw.Records))
	for i := range raw.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := &raw.Records[i]
		spec, warns := assemble(cat, rec, raw.Tables)
		warnings = append(warnings, warns...)
		specs = append(specs, spec)
		log.Debug("segment assembled",
			zap.Int("segment", rec.Index),
			zap.String("workflow", rec.Workflow),
			zap.Float64("start_min", rec.Start),
			zap.Float64("end_min", rec.End),
			zap.Int("parameters", len(spec.Params)),
			zap.Bool("geometry", spec.Geometry != nil),
		)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds, err := method.NewDataset(dir, specs, warnings)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", dir, err)
	}

	for _, w := range warnings {
		log.Warn("load warning", zap.Error(w), zap.Bool("clip", errors.Is(w, method.ErrGeometryClip)))
	}
	log.Info("dataset loaded",
		zap.String("mode", ds.Mode().String()),
		zap.Int("segments", ds.Len()),
		zap.Int("warnings", len(warnings)),
	)
	return ds, nil
}

// assemble turns one raw record into a segment: normalize, reconstruct the
// geometry within the declared bounds, then derive computed parameters.
func assemble(cat *normalize.Catalogue, rec *reader.Record, tables map[string]*reader.Table) (method.SegmentSpec, []error) {
	values, warns := cat.Normalize(rec)
	params := values.Map()
	bounds := geometry.DeclaredBounds(params)

	geo, geoWarns := geometry.Reconstruct(rec.Mode, geometry.Input{
		Segment: rec.Index,
		Tables:  tables,
		Params:  params,
		Bounds:  bounds,
	})
	warns = append(warns, geoWarns...)
	warns = append(warns, cat.Derive(values, rec, geo)...)

	list := values.List()
	keys := make([]string, len(list))
	byKey := make(map[string]method.ParameterValue, len(list))
	for i, p := range list {
		keys[i] = p.Key
		byKey[p.Key] = p
	}
	cat.SortKeys(keys)
	ordered := make([]method.ParameterValue, len(keys))
	for i, k := range keys {
		ordered[i] = byKey[k]
	}

	calibration := false
	if p, ok := values.Get(KeyCalibration); ok && !p.Unknown {
		calibration = p.Bool
	}

	return method.SegmentSpec{
		Start:       rec.Start,
		End:         rec.End,
		Mode:        rec.Mode,
		Workflow:    rec.Workflow,
		Params:      ordered,
		Geometry:    geo,
		Bounds:      bounds,
		Calibration: calibration,
	}, warns
}
