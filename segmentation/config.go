package segmentation

import (
	"github.com/edaniels/golog"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// AttributeMap is a loosely typed parameter bag, as found in service configs.
type AttributeMap map[string]interface{}

// Config holds the full parameter set of a clustering run.
type Config struct {
	VoxelResolution float64 `json:"voxel_resolution" mapstructure:"voxel_resolution"`
	SeedResolution  float64 `json:"seed_resolution" mapstructure:"seed_resolution"`

	ColorImportance   *float64 `json:"color_importance,omitempty" mapstructure:"color_importance"`
	SpatialImportance *float64 `json:"spatial_importance,omitempty" mapstructure:"spatial_importance"`
	NormalImportance  *float64 `json:"normal_importance,omitempty" mapstructure:"normal_importance"`

	UseSingleCameraTransform *bool `json:"use_single_camera_transform,omitempty" mapstructure:"use_single_camera_transform"`
	PruneCloseSeeds          *bool `json:"prune_close_seeds,omitempty" mapstructure:"prune_close_seeds"`
	IgnoreInputNormals       bool  `json:"ignore_input_normals,omitempty" mapstructure:"ignore_input_normals"`

	RefinementIterations int `json:"refinement_iterations,omitempty" mapstructure:"refinement_iterations"`
}

// ConfigFromAttributes decodes an attribute map into a Config.
func ConfigFromAttributes(am AttributeMap) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &cfg})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(map[string]interface{}(am)); err != nil {
		return nil, errors.Wrap(err, "cannot parse supervoxel clustering attributes")
	}
	return &cfg, nil
}

// CheckValid checks all the parameter fields and reports every violation.
func (cfg *Config) CheckValid() error {
	var err error
	if cfg.VoxelResolution <= 0 {
		err = multierr.Append(err, errors.Errorf("voxel_resolution must be positive, got %f", cfg.VoxelResolution))
	}
	if cfg.SeedResolution <= cfg.VoxelResolution {
		err = multierr.Append(err, errors.Errorf(
			"seed_resolution (%f) must be greater than voxel_resolution (%f)", cfg.SeedResolution, cfg.VoxelResolution))
	}
	for _, w := range []struct {
		name  string
		value *float64
	}{
		{"color_importance", cfg.ColorImportance},
		{"spatial_importance", cfg.SpatialImportance},
		{"normal_importance", cfg.NormalImportance},
	} {
		if w.value != nil && *w.value < 0 {
			err = multierr.Append(err, errors.Errorf("%s cannot be negative, got %f", w.name, *w.value))
		}
	}
	if cfg.RefinementIterations < 0 {
		err = multierr.Append(err, errors.Errorf("refinement_iterations cannot be negative, got %d", cfg.RefinementIterations))
	}
	return err
}

// NewFromConfig builds a SupervoxelClustering from a validated Config.
func NewFromConfig(cfg *Config, logger golog.Logger) (*SupervoxelClustering, error) {
	if cfg == nil {
		return nil, errors.New("config for supervoxel clustering cannot be nil")
	}
	if err := cfg.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "supervoxel clustering config error")
	}
	opts := make([]Option, 0, 2)
	if cfg.UseSingleCameraTransform != nil {
		opts = append(opts, WithSingleCameraTransform(*cfg.UseSingleCameraTransform))
	}
	if cfg.PruneCloseSeeds != nil {
		opts = append(opts, WithSeedPruning(*cfg.PruneCloseSeeds))
	}
	svc, err := New(cfg.VoxelResolution, cfg.SeedResolution, logger, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.ColorImportance != nil {
		svc.SetColorImportance(*cfg.ColorImportance)
	}
	if cfg.SpatialImportance != nil {
		svc.SetSpatialImportance(*cfg.SpatialImportance)
	}
	if cfg.NormalImportance != nil {
		svc.SetNormalImportance(*cfg.NormalImportance)
	}
	svc.SetIgnoreInputNormals(cfg.IgnoreInputNormals)
	return svc, nil
}
