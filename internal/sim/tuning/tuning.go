package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	Height             int `yaml:"height" json:"height"`
	LoadRadiusChunks   int `yaml:"load_radius_chunks" json:"load_radius_chunks"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`

	Plenisher Plenisher `yaml:"plenisher" json:"plenisher"`
}

type Plenisher struct {
	MaxNodes             int     `yaml:"max_nodes" json:"max_nodes"`
	TickCadence          int     `yaml:"tick_cadence" json:"tick_cadence"`
	EnergyPerOp          float64 `yaml:"energy_per_op" json:"energy_per_op"`
	BucketVolume         int     `yaml:"bucket_volume" json:"bucket_volume"`
	TankCapacity         int     `yaml:"tank_capacity" json:"tank_capacity"`
	EnergyCapacity       float64 `yaml:"energy_capacity" json:"energy_capacity"`
	PassiveEnergyPerTick float64 `yaml:"passive_energy_per_tick" json:"passive_energy_per_tick"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		Height:             64,
		LoadRadiusChunks:   2,
		SnapshotEveryTicks: 6000,
		Plenisher: Plenisher{
			MaxNodes:       4000,
			TickCadence:    10,
			EnergyPerOp:    100,
			BucketVolume:   1000,
			TankCapacity:   10000,
			EnergyCapacity: 20000,
		},
	}
}

// Load reads path over Defaults: keys missing from the file keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, errors.New("tick_rate_hz must be positive"))
	}
	if t.Height <= 0 || t.Height%16 != 0 {
		errs = append(errs, errors.New("height must be a positive multiple of 16"))
	}
	if t.LoadRadiusChunks < 0 {
		errs = append(errs, errors.New("load_radius_chunks must not be negative"))
	}
	p := t.Plenisher
	if p.MaxNodes <= 0 {
		errs = append(errs, errors.New("plenisher.max_nodes must be positive"))
	}
	if p.TickCadence <= 0 {
		errs = append(errs, errors.New("plenisher.tick_cadence must be positive"))
	}
	if p.BucketVolume <= 0 {
		errs = append(errs, errors.New("plenisher.bucket_volume must be positive"))
	}
	if p.TankCapacity < p.BucketVolume {
		errs = append(errs, errors.New("plenisher.tank_capacity must hold at least one bucket"))
	}
	if p.EnergyPerOp < 0 || p.EnergyCapacity < p.EnergyPerOp {
		errs = append(errs, errors.New("plenisher.energy_capacity must cover energy_per_op"))
	}
	return errors.Join(errs...)
}
