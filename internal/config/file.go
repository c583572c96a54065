package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/healthwatch/internal/domain"
)

// File is the on-disk description of checks and planned maintenance.
type File struct {
	Checks      []domain.CheckDefinition
	Maintenance []domain.MaintenanceWindow
}

type rawFile struct {
	Checks      []fileCheck  `yaml:"checks"`
	Maintenance []fileWindow `yaml:"maintenance"`
}

type fileCheck domain.CheckDefinition

func (c *fileCheck) UnmarshalYAML(n *yaml.Node) error {
	type plain domain.CheckDefinition
	p := plain{
		Method:         "GET",
		ExpectedStatus: []int{200},
		Timeout:        10 * time.Second,
		Interval:       60 * time.Second,
		Enabled:        true,
	}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*c = fileCheck(p)
	return nil
}

type fileWindow struct {
	Name             string           `yaml:"name"`
	Description      string           `yaml:"description"`
	Start            time.Time        `yaml:"start"`
	End              time.Time        `yaml:"end"`
	AffectedServices []domain.CheckID `yaml:"affected_services"`
}

// LoadFile reads a YAML checks file. Every invalid check is reported.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read checks file: %w", err)
	}
	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return File{}, fmt.Errorf("parse checks file: %w", err)
	}

	var f File
	var errs error
	for i, fc := range raw.Checks {
		c := domain.CheckDefinition(fc)
		c.ApplyDefaults()
		if err := c.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("checks[%d] %q: %w", i, c.ID, err))
			continue
		}
		f.Checks = append(f.Checks, c)
	}
	for _, w := range raw.Maintenance {
		f.Maintenance = append(f.Maintenance, domain.MaintenanceWindow{
			Name:             w.Name,
			Description:      w.Description,
			Start:            w.Start,
			End:              w.End,
			AffectedServices: w.AffectedServices,
		})
	}
	return f, errs
}
