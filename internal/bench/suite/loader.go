package suite

import (
	"fmt"
	"os"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
	"gopkg.in/yaml.v3"
)

type LoadedWorkload struct {
	Workload  *Workload
	Formatter *Formatter
}

func LoadFromFile(path string) (*LoadedWorkload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a workload and builds a formatter with its static values and providers.
// Unresolvable placeholders are rejected here, before any execution.
func Parse(data []byte) (*LoadedWorkload, error) {
	var w Workload
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "parse workload YAML", err)
	}
	if w.Query == "" {
		return nil, apperr.NewConfiguration("workload has no query")
	}

	f := NewFormatter()
	for name, v := range w.Static {
		f.SetStatic(name, v)
	}
	for name, spec := range w.Providers {
		p, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		if err := f.SetProvider(name, p); err != nil {
			return nil, err
		}
	}

	if err := f.Validate(w.Query, w.Params); err != nil {
		return nil, err
	}

	return &LoadedWorkload{Workload: &w, Formatter: f}, nil
}

func (s ProviderSpec) Build() (Provider, error) {
	switch s.Type {
	case ProviderSequence:
		start := s.Start
		if start == 0 {
			start = 1
		}
		return Sequence(start), nil
	case ProviderRandomInt:
		hi := s.Max
		if hi == 0 && s.Min == 0 {
			hi = 1_000_000
		}
		return RandomInt(s.Min, hi, s.Seed), nil
	case ProviderRandomChoice:
		if len(s.Values) == 0 {
			return nil, apperr.NewConfiguration("random_choice needs at least one value")
		}
		return RandomChoice(s.Seed, s.Values...), nil
	case ProviderRandomString:
		length := s.Length
		if length <= 0 {
			length = 10
		}
		return RandomString(length, s.Seed), nil
	case ProviderUUID:
		return UUID(), nil
	case ProviderStatic:
		if len(s.Values) != 1 {
			return nil, apperr.NewConfiguration("static provider needs exactly one value")
		}
		return Static(s.Values[0]), nil
	case ProviderCSV:
		if s.File == "" || s.Column == "" {
			return nil, apperr.NewConfiguration("csv provider needs file and column")
		}
		values, err := readCSVFile(s.File, s.Column)
		if err != nil {
			return nil, err
		}
		switch s.Order {
		case "", "sequential":
			return Cycle(values...), nil
		case "random":
			return RandomChoice(s.Seed, values...), nil
		default:
			return nil, apperr.Newf(apperr.KindConfiguration, "unknown csv order %q", s.Order)
		}
	default:
		return nil, apperr.Newf(apperr.KindConfiguration, "unknown provider type %q", s.Type)
	}
}
