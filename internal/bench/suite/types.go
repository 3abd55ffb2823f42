package suite

// Workload is a file-defined benchmark statement with its placeholder sources.
type Workload struct {
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description"`
	Query       string                  `yaml:"query"`
	Params      Params                  `yaml:"params"`
	Static      map[string]any          `yaml:"static"`
	Providers   map[string]ProviderSpec `yaml:"providers"`
}

// ProviderSpec declares a value provider in YAML.
type ProviderSpec struct {
	Type   string `yaml:"type"`
	Start  int64  `yaml:"start,omitempty"`
	Min    int    `yaml:"min,omitempty"`
	Max    int    `yaml:"max,omitempty"`
	Length int    `yaml:"length,omitempty"`
	Values []any  `yaml:"values,omitempty"`
	Seed   uint64 `yaml:"seed,omitempty"`

	// File and Column select a CSV column for the csv provider. Order is
	// "sequential" (default) or "random".
	File   string `yaml:"file,omitempty"`
	Column string `yaml:"column,omitempty"`
	Order  string `yaml:"order,omitempty"`
}

const (
	ProviderSequence     = "sequence"
	ProviderRandomInt    = "random_int"
	ProviderRandomChoice = "random_choice"
	ProviderRandomString = "random_string"
	ProviderUUID         = "uuid"
	ProviderStatic       = "static"
	ProviderCSV          = "csv"
)
