package suite

import (
	"fmt"
	"strings"
	"sync"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
)

// Formatter resolves {{name}} placeholders. Values come from explicit params first,
// then registered providers, then static defaults.
type Formatter struct {
	mu        sync.RWMutex
	static    map[string]any
	providers map[string]Provider
}

func NewFormatter() *Formatter {
	return &Formatter{
		static:    make(map[string]any),
		providers: make(map[string]Provider),
	}
}

func (f *Formatter) SetStatic(name string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.static[name] = value
}

func (f *Formatter) SetProvider(name string, p Provider) error {
	if name == "" {
		return apperr.NewConfiguration("provider placeholder name is empty")
	}
	if p == nil {
		return apperr.NewConfiguration(fmt.Sprintf("provider for %q is nil", name))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[name] = p
	return nil
}

func (f *Formatter) RemoveProvider(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.providers, name)
}

// Validate reports placeholders that no param, provider or static value can resolve.
func (f *Formatter) Validate(template string, params Params) error {
	if strings.TrimSpace(template) == "" {
		return apperr.NewConfiguration("query is empty")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	var missing []string
	for _, name := range Placeholders(template) {
		if _, ok := params[name]; ok {
			continue
		}
		if _, ok := f.providers[name]; ok {
			continue
		}
		if _, ok := f.static[name]; ok {
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		return apperr.Newf(apperr.KindConfiguration, "query has unresolved placeholders: %v", missing)
	}
	return nil
}

// Format renders template once; providers are invoked for each call.
func (f *Formatter) Format(template string, params Params) (string, error) {
	names := Placeholders(template)
	if len(names) == 0 {
		return template, nil
	}

	f.mu.RLock()
	values := make(map[string]any, len(names))
	var providerErr error
	for _, name := range names {
		if v, ok := params[name]; ok {
			values[name] = v
			continue
		}
		if p, ok := f.providers[name]; ok {
			v, err := p.Next()
			if err != nil {
				providerErr = apperr.Wrap(apperr.KindFatal, fmt.Sprintf("provider for %q failed", name), err)
				break
			}
			values[name] = v
			continue
		}
		if v, ok := f.static[name]; ok {
			values[name] = v
		}
	}
	f.mu.RUnlock()

	if providerErr != nil {
		return "", providerErr
	}

	result, missing := render(template, values)
	if len(missing) > 0 {
		return "", apperr.Newf(apperr.KindConfiguration, "query has unresolved placeholders: %v", missing)
	}
	return result, nil
}
