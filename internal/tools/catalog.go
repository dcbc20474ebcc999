// Package tools owns the analytics tool catalog and the HTTP client used to
// invoke tools by stable name. The core interprets only documented output
// fields; tool internals are opaque.
package tools

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Stable tool names. These are the only names the router may bundle.
const (
	ToolSpendAnalytics   = "spend-analytics"
	ToolAnomalySignals   = "anomaly-signals"
	ToolCashflowForecast = "cashflow-forecast"
	ToolRiskProfile      = "risk-profile-non-investment"
	ToolGoalFeasibility  = "goal-feasibility"
	ToolRecurringDetect  = "recurring-cashflow-detect"
	ToolJarAllocation    = "jar-allocation-suggest"
	ToolWhatIfScenario   = "what-if-scenario"
	ToolSuitabilityGuard = "suitability-guard"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// ParamSpec bounds one numeric tool parameter. Values outside [Min,Max] are
// clamped, never rejected.
type ParamSpec struct {
	Name    string  `yaml:"name"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Default float64 `yaml:"default"`
}

// Spec describes one callable tool.
type Spec struct {
	Name   string      `yaml:"name"`
	Path   string      `yaml:"path"`
	Params []ParamSpec `yaml:"params"`
}

type catalogFile struct {
	Tools []Spec `yaml:"tools"`
}

var (
	catalogOnce sync.Once
	catalog     map[string]Spec
	catalogErr  error
)

// Catalog returns the resolved tool catalog. Loaded once per process from
// TOOL_CATALOG_PATH when set, otherwise the embedded default; read lock-free
// afterwards.
func Catalog() (map[string]Spec, error) {
	catalogOnce.Do(func() {
		data := embeddedCatalog
		if path := os.Getenv("TOOL_CATALOG_PATH"); path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				catalogErr = fmt.Errorf("read tool catalog: %w", err)
				return
			}
			data = b
		}
		var f catalogFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			catalogErr = fmt.Errorf("parse tool catalog: %w", err)
			return
		}
		m := make(map[string]Spec, len(f.Tools))
		for _, t := range f.Tools {
			m[t.Name] = t
		}
		catalog = m
	})
	return catalog, catalogErr
}

// Lookup resolves a tool spec by stable name.
func Lookup(name string) (Spec, bool) {
	m, err := Catalog()
	if err != nil {
		return Spec{}, false
	}
	s, ok := m[name]
	return s, ok
}

// ClampArgs applies parameter bounds: known params are clamped into their
// [min,max] range, missing params take their default, unknown keys are
// dropped so a tool never sees arguments outside its schema.
func ClampArgs(spec Spec, args map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(spec.Params))
	for _, p := range spec.Params {
		v, ok := args[p.Name]
		if !ok {
			out[p.Name] = p.Default
			continue
		}
		if v < p.Min {
			v = p.Min
		}
		if v > p.Max {
			v = p.Max
		}
		out[p.Name] = v
	}
	return out
}
