package admission

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/BTreeMap/FocusPipe/internal/models"
	"gopkg.in/yaml.v3"
)

// Delay names referenced by plans. The engine maps them to durations.
const (
	DelayShort = "short"
	DelayLong  = "long"
)

// Plan describes what a tier may do.
type Plan struct {
	Label        string   `yaml:"label"`
	DailyCap     int      `yaml:"daily_cap"`
	Unlimited    bool     `yaml:"unlimited"`
	Delays       []string `yaml:"delays"`
	SupportNudge bool     `yaml:"support_nudge"`
}

// AllowsDelay reports whether the plan offers the named delay.
func (p Plan) AllowsDelay(name string) bool {
	return slices.Contains(p.Delays, name)
}

// Plans maps tier codes to plans.
type Plans map[models.TierCode]Plan

type plansFile struct {
	Tiers map[string]Plan `yaml:"tiers"`
}

// DefaultPlansYAML is the built-in tier table.
const DefaultPlansYAML = `tiers:
  free:
    label: Free
    daily_cap: 3
    delays: [short]
  basic:
    label: Basic
    daily_cap: 5
    delays: [short]
  premium:
    label: Premium
    unlimited: true
    delays: [short, long]
    support_nudge: true
  admin:
    label: Admin
    unlimited: true
    delays: [short, long]
    support_nudge: true
`

// DefaultPlans returns the built-in tier table.
func DefaultPlans() Plans {
	plans, err := ParsePlans([]byte(DefaultPlansYAML))
	if err != nil {
		panic(fmt.Sprintf("admission: invalid default plans: %v", err))
	}
	return plans
}

// ParsePlans decodes a YAML tier table. The free tier is required because expired
// grants fall back to it.
func ParsePlans(data []byte) (Plans, error) {
	var f plansFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tier plans: %w", err)
	}
	plans := make(Plans, len(f.Tiers))
	for code, p := range f.Tiers {
		if !p.Unlimited && p.DailyCap <= 0 {
			return nil, fmt.Errorf("tier %q: daily_cap must be positive unless unlimited", code)
		}
		for _, d := range p.Delays {
			if d != DelayShort && d != DelayLong {
				return nil, fmt.Errorf("tier %q: unknown delay %q", code, d)
			}
		}
		if p.Label == "" {
			p.Label = code
		}
		plans[models.TierCode(code)] = p
	}
	if _, ok := plans[models.TierFree]; !ok {
		return nil, fmt.Errorf("tier plans must define %q", models.TierFree)
	}
	return plans, nil
}

// LoadPlans reads a tier table from path. An empty path yields the defaults.
func LoadPlans(path string) (Plans, error) {
	if path == "" {
		return DefaultPlans(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tier plans %s: %w", path, err)
	}
	plans, err := ParsePlans(data)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded tier plans", "path", path, "tiers", len(plans))
	return plans, nil
}
