package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robinhood-fs/rbh/internal/attrs"
)

// ruleFile is the on-disk shape of a policy rules file: one entry per
// trigger, in the same declarative spirit as rbh's other YAML configs.
type ruleFile struct {
	Triggers []ruleTrigger `yaml:"triggers"`
}

type ruleTrigger struct {
	Name          string            `yaml:"name"`
	Target        string            `yaml:"target"`
	Names         []string          `yaml:"names"`
	HighWatermark ruleThreshold     `yaml:"high_watermark"`
	LowWatermark  ruleThreshold     `yaml:"low_watermark"`
	CheckInterval time.Duration     `yaml:"check_interval"`
	PostRunWait   time.Duration     `yaml:"post_run_wait"`
	Command       string            `yaml:"command"`
	Args          map[string]string `yaml:"args"`
	AlertHW       bool              `yaml:"alert_high_watermark"`
	AlertLW       bool              `yaml:"alert_low_watermark"`
	SortAttr      string            `yaml:"sort_attr"`
	MinAge        time.Duration     `yaml:"min_age"`
}

type ruleThreshold struct {
	Count   *uint64  `yaml:"count"`
	Volume  *uint64  `yaml:"volume"`
	Percent *float64 `yaml:"percent"`
}

var targetKindByName = map[string]TargetKind{
	"fs":        TargetFS,
	"ost":       TargetOST,
	"pool":      TargetPool,
	"user":      TargetUser,
	"group":     TargetGroup,
	"fileclass": TargetFileClass,
	"always":    TargetAlways,
}

// LoadRules parses a policy rules YAML file into Triggers ready for a
// Scheduler.
func LoadRules(path string) ([]Trigger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read rules file: %w", err)
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("policy: parse rules file: %w", err)
	}

	triggers := make([]Trigger, 0, len(rf.Triggers))
	for _, rt := range rf.Triggers {
		kind, ok := targetKindByName[rt.Target]
		if !ok {
			return nil, fmt.Errorf("policy: trigger %q: unknown target %q", rt.Name, rt.Target)
		}
		interval := rt.CheckInterval
		if interval <= 0 {
			interval = time.Minute
		}
		var sortAttr attrs.AttrIndex
		if rt.SortAttr != "" {
			idx, ok := attrs.ByName(rt.SortAttr)
			if !ok {
				return nil, fmt.Errorf("policy: trigger %q: unknown sort_attr %q", rt.Name, rt.SortAttr)
			}
			sortAttr = idx
		}
		triggers = append(triggers, Trigger{
			Name:          rt.Name,
			Target:        kind,
			Names:         rt.Names,
			HW:            Threshold(rt.HighWatermark),
			LW:            Threshold(rt.LowWatermark),
			CheckInterval: interval,
			PostRunWait:   rt.PostRunWait,
			Action:        ActionParams{Command: rt.Command, Args: rt.Args},
			AlertHW:       rt.AlertHW,
			AlertLW:       rt.AlertLW,
			SortAttr:      sortAttr,
			MinAge:        rt.MinAge,
		})
	}
	return triggers, nil
}
