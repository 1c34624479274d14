package bootstrap

import (
	"strings"
	"time"

	"github.com/danmuck/cictl/internal/ci"
	"github.com/danmuck/cictl/internal/tools"
)

const (
	DefaultXvfbScript   = "/etc/init.d/xvfb"
	DefaultDisplay      = ":99.0"
	DefaultXvfbSettle   = 3 * time.Second
	defaultChocoCommand = "choco"
)

var defaultBrewBootstrapCommand = []string{
	"/bin/bash",
	"-c",
	`NONINTERACTIVE=1 /bin/bash -c "$(curl -fsSL https://raw.githubusercontent.com/Homebrew/install/HEAD/install.sh)"`,
}

// Options control which tools each platform plan installs or starts.
type Options struct {
	Brew  BrewOptions
	Xvfb  XvfbOptions
	Choco ChocoOptions
}

type BrewOptions struct {
	Update             bool
	Taps               []string
	Packages           []string
	BootstrapIfMissing bool
	BootstrapCommand   []string
}

type XvfbOptions struct {
	Enabled bool
	Script  string
	Display string
	Settle  time.Duration
}

type ChocoOptions struct {
	Packages []string
}

func DefaultOptions() Options {
	return Options{
		Brew: BrewOptions{Update: true},
		Xvfb: XvfbOptions{
			Enabled: true,
			Script:  DefaultXvfbScript,
			Display: DefaultDisplay,
			Settle:  DefaultXvfbSettle,
		},
	}
}

// Step is one host action. When Check is set it runs first: a passing check
// makes Command unnecessary, a check that cannot find its binary triggers
// Command followed by a second check.
type Step struct {
	Name    string
	Check   *tools.Command
	Command *tools.Command
	// Settle is slept after Command succeeds.
	Settle time.Duration
}

// Export is an environment variable later build steps need.
type Export struct {
	Key   string
	Value string
}

type Plan struct {
	Platform ci.Platform
	Steps    []Step
	Exports  []Export
}

// Empty reports whether the plan has nothing to run or export.
func (p Plan) Empty() bool {
	return len(p.Steps) == 0 && len(p.Exports) == 0
}

// BuildPlan derives the steps for the platform's OS.
func BuildPlan(platform ci.Platform, opts Options) Plan {
	plan := Plan{Platform: platform}
	switch platform.OS {
	case ci.OSMac:
		plan.Steps = brewSteps(opts.Brew)
	case ci.OSLinux:
		plan.Steps, plan.Exports = xvfbSteps(opts.Xvfb)
	case ci.OSWindows:
		plan.Steps = chocoSteps(opts.Choco)
	}
	return plan
}

func brewSteps(opts BrewOptions) []Step {
	check := &tools.Command{Name: "brew", Args: []string{"--version"}}
	ensure := Step{Name: "brew.ensure", Check: check}
	if opts.BootstrapIfMissing {
		cmd := opts.BootstrapCommand
		if len(cmd) == 0 || strings.TrimSpace(cmd[0]) == "" {
			cmd = defaultBrewBootstrapCommand
		}
		ensure.Command = &tools.Command{Name: cmd[0], Args: cmd[1:]}
	}

	steps := []Step{ensure}
	for _, tap := range normalizeList(opts.Taps) {
		steps = append(steps, Step{
			Name:    "brew.tap " + tap,
			Command: &tools.Command{Name: "brew", Args: []string{"tap", tap}},
		})
	}
	if opts.Update {
		steps = append(steps, Step{
			Name:    "brew.update",
			Command: &tools.Command{Name: "brew", Args: []string{"update"}},
		})
	}
	for _, pkg := range normalizeList(opts.Packages) {
		steps = append(steps, Step{
			Name:    "brew.install " + pkg,
			Command: &tools.Command{Name: "brew", Args: []string{"install", pkg}},
		})
	}
	return steps
}

func xvfbSteps(opts XvfbOptions) ([]Step, []Export) {
	if !opts.Enabled {
		return nil, nil
	}
	script := strings.TrimSpace(opts.Script)
	if script == "" {
		script = DefaultXvfbScript
	}
	display := strings.TrimSpace(opts.Display)
	if display == "" {
		display = DefaultDisplay
	}
	step := Step{
		Name: "xvfb.start",
		Command: &tools.Command{
			Name: "sh",
			Args: []string{"-e", script, "start"},
			Env:  []string{"DISPLAY=" + display},
		},
		Settle: opts.Settle,
	}
	return []Step{step}, []Export{{Key: "DISPLAY", Value: display}}
}

func chocoSteps(opts ChocoOptions) []Step {
	var steps []Step
	for _, pkg := range normalizeList(opts.Packages) {
		steps = append(steps, Step{
			Name:    "choco.install " + pkg,
			Command: &tools.Command{Name: defaultChocoCommand, Args: []string{"install", "-y", pkg}},
		})
	}
	return steps
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
