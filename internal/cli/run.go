package cli

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ssh-actions/internal/actions"
	"ssh-actions/internal/result"
)

// stepsFile is a YAML (or JSON) list of actions run in order over one
// session cache.
type stepsFile struct {
	Steps []step `yaml:"steps"`
}

type step struct {
	Name   string            `yaml:"name"`
	Action string            `yaml:"action"`
	Inputs map[string]string `yaml:"inputs"`
}

type stepResult struct {
	Name   string     `yaml:"name,omitempty" json:"name,omitempty"`
	Action string     `yaml:"action" json:"action"`
	Result result.Map `yaml:"result" json:"result"`
}

// stepRef matches ${step.output} references to earlier results.
var stepRef = regexp.MustCompile(`\$\{([A-Za-z0-9_-]+)\.([A-Za-z0-9_]+)\}`)

func newRunCommand(opts *rootOptions) *cobra.Command {
	var keepGoing bool
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run the actions listed in a steps file",
		Long: "Runs the steps of FILE in order. Steps share the session cache, so a sessionId opened by one " +
			"step is reused by the next. Inputs may reference earlier outputs as ${step-name.output}.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := loadSteps(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			var (
				results []stepResult
				failed  bool
				byName  = make(map[string]result.Map)
			)
			for i, s := range steps.Steps {
				if ctx.Err() != nil {
					break
				}
				a.log.WithField("step", i+1).WithField("kind", s.Action).Info("running step")
				out := a.service.Run(ctx, actions.Kind(s.Action), expandInputs(s.Inputs, byName))
				results = append(results, stepResult{Name: s.Name, Action: s.Action, Result: out})
				if s.Name != "" {
					byName[s.Name] = out
				}
				if !out.Succeeded() {
					failed = true
					if !keepGoing {
						break
					}
				}
			}

			if err := printResult(cmd.OutOrStdout(), opts.output, results); err != nil {
				return err
			}
			if failed {
				return errActionFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "Run the remaining steps after a failure")
	return cmd
}

func loadSteps(path string) (*stepsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read steps: %w", err)
	}
	var f stepsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse steps %s: %w", path, err)
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("%s contains no steps", path)
	}
	for i, s := range f.Steps {
		if _, err := actions.ParseKind(s.Action); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &f, nil
}

func expandInputs(inputs map[string]string, byName map[string]result.Map) map[string]string {
	out := make(map[string]string, len(inputs))
	for k, v := range inputs {
		out[k] = stepRef.ReplaceAllStringFunc(v, func(ref string) string {
			m := stepRef.FindStringSubmatch(ref)
			if prev, ok := byName[m[1]]; ok {
				if value, ok := prev[m[2]]; ok {
					return value
				}
			}
			return ref
		})
	}
	return out
}
