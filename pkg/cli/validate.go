package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/spf13/cobra"

	"github.com/getmockd/switchboard/pkg/app"
	"github.com/getmockd/switchboard/pkg/client"
	"github.com/getmockd/switchboard/pkg/config"
	"github.com/getmockd/switchboard/pkg/pool"
)

// ValidateOutput is the JSON output of the validate command.
type ValidateOutput struct {
	Valid     bool           `json:"valid"`
	Path      string         `json:"path,omitempty"`
	Protocols []string       `json:"protocols,omitempty"`
	Routes    map[string]int `json:"routes,omitempty"`
	Errors    []string       `json:"errors,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file without starting any services",
	Long: `Validate loads the configuration the way serve does, including SWITCHBOARD_*
environment overrides, and builds every route tree. Unknown middleware,
invalid overrides and guard expressions that do not compile are reported.`,
	Example: `  switchboard validate -c switchboard.yaml
  switchboard validate -c switchboard.yaml --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := validateConfig(configPath)
		w := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(out); encErr != nil {
				return encErr
			}
			return err
		}
		if err != nil {
			return err
		}

		fmt.Fprint(w, "Configuration valid")
		if out.Path != "" {
			fmt.Fprintf(w, ": %s", out.Path)
		}
		fmt.Fprintln(w)
		for _, p := range out.Protocols {
			fmt.Fprintf(w, "  %-10s %d routes\n", p, out.Routes[p])
		}
		return nil
	},
}

func validateConfig(path string) (ValidateOutput, error) {
	out := ValidateOutput{Path: path}
	fail := func(err error) (ValidateOutput, error) {
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			for _, e := range joined.Unwrap() {
				out.Errors = append(out.Errors, e.Error())
			}
		} else {
			out.Errors = []string{err.Error()}
		}
		return out, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fail(err)
	}

	p := pool.New(cfg.Pool)
	defer func() { _ = p.Close() }()
	a, err := app.New(cfg, client.New(p))
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	out.Valid = true
	out.Protocols = slices.Clone(cfg.Protocols.Order)
	out.Routes = make(map[string]int)
	table := a.RouteTable()
	for proto, routes := range table {
		out.Routes[proto] = len(routes)
	}
	for proto := range table {
		if !slices.Contains(out.Protocols, proto) {
			out.Protocols = append(out.Protocols, proto)
		}
	}
	sort.Strings(out.Protocols[len(cfg.Protocols.Order):])
	return out, nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
