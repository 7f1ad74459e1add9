// Package dock binds the batch to AutoDock Vina: the per-ligand invocation and the
// post-run ranking of binding affinities.
package dock

import (
	"strconv"

	"github.com/kballard/go-shellquote"

	"github.com/teranos/vsbatch/errors"
	"github.com/teranos/vsbatch/pulse/async"
)

// VinaCommand builds the Vina invocation for one ligand:
//
//	vina --receptor R --ligand L --config C --out O --cpu N [extra args...]
type VinaCommand struct {
	Path      string   // Vina executable
	Receptor  string   // Fixed reference input
	Config    string   // Shared search box recipe
	CPU       int      // Threads per invocation; 1 keeps each item single-threaded
	ExtraArgs []string // Appended verbatim
}

// NewVinaCommand creates a command builder, splitting extraArgs with shell quoting rules
func NewVinaCommand(path, receptor, config string, cpu int, extraArgs string) (*VinaCommand, error) {
	extra, err := shellquote.Split(extraArgs)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrInvalidConfig, "cannot split batch.extra_args %q: %v", extraArgs, err),
			"check for unbalanced quotes or a trailing backslash",
		)
	}
	if cpu < 1 {
		cpu = 1
	}
	return &VinaCommand{
		Path:      path,
		Receptor:  receptor,
		Config:    config,
		CPU:       cpu,
		ExtraArgs: extra,
	}, nil
}

// Command implements async.CommandBuilder
func (v *VinaCommand) Command(item async.Item, out async.Artifacts) (string, []string) {
	args := []string{
		"--receptor", v.Receptor,
		"--ligand", item.Path,
		"--config", v.Config,
		"--out", out.Primary,
		"--cpu", strconv.Itoa(v.CPU),
	}
	return v.Path, append(args, v.ExtraArgs...)
}

// CommandLine renders the invocation for logs, quoting arguments that need it
func (v *VinaCommand) CommandLine(item async.Item, out async.Artifacts) string {
	name, args := v.Command(item, out)
	return shellquote.Join(append([]string{name}, args...)...)
}
