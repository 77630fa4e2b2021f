package source

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/skekre98/composer/config"
)

// CLISource reads dotted long flags into nested keys:
//
//	--server.addr=:9090 --modules.disabled auth,profile
//	  -> {server: {addr: ":9090"}, modules: {disabled: "auth,profile"}}
//
// Single-dash long flags (-server.addr=:9090) are accepted. Empty values and
// positional arguments are ignored. It belongs last in the source list.
type CLISource struct {
	// Args defaults to os.Args[1:].
	Args []string
}

func (c *CLISource) Name() string { return "cli" }

func (c *CLISource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := c.Args
	if args == nil {
		args = os.Args[1:]
	}
	return parseFlags(args), nil
}

// Watch is a no-op; arguments never change.
func (c *CLISource) Watch(context.Context, chan<- config.Event) error { return nil }

func parseFlags(raw []string) map[string]any {
	args := normalizeArgs(raw)
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true

	for _, arg := range args {
		name := extractFlagName(arg)
		if len(name) < 2 || fs.Lookup(name) != nil {
			continue
		}
		fs.String(name, "", "config value for "+name)
	}
	_ = fs.Parse(args)

	out := make(map[string]any)
	fs.Visit(func(f *pflag.Flag) {
		if v := f.Value.String(); v != "" {
			setNestedValue(out, strings.Split(f.Name, "."), v)
		}
	})
	return out
}

// normalizeArgs rewrites single-dash long flags to the double-dash form pflag
// expects. Single-letter flags and positional arguments pass through.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		rest, single := strings.CutPrefix(arg, "-")
		if single && !strings.HasPrefix(rest, "-") && len(rest) > 1 && rest[0] != '=' {
			out[i] = "-" + arg
			continue
		}
		out[i] = arg
	}
	return out
}

// extractFlagName returns the flag name in arg, or "" if arg is not a flag.
func extractFlagName(arg string) string {
	if !strings.HasPrefix(arg, "-") {
		return ""
	}
	name := strings.TrimLeft(arg, "-")
	name, _, _ = strings.Cut(name, "=")
	return name
}
