package config

import (
	"flag"
	"os"
	"slices"
	"strings"

	"github.com/sparkbridge/server/internal/timex"
)

var serverFlags = []string{"-a", "-g", "-d", "-s", "-r", "-t", "-e", "-b", "-l"}

// parseFlags populates Config fields from command-line flags.
//
//	-a string   HTTP listen address (e.g. ":3001")
//	-g string   gRPC listen address (e.g. ":50051")
//	-d string   PostgreSQL DSN
//	-s string   access token secret
//	-r string   refresh token secret
//	-t duration access token lifetime ("15m")
//	-e duration refresh token lifetime ("7d")
//	-b int      bcrypt cost
//	-l string   log level
//
// Only the flags above are looked at; anything else on the command line is
// left for other parsers.
func parseFlags(config *Config) {
	args := filterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP listen address")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC listen address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AccessSecret, "s", config.AccessSecret, "access token secret")
	fs.StringVar(&config.RefreshSecret, "r", config.RefreshSecret, "refresh token secret")
	fs.IntVar(&config.BcryptCost, "b", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	accessTTL := timex.Duration{Duration: config.AccessTokenTTL}
	refreshTTL := timex.Duration{Duration: config.RefreshTokenTTL}
	fs.TextVar(&accessTTL, "t", accessTTL, "access token lifetime, e.g. 15m")
	fs.TextVar(&refreshTTL, "e", refreshTTL, "refresh token lifetime, e.g. 7d")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenTTL = accessTTL.Duration
	config.RefreshTokenTTL = refreshTTL.Duration
}

// jsonConfigPath returns the value of -c/-config, or "" when neither is given.
func jsonConfigPath() string {
	var path string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(filterArgs(os.Args[1:], []string{"-c", "-config"}))

	return path
}

// RemainingArgs drops the server and config file flags (and their values)
// from args and returns what is left, e.g. a subcommand and its own flags.
func RemainingArgs(args []string) []string {
	kept := filterArgs(args, slices.Concat(serverFlags, []string{"-c", "-config"}))
	out := make([]string, 0, len(args)-len(kept))
	j := 0
	for _, arg := range args {
		if j < len(kept) && arg == kept[j] {
			j++
			continue
		}
		out = append(out, arg)
	}
	return out
}

// filterArgs keeps only the allowed flags and their values. Both "-f value"
// and "-f=value" forms are recognised.
func filterArgs(args []string, allowed []string) []string {
	keep := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		keep[f] = struct{}{}
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, ok := keep[name]; ok {
				out = append(out, arg)
			}
			continue
		}

		if _, ok := keep[arg]; !ok {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}
