package main

import (
	"flag"
	"fmt"

	"github.com/MixyLabs/pwmix/pkg/pwmix"
)

// set via -ldflags at build time
var (
	gitCommit  string
	versionTag string
	buildType  string
)

func main() {
	verbose := flag.Bool("verbose", false, "log the full node listing and other discovery detail")
	flag.BoolVar(verbose, "v", false, "shorthand for -verbose")
	flag.Parse()

	logger, err := pwmix.NewLogger(buildType)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}

	named := logger.Named("main")
	named.Infow("Starting pwmix",
		"gitCommit", gitCommit,
		"versionTag", versionTag,
		"buildType", buildType,
		"verbose", *verbose)

	d, err := pwmix.NewPwmix(logger, *verbose)
	if err != nil {
		named.Fatalw("Failed to create pwmix object", "error", err)
	}

	if version := versionString(); version != "" {
		d.SetVersion(version)
	}

	if err := d.Initialize(); err != nil {
		named.Fatalw("Failed to initialize pwmix", "error", err)
	}
}

// versionString assembles the tray menu's version line from the build
// info, preferring the release tag over the raw commit hash. Plain
// `go build` binaries carry no build info and show no version line.
func versionString() string {
	if buildType == "" || (versionTag == "" && gitCommit == "") {
		return ""
	}

	identifier := versionTag
	if identifier == "" {
		identifier = gitCommit
	}

	return fmt.Sprintf("Version %s-%s", buildType, identifier)
}
