package pwmix

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/MixyLabs/pwmix/pkg/pwmix/util"
)

const (
	crashlogFilename        = "pwmix-crash-%s.log"
	crashlogTimestampFormat = "2006.01.02-15.04.05"

	crashReport = `pwmix has crashed. Sorry about that!

This file describes what went wrong. If the crash keeps happening,
please attach it to a new issue at:
https://github.com/MixyLabs/pwmix/issues/new

Time: %s
Panic: %v

Stack trace:
%s
`
)

// recoverFromPanic persists a crash report for any panic that escapes
// the caller, then terminates the process. The panicking goroutine may
// be the run loop itself, so it never waits on the stop channel.
func (d *Pwmix) recoverFromPanic() {
	r := recover()
	if r == nil {
		return
	}

	d.crash(r)

	d.logger.Errorw("Quitting", "exitCode", 1)
	os.Exit(1)
}

// crash writes the crash report and closes the daemon connection
// directly, dropping our link proxies even though the run loop never
// gets to stop gracefully.
func (d *Pwmix) crash(r any) {
	now := time.Now().Format(crashlogTimestampFormat)

	if err := util.EnsureDirExists(logDirectory); err != nil {
		panic(fmt.Errorf("ensure crashlog dir exists: %w", err))
	}

	crashlogPath := filepath.Join(logDirectory, fmt.Sprintf(crashlogFilename, now))
	report := fmt.Sprintf(crashReport, now, r, debug.Stack())

	if err := os.WriteFile(crashlogPath, []byte(report), os.ModePerm); err != nil {
		panic(fmt.Errorf("can't even write the crashlog file contents: %w", err))
	}

	d.logger.Errorw("Encountered and logged panic, crashing",
		"crashlogPath", crashlogPath,
		"error", r)

	d.notifier.Notify("Unexpected crash occurred...",
		fmt.Sprintf("More details in %s", crashlogPath))

	if d.client != nil {
		_ = d.client.Close()
	}
}
