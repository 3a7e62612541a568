package pwmix

import (
	"fyne.io/systray"

	"github.com/MixyLabs/pwmix/pkg/pwmix/util"
)

func (d *Pwmix) initializeTray(onDone func()) {
	logger := d.logger.Named("tray")

	onReady := func() {
		logger.Debug("Tray instance ready")

		systray.SetTitle("pwmix")
		systray.SetTooltip("pwmix")

		editConfig := systray.AddMenuItem("Edit configuration", "Open config file with a text editor")

		reapplyLinks := systray.AddMenuItem("Re-apply links", "Tear the current links down and re-patch from the live graph")

		if d.version != "" {
			systray.AddSeparator()
			versionInfo := systray.AddMenuItem(d.version, "")
			versionInfo.Disable()
		}

		systray.AddSeparator()
		quit := systray.AddMenuItem("Quit", "Stop pwmix and quit")

		go func() {
			for {
				select {
				case <-quit.ClickedCh:
					logger.Info("Quit menu item clicked, stopping")

					d.signalStop()

				case <-editConfig.ClickedCh:
					logger.Info("Edit config menu item clicked, opening config for editing")

					// TODO: make editor configurable
					editor := "gedit"
					if !util.Linux() {
						editor = "notepad.exe"
					}

					if err := util.OpenExternal(logger, editor, userConfigFilepath); err != nil {
						logger.Warnw("Failed to open config file for editing", "error", err)
					}

				case <-reapplyLinks.ClickedCh:
					logger.Info("Re-apply links menu item clicked, re-patching")
					d.relink()
				}
			}
		}()

		onDone()
	}

	onExit := func() {
		logger.Debug("Tray exited")
	}

	logger.Debug("Running in tray")
	systray.Run(onReady, onExit)
}

func (d *Pwmix) stopTray() {
	d.logger.Debug("Quitting tray")
	systray.Quit()
}
