// Package pwmix provides an automatic patchbay for a running PipeWire
// daemon: it discovers the live audio graph, picks out the endpoints
// whose descriptions carry a configured marker, and wires every matching
// input to the chosen output channel by channel (FL to FL, FR to FR).
package pwmix

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/MixyLabs/pwmix/pkg/pwmix/pw"
	"github.com/MixyLabs/pwmix/pkg/pwmix/util"
)

// Pwmix is the main entity managing all subcomponents
type Pwmix struct {
	logger    *zap.SugaredLogger
	notifier  Notifier
	configMan *ConfigManager

	client  *pw.Client
	graph   *Graph
	watcher *graphWatcher
	barrier *syncBarrier
	planner *planner
	linker  *linkExecutor

	// relinkLock keeps the tray menu and the config reload consumer
	// from re-applying links at the same time
	relinkLock sync.Mutex

	runningWithTray bool
	stopChannel     chan bool
	version         string
	verbose         bool
}

func NewPwmix(logger *zap.SugaredLogger, verbose bool) (*Pwmix, error) {
	logger = logger.Named("pwmix")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create ToastNotifier", "error", err)
		return nil, fmt.Errorf("create new ToastNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	d := &Pwmix{
		logger:      logger,
		notifier:    notifier,
		configMan:   config,
		stopChannel: make(chan bool),
		verbose:     verbose,
	}

	d.graph = newGraph(logger)
	d.watcher = newGraphWatcher(logger, d.graph)
	d.barrier = newSyncBarrier(logger)
	d.planner = newPlanner(logger)

	logger.Debug("Created pwmix instance")

	return d, nil
}

// Initialize sets up the patchbay and starts to run in the background
func (d *Pwmix) Initialize() error {
	d.logger.Debug("Initializing")
	defer d.recoverFromPanic()

	// load the config for the first time
	if err := d.configMan.Load(); err != nil {
		d.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	if err := d.connect(); err != nil {
		d.logger.Errorw("Failed to connect to PipeWire during initialization", "error", err)
		return fmt.Errorf("connect during init: %w", err)
	}

	// freeze the graph once, decide once
	if err := d.discover(); err != nil {
		d.logger.Errorw("Failed to discover the audio graph", "error", err)
		return fmt.Errorf("discover audio graph: %w", err)
	}

	d.report()

	if err := d.patch(); err != nil {
		d.logger.Errorw("Failed to configure the patchbay", "error", err)
		return fmt.Errorf("configure patchbay: %w", err)
	}

	d.setupInterruptHandler()

	if d.currConf().DisableTray {
		d.logger.Debugw("Running without tray icon", "reason", "disabled in config")

		// run in main thread while waiting on ctrl+C
		d.run()
	} else {
		d.runningWithTray = true
		d.initializeTray(d.run)
	}

	return nil
}

// SetVersion causes pwmix to add a version string to its tray menu if called before Initialize
func (d *Pwmix) SetVersion(version string) {
	d.version = version
}

// Verbose returns a boolean indicating whether pwmix is running in verbose mode
func (d *Pwmix) Verbose() bool {
	return d.verbose
}

func (d *Pwmix) currConf() Config {
	return d.configMan.Current()
}

func (d *Pwmix) connect() error {
	client, err := pw.Connect("pwmix")
	if err != nil {
		return fmt.Errorf("establish PipeWire connection: %w", err)
	}

	d.client = client
	d.linker = newLinkExecutor(d.logger, pwLinker{client: client})

	client.Callback = func(event any) {
		switch event := event.(type) {
		case *pw.GlobalEvent:
			d.watcher.handleGlobal(event)
		case *pw.GlobalRemoveEvent:
			d.watcher.handleGlobalRemove(event)
		case *pw.DoneEvent:
			if d.barrier.satisfied(event.Seq) {
				d.client.Stop()
			}
		case *pw.ErrorEvent:
			d.logger.Warnw("PipeWire reported an error",
				"objectID", event.ID,
				"res", event.Res,
				"message", event.Message)
		}
	}

	d.logger.Debug("Connected to PipeWire")

	return nil
}

// discover runs the event loop until the completion barrier is
// satisfied, at which point the graph holds every node and port that
// existed when the barrier was raised
func (d *Pwmix) discover() error {
	if err := d.barrier.raise(d.client); err != nil {
		return fmt.Errorf("raise completion barrier: %w", err)
	}

	if err := d.client.Run(); err != nil {
		return fmt.Errorf("run discovery loop: %w", err)
	}

	d.logger.Infow("Discovered the audio graph", "graph", d.graph)

	return nil
}

// report writes a human-readable listing of the discovered graph,
// aligned on the longest description
func (d *Pwmix) report() {
	nodes := d.graph.Nodes()

	maxDescriptionLen := 40
	for _, node := range nodes {
		if len(node.Description) > maxDescriptionLen {
			maxDescriptionLen = len(node.Description)
		}
	}

	d.logger.Infow("PipeWire nodes found", "count", len(nodes))

	// the full listing is debug noise unless explicitly asked for
	logRow := d.logger.Debugf
	if d.verbose {
		logRow = d.logger.Infof
	}

	for _, node := range nodes {
		logRow("[ID: %3d]  Description: %-*s  [Type: %s  Ports: %v]",
			node.ID,
			maxDescriptionLen,
			node.Description,
			describeMediaClass(node.MediaClass),
			node.Ports)
	}
}

// describeMediaClass maps a raw media class onto the short human tag
// used by the node listing
func describeMediaClass(mediaClass string) string {
	switch mediaClass {
	case "Audio/Sink", "Stream/Input/Audio":
		return "Audio Output"
	case "Audio/Source", "Stream/Output/Audio":
		return "Audio Input"
	case "Video/Sink", "Stream/Input/Video":
		return "Video Output"
	case "Video/Source", "Stream/Output/Video":
		return "Video Input"
	default:
		return "Other/Virtual"
	}
}

// patch plans the channel pairs from the current graph and creates the
// links. Selection failures propagate; individual link failures don't.
func (d *Pwmix) patch() error {
	conf := d.currConf()

	plans, err := d.planner.plan(d.graph.Nodes(), conf.Marker)
	if err != nil {
		return err
	}

	d.logger.Info("Configuring patchbay...")

	created := d.linker.execute(plans, conf.ActiveLinks)

	d.logger.Infow("Patchbay links established", "created", created, "planned", len(plans))

	return nil
}

// relink tears the current links down and re-applies the patch from the
// live graph, used after config reloads and from the tray menu
func (d *Pwmix) relink() {
	d.relinkLock.Lock()
	defer d.relinkLock.Unlock()

	d.logger.Info("Re-applying patchbay links")

	d.linker.releaseAll()

	if err := d.patch(); err != nil {
		d.logger.Warnw("Failed to re-apply patchbay links", "error", err)
		d.notifier.Notify("Failed to re-apply links!", "Please check pwmix's logs for more details.")
	}
}

func (d *Pwmix) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		d.logger.Debugw("Interrupted", "signal", signal)
		d.signalStop()
	}()
}

func (d *Pwmix) setupOnConfigReload() {
	configReloadedChannel := d.configMan.SubscribeToChanges()

	go func() {
		for {
			select {
			case <-configReloadedChannel:
				d.logger.Info("Detected config reload, re-applying patchbay links")
				d.relink()
			}
		}
	}()
}

func (d *Pwmix) run() {
	d.logger.Info("Run loop starting")

	go d.configMan.WatchConfigFileChanges()
	d.setupOnConfigReload()

	// keep servicing registry events so removals are seen and our link
	// proxies stay alive for as long as we do
	go func() {
		if err := d.client.Run(); err != nil {
			// a closed connection is how stop looks from here
			if errors.Is(err, net.ErrClosed) {
				return
			}

			d.logger.Warnw("PipeWire event loop ended unexpectedly", "error", err)
			d.signalStop()
		}
	}()

	d.logger.Info("Links are live. Keep pwmix running to maintain them, or press Ctrl+C to stop")

	// wait until gracefully stopped
	<-d.stopChannel
	d.logger.Debug("Stop channel signaled, terminating")

	if err := d.stop(); err != nil {
		d.logger.Warnw("Failed to stop pwmix", "error", err)
		os.Exit(1)
	} else {
		os.Exit(0)
	}
}

func (d *Pwmix) signalStop() {
	d.logger.Debug("Signalling stop channel")
	d.stopChannel <- true
}

func (d *Pwmix) stop() error {
	d.logger.Info("Stopping")

	d.configMan.StopWatchingConfigFile()

	// dropping the link proxies tears the signal paths down before the
	// connection goes away
	d.linker.releaseAll()

	if err := d.client.Close(); err != nil {
		d.logger.Warnw("Failed to close PipeWire connection", "error", err)
	}

	if d.runningWithTray {
		d.stopTray()
	}

	// attempt to sync on exit - this won't necessarily work but can't harm
	_ = d.logger.Sync()

	return nil
}
