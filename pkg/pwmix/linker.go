package pwmix

import (
	"sync"

	"go.uber.org/zap"

	"github.com/MixyLabs/pwmix/pkg/pwmix/pw"
)

// linkHandle keeps a created link alive for as long as we hold it
type linkHandle interface {
	Destroy() error
}

// linkCreator is the slice of the pw client the executor needs
type linkCreator interface {
	CreateLink(outputNode, outputPort, inputNode, inputPort uint32, active bool) (linkHandle, error)
}

// pwLinker adapts *pw.Client to the linkCreator interface
type pwLinker struct {
	client *pw.Client
}

func (l pwLinker) CreateLink(outputNode, outputPort, inputNode, inputPort uint32, active bool) (linkHandle, error) {
	link, err := l.client.CreateLink(outputNode, outputPort, inputNode, inputPort, active)
	if err != nil {
		return nil, err
	}

	return link, nil
}

// linkExecutor creates planned links and retains their handles for the
// lifetime of the process (or until a relink replaces them)
type linkExecutor struct {
	logger  *zap.SugaredLogger
	creator linkCreator

	lock  sync.Locker
	links []linkHandle
}

func newLinkExecutor(logger *zap.SugaredLogger, creator linkCreator) *linkExecutor {
	le := &linkExecutor{
		logger:  logger.Named("linker"),
		creator: creator,
		lock:    &sync.Mutex{},
	}

	le.logger.Debug("Created link executor instance")

	return le
}

// execute creates every planned link, returning how many succeeded.
// A failed pair is logged and skipped; the rest are still attempted,
// and nothing already created is rolled back.
func (le *linkExecutor) execute(plans []linkPlan, active bool) int {
	created := 0

	for _, plan := range plans {
		le.logger.Debugw("Linking channel",
			"channel", plan.Channel,
			"sourcePort", plan.SourcePort,
			"destPort", plan.DestPort)

		link, err := le.creator.CreateLink(plan.SourceNode, plan.SourcePort, plan.DestNode, plan.DestPort, active)
		if err != nil {
			le.logger.Errorw("Failed to create link",
				"error", err,
				"channel", plan.Channel,
				"sourceNodeID", plan.SourceNode,
				"destNodeID", plan.DestNode)
			continue
		}

		le.retain(link)
		created++
	}

	return created
}

// releaseAll tears down every retained link, used before re-linking
// after a config reload
func (le *linkExecutor) releaseAll() {
	le.lock.Lock()
	links := le.links
	le.links = nil
	le.lock.Unlock()

	for _, link := range links {
		if err := link.Destroy(); err != nil {
			le.logger.Warnw("Failed to destroy link", "error", err)
		}
	}

	if len(links) > 0 {
		le.logger.Debugw("Released links", "count", len(links))
	}
}

func (le *linkExecutor) retain(link linkHandle) {
	le.lock.Lock()
	defer le.lock.Unlock()

	le.links = append(le.links, link)
}

func (le *linkExecutor) count() int {
	le.lock.Lock()
	defer le.lock.Unlock()

	return len(le.links)
}
