package pwmix

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MixyLabs/pwmix/pkg/pwmix/pw"
)

func newTestPatchbay(t *testing.T) (*Pwmix, *fakeCreator) {
	t.Helper()

	logger := zap.NewNop().Sugar()

	cc := newTestConfig(t, "")
	require.NoError(t, cc.Load())

	d := &Pwmix{
		logger:    logger,
		notifier:  silentNotifier{},
		configMan: cc,
		graph:     newGraph(logger),
		planner:   newPlanner(logger),
	}

	creator := &fakeCreator{}
	d.linker = newLinkExecutor(logger, creator)

	d.graph.addNode(&Node{ID: 40, Description: "SPDIF capture", Input: true})
	require.True(t, d.graph.addPort(40, Port{ID: 41, Channel: "FL", Direction: pw.DirectionOut}))

	d.graph.addNode(&Node{ID: 50, Description: "SPDIF sink"})
	require.True(t, d.graph.addPort(50, Port{ID: 51, Channel: "FL", Direction: pw.DirectionIn}))

	return d, creator
}

func TestConcurrentRelinksDontDoubleCreate(t *testing.T) {
	d, _ := newTestPatchbay(t)

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := 0; i < 25; i++ {
				d.relink()
			}
		}()
	}
	wg.Wait()

	// every relink releases the previous links before creating the
	// planned ones, so exactly one link plan's worth may remain
	assert.Equal(t, 1, d.linker.count())
}

func TestReportRowLevelFollowsVerbose(t *testing.T) {
	for _, verbose := range []bool{true, false} {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := zap.New(core).Sugar()

		d := &Pwmix{logger: logger, verbose: verbose, graph: newGraph(logger)}
		d.graph.addNode(&Node{ID: 7, Description: "SPDIF sink", MediaClass: "Audio/Sink"})

		d.report()

		wantLevel := zapcore.DebugLevel
		if verbose {
			wantLevel = zapcore.InfoLevel
		}

		rows := 0
		for _, entry := range logs.All() {
			if !strings.HasPrefix(entry.Message, "[ID:") {
				continue
			}

			rows++
			assert.Equal(t, wantLevel, entry.Level, "verbose=%v", verbose)
		}
		assert.Equal(t, 1, rows, "verbose=%v", verbose)
	}
}
