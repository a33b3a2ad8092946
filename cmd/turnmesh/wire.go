package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/hupe1980/turnmesh"
	"github.com/hupe1980/turnmesh/classifier"
	"github.com/hupe1980/turnmesh/config"
	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/ingest"
	"github.com/hupe1980/turnmesh/invoker"
	"github.com/hupe1980/turnmesh/lock"
	"github.com/hupe1980/turnmesh/logging"
	"github.com/hupe1980/turnmesh/model"
	"github.com/hupe1980/turnmesh/model/anthropic"
	"github.com/hupe1980/turnmesh/model/openai"
	"github.com/hupe1980/turnmesh/queue"
	"github.com/hupe1980/turnmesh/store/sqlite"
)

type app struct {
	mesh    *turnmesh.Mesh
	batcher *ingest.Batcher
	closers []func() error
	logger  logging.Logger
	now     func() time.Time
}

// build wires the stores, model and mesh described by cfg. Replies are
// written to out.
func build(cfg config.Config, logger logging.Logger, out io.Writer) (*app, error) {
	a := &app{logger: logger, now: time.Now}

	kw := classifier.DefaultKeywords()
	if cfg.Classifier.KeywordsFile != "" {
		loaded, err := classifier.LoadKeywordsFile(cfg.Classifier.KeywordsFile)
		if err != nil {
			return nil, err
		}
		kw = loaded
	}

	locks, q, err := a.stores(cfg, logger)
	if err != nil {
		return nil, err
	}

	m, err := newModel(cfg.LLM)
	if err != nil {
		a.Close()
		return nil, err
	}
	inv, err := invoker.New(m, func(o *invoker.Options) { o.Logger = logger })
	if err != nil {
		a.Close()
		return nil, err
	}

	var outMu sync.Mutex
	a.mesh, err = turnmesh.New(func(o *turnmesh.Options) {
		o.Invoker = inv
		o.Locks = locks
		o.Queue = q
		o.Classifier = classifier.New(kw)
		o.MaxTokens = cfg.Budget.MaxTokens
		o.DrainInterval = cfg.Drain.PollInterval
		o.LockRefresh = cfg.Lock.TTL / 4
		o.Logger = logger
		o.OnReply = func(_ context.Context, r turnmesh.Reply) {
			outMu.Lock()
			defer outMu.Unlock()
			writeReply(out, r)
		}
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.batcher, err = a.mesh.NewBatcher(func(o *ingest.Options) { o.Window = cfg.Ingest.Window })
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

type lockQueue interface {
	core.LockAcquirer
	core.QueueWriter
}

func (a *app) stores(cfg config.Config, logger logging.Logger) (core.LockAcquirer, core.QueueWriter, error) {
	if cfg.Store.Driver == "sqlite" {
		s, err := sqlite.Open(cfg.Store.Path, func(o *sqlite.Options) {
			o.TTL = cfg.Lock.TTL
			o.Logger = logger
		})
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, s.Close)
		var both lockQueue = s
		return both, both, nil
	}
	locks := lock.NewInMemoryStore(func(o *lock.Options) {
		o.TTL = cfg.Lock.TTL
		o.Logger = logger
	})
	return locks, queue.NewInMemoryStore(), nil
}

func newModel(cfg config.LLMConfig) (model.Model, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.APIKey()
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
		}), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.APIKey()
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	case "mock", "":
		name := cfg.Model
		if name == "" {
			name = "echo"
		}
		return model.NewMockModel(name, "mock"), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func (a *app) newMessage(chatID, handle, line string) (core.Message, bool) {
	text := strings.TrimSpace(line)
	if text == "" {
		return core.Message{}, false
	}
	msg := core.Message{ID: uuid.NewString(), ChatID: chatID, Text: text, Timestamp: a.now()}
	if handle != "" {
		msg.Handles = []string{handle}
	}
	return msg, true
}

func writeReply(out io.Writer, r turnmesh.Reply) {
	if r.Queued {
		return
	}
	fmt.Fprintf(out, "[%s] %s\n", r.ChatID, r.Text)
	if r.Warning != "" {
		fmt.Fprintf(out, "[%s] (%s) %s\n", r.ChatID, r.Metrics.Level, r.Warning)
	}
}

// Close flushes pending batches, stops the drain loop and closes stores.
func (a *app) Close() {
	if a.batcher != nil {
		a.batcher.Close()
	}
	if a.mesh != nil {
		<-a.mesh.StopDrainLoop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("Close failed", "error", err)
		}
	}
	a.closers = nil
}
