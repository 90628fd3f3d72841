package agent

import (
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/tbxark/salesagent/analyzer"
	"github.com/tbxark/salesagent/config"
	"github.com/tbxark/salesagent/dialogue"
	"github.com/tbxark/salesagent/dispatch"
	"github.com/tbxark/salesagent/metrics"
	"github.com/tbxark/salesagent/planner"
	"github.com/tbxark/salesagent/proactive"
	"github.com/tbxark/salesagent/types"
	"github.com/tbxark/salesagent/updater"
)

// Collaborators are the external judgments the engine relies on.
type Collaborators struct {
	Understander      analyzer.Understander
	RepetitionChecker analyzer.RepetitionChecker
	Decider           proactive.Decider
	Renderer          dialogue.Renderer
	// Retriever is optional; without it fact actions render with the
	// no-context marker.
	Retriever retriever.Retriever
}

// NewLocalCollaborators works without a model: keyword understanding,
// template rendering and retrieval over the configured offerings.
func NewLocalCollaborators(cfg *config.Config) Collaborators {
	return Collaborators{
		Understander:      analyzer.NewLocalUnderstander(),
		RepetitionChecker: analyzer.NewLocalRepetitionChecker(),
		Decider:           proactive.NewLocalDecider(),
		Renderer:          &dialogue.LocalRenderer{AgentName: cfg.Engine.AgentName, CompanyName: cfg.Engine.CompanyName},
		Retriever:         dispatch.NewKeywordRetriever(dispatch.DocumentsFromOfferings(cfg.Offerings)...),
	}
}

// NewToolBasedCollaborators backs every judgment with chatModel and falls
// back to the local implementation when the model fails.
func NewToolBasedCollaborators(chatModel model.ToolCallingChatModel, cfg *config.Config) (Collaborators, error) {
	local := NewLocalCollaborators(cfg)
	understander, err := analyzer.NewToolBasedUnderstander(chatModel)
	if err != nil {
		return Collaborators{}, fmt.Errorf("failed to create tool-based understander: %w", err)
	}
	checker, err := analyzer.NewToolBasedRepetitionChecker(chatModel)
	if err != nil {
		return Collaborators{}, fmt.Errorf("failed to create tool-based repetition checker: %w", err)
	}
	decider, err := proactive.NewToolBasedDecider(chatModel)
	if err != nil {
		return Collaborators{}, fmt.Errorf("failed to create tool-based decider: %w", err)
	}
	renderer := dialogue.NewToolBasedRenderer(chatModel, dialogue.WithRenderLang(cfg.Engine.Language))
	return Collaborators{
		Understander:      analyzer.NewFailbackUnderstander(understander, local.Understander),
		RepetitionChecker: analyzer.NewFailbackRepetitionChecker(checker, local.RepetitionChecker),
		Decider:           proactive.NewFailbackDecider(decider, local.Decider),
		Renderer:          dialogue.NewFailbackRenderer(renderer, local.Renderer),
		Retriever:         local.Retriever,
	}, nil
}

// Stores are the per-conversation persistence the Flow needs.
type Stores struct {
	States    StateReadWriter
	History   *HistoryStore
	FollowUps FollowUpIndex
	// Locker is nil for stores private to one process.
	Locker Locker
}

func NewMemoryStores(historyWindow int) Stores {
	return Stores{
		States:    NewMemoryStateStore(),
		History:   NewMemoryHistoryStore(historyWindow),
		FollowUps: NewMemoryFollowUpIndex(),
	}
}

// NewRedisStores keeps states, history, the follow-up schedule and the turn
// lock in redis so several engine instances can serve the same conversations.
func NewRedisStores(client redis.UniversalClient, prefix string, historyWindow int) Stores {
	return Stores{
		States:    NewStateStore(NewRedisCache[*types.ConversationState](client, prefix, 0)),
		History:   NewHistoryStore(NewRedisCache[[]*schema.Message](client, prefix, 0), KeepSystemLastNTrimmer{N: historyWindow}),
		FollowUps: NewRedisFollowUpIndex(client, prefix),
		Locker:    NewRedisLocker(client, prefix),
	}
}

// NewFlowFromConfig assembles the turn pipeline. collector may be nil.
func NewFlowFromConfig(cfg *config.Config, c Collaborators, stores Stores, collector *metrics.Collector, opts ...FlowOption) (*Flow, error) {
	if c.Understander == nil || c.RepetitionChecker == nil || c.Decider == nil || c.Renderer == nil {
		return nil, fmt.Errorf("%w: understander, repetition checker, decider and renderer are required", ErrMissingDependency)
	}
	if stores.States == nil || stores.History == nil {
		return nil, fmt.Errorf("%w: state and history stores are required", ErrMissingDependency)
	}
	logger := slog.Default()

	az, err := analyzer.NewAnalyzer(c.Understander, analyzer.NewRepetitionDetector(c.RepetitionChecker, analyzer.WithDetectorLogger(logger)))
	if err != nil {
		return nil, err
	}

	updaterOpts := []updater.Option{updater.WithLogger(logger)}
	plannerOpts := []planner.Option{planner.WithDecider(c.Decider), planner.WithLogger(logger)}
	dispatcherOpts := []dispatch.DispatcherOption{dispatch.WithDispatcherLogger(logger)}
	if c.Retriever != nil {
		dispatcherOpts = append(dispatcherOpts, dispatch.WithRetriever(c.Retriever))
	}
	if collector != nil {
		updaterOpts = append(updaterOpts, updater.WithAnalytics(collector))
		plannerOpts = append(plannerOpts, planner.WithRecorder(collector))
		dispatcherOpts = append(dispatcherOpts, dispatch.WithFallbackRecorder(collector))
		opts = append([]FlowOption{WithTurnRecorder(collector)}, opts...)
	}

	dispatcher, err := dispatch.NewDispatcher(c.Renderer, dispatch.DispatcherConfig{
		ChunkLimit:          cfg.RAG.ChunkLimit,
		SimilarityThreshold: cfg.RAG.SimilarityThreshold,
		Scope:               cfg.RAG.Scope,
		FallbackMessage:     cfg.Engine.FallbackMessage,
		ApologyMessage:      cfg.Engine.ApologyMessage,
		AgentName:           cfg.Engine.AgentName,
		CompanyName:         cfg.Engine.CompanyName,
	}, dispatcherOpts...)
	if err != nil {
		return nil, err
	}
	finalizer, err := dispatch.NewFinalizer(cfg.Engine.FollowUpDelay, dispatch.WithFinalizerLogger(logger))
	if err != nil {
		return nil, err
	}

	if stores.FollowUps != nil {
		opts = append([]FlowOption{WithFollowUpIndex(stores.FollowUps)}, opts...)
	}
	if stores.Locker != nil {
		opts = append([]FlowOption{WithLocker(stores.Locker)}, opts...)
	}
	return NewFlow(Dependencies{
		Analyzer: az,
		Updater:  updater.New(updaterOpts...),
		Planner: planner.New(planner.Config{
			MaxRebuttalAttempts: cfg.Engine.MaxRebuttalAttempts,
			MaxSpinQuestions:    cfg.Engine.MaxSpinQuestionsPerCycle,
			MaxFollowUpAttempts: cfg.Engine.MaxFollowUpAttempts,
			Offerings:           cfg.Offerings,
		}, plannerOpts...),
		Dispatcher: dispatcher,
		Finalizer:  finalizer,
		States:     stores.States,
		History:    stores.History,
	}, opts...)
}
