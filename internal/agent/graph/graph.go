package graph

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	"github.com/finbuddy-intake-core/server/internal/agent/analysis"
	"github.com/finbuddy-intake-core/server/internal/agent/collection"
	"github.com/finbuddy-intake-core/server/internal/agent/extractor"
	"github.com/finbuddy-intake-core/server/internal/agent/graph/nodes"
	"github.com/finbuddy-intake-core/server/internal/agent/graph/observers"
	"github.com/finbuddy-intake-core/server/internal/agent/metrics"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

// maxRunSteps bounds one turn. The longest path has five nodes.
const maxRunSteps = 10

// Runner executes one compiled turn against a working copy of the session.
type Runner interface {
	Invoke(ctx context.Context, in model.TurnInput, working *model.ConversationState) (*model.StepOutput, error)
}

// Config holds everything needed to compose the turn graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs the
// Gemini chat models and both agents.
type Config struct {
	APIKey            string
	BaseURL           string
	ConversationModel model.ConversationModelConfig
	ExtractionModel   model.ExtractionModelConfig
	LLM               model.LLMConfig
	Analysis          model.AnalysisConfig
	MaxPromptMessages int
	Profiles          model.ProfileStore
	Intake            model.IntakeSink
	Analyses          model.AnalysisSink
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ConversationModel     einomodel.BaseChatModel
	ConversationModelName string
	ExtractionModelName   string
	Collection            *collection.Agent
	Analysis              *analysis.Agent
}

// GraphBuilder handles the construction of the turn graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[*model.TurnRequest, *model.StepOutput]
}

type graphRunner struct {
	runnable compose.Runnable[*model.TurnRequest, *model.StepOutput]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.TurnInput, working *model.ConversationState) (*model.StepOutput, error) {
	out, err := r.runnable.Invoke(ctx, &model.TurnRequest{Input: in, Working: working},
		compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("turn graph produced no output")
	}
	return out, nil
}

// NewRunner wraps an already compiled graph.
func NewRunner(runnable compose.Runnable[*model.TurnRequest, *model.StepOutput]) Runner {
	return &graphRunner{runnable: runnable}
}

// BuildTurnGraph creates the chat models and agents, builds the graph, and
// returns a Runner.
func BuildTurnGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Profiles == nil || cfg.Intake == nil {
		return nil, fmt.Errorf("profile store and intake sink are required")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		ConversationCfg: &cfg.ConversationModel,
		ExtractionCfg:   &cfg.ExtractionModel,
		LLM:             cfg.LLM,
	})
	if err != nil {
		return nil, err
	}

	ext := extractor.New(cms.Extraction, extractor.WithFallbackHook(metrics.RecordExtractionFallback))
	opts := []analysis.Option{analysis.WithSummaryModel(cms.Conversation)}
	if cfg.Analyses != nil {
		opts = append(opts, analysis.WithAnalysisSink(cfg.Analyses))
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ConversationModel:     cms.Conversation,
		ConversationModelName: cms.ConversationModelName,
		ExtractionModelName:   cms.ExtractionModelName,
		Collection:            collection.New(cms.Conversation, ext, cfg.MaxPromptMessages),
		Analysis:              analysis.New(cfg.Profiles, cfg.Intake, cfg.Analysis, opts...),
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Turn graph built successfully")
	return NewRunner(runnable), nil
}

// BuildGraph constructs and returns the compiled turn graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[*model.TurnRequest, *model.StepOutput], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ConversationModel == nil {
		return nil, fmt.Errorf("conversation model is not initialized")
	}
	if config.Collection == nil || config.Analysis == nil {
		return nil, fmt.Errorf("agents are not initialized")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[*model.TurnRequest, *model.StepOutput](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	steps := []func() error{
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeInputConverter,
				nodes.NewInputConverterNode(),
				compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
			)
		},
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeCollectionAssembler,
				nodes.NewCollectionAssemblerNode(b.config.Collection),
			)
		},
		func() error {
			return b.graph.AddChatModelNode(nodes.NodeConversationModel,
				b.config.ConversationModel,
				compose.WithStatePostHandler(nodes.NewChatModelPostHandler(nodes.NodeConversationModel, b.config.ConversationModelName)),
			)
		},
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeCollectionFinalizer,
				nodes.NewCollectionFinalizerNode(b.config.Collection, b.config.ExtractionModelName),
			)
		},
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeConfirmationGate,
				nodes.NewConfirmationGateNode(b.config.Collection, b.config.ExtractionModelName),
			)
		},
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeAnalysisAgent,
				nodes.NewAnalysisAgentNode(b.config.Analysis, b.config.ConversationModelName),
			)
		},
	}
	for _, add := range steps {
		if err := add(); err != nil {
			logx.Error().Err(err).Msg("Error adding graph node")
			return fmt.Errorf("error adding graph node: %w", err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeCollectionAssembler, nodes.NodeConversationModel},
		{nodes.NodeConversationModel, nodes.NodeCollectionFinalizer},
		{nodes.NodeCollectionFinalizer, compose.END},
		{nodes.NodeConfirmationGate, nodes.NodeAnalysisAgent},
		{nodes.NodeAnalysisAgent, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates the agent routing branch
func (b *GraphBuilder) addBranches() error {
	routerBranch := compose.NewGraphBranch(
		nodes.NewRouterCondition(),
		map[string]bool{
			nodes.NodeCollectionAssembler: true,
			nodes.NodeConfirmationGate:    true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeInputConverter, routerBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding router branch")
		return fmt.Errorf("error adding router branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.TurnRequest, *model.StepOutput], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxRunSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
