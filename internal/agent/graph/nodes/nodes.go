package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/finbuddy-intake-core/server/internal/agent/analysis"
	"github.com/finbuddy-intake-core/server/internal/agent/collection"
	"github.com/finbuddy-intake-core/server/internal/agent/metrics"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
	"github.com/finbuddy-intake-core/server/internal/agent/router"
	errx "github.com/finbuddy-intake-core/server/internal/core/error"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

// NewInputConverterPreHandler creates the pre-handler for InputConverter node
func NewInputConverterPreHandler() func(context.Context, *model.TurnRequest, *model.AppState) (*model.TurnRequest, error) {
	return func(ctx context.Context, in *model.TurnRequest, s *model.AppState) (*model.TurnRequest, error) {
		if in == nil || in.Working == nil {
			return nil, fmt.Errorf("turn request has no working state")
		}
		s.SessionID = in.Working.SessionID
		s.UserID = strings.TrimSpace(in.Input.UserID)
		if s.UserID == "" {
			s.UserID = in.Working.UserID
		}
		s.Working = in.Working
		// Reset accumulated total cost for each new turn
		s.TotalCostUSD = 0
		s.ModelCalls = 0
		return in, nil
	}
}

// NewInputConverterNode appends the user's utterance to the working state.
func NewInputConverterNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *model.TurnRequest) (*model.ConversationState, error) {
		s := in.Working
		if uid := strings.TrimSpace(in.Input.UserID); uid != "" {
			s.UserID = uid
		}
		s.Append(model.RoleUser, strings.TrimSpace(in.Input.Utterance))
		return s, nil
	})
}

// NewRouterCondition routes the turn to the collection or analysis path.
func NewRouterCondition() func(context.Context, *model.ConversationState) (string, error) {
	return func(ctx context.Context, s *model.ConversationState) (string, error) {
		agent := router.Route(s)
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Agent = agent
			return nil
		})
		logx.Debug().
			Str("session_id", s.SessionID).
			Str("phase", string(s.Phase)).
			Str("agent", string(agent)).
			Msg("Routing turn")
		if agent == model.AgentAnalysis {
			return NodeConfirmationGate, nil
		}
		return NodeCollectionAssembler, nil
	}
}

// NewCollectionAssemblerNode builds the conversation model input.
func NewCollectionAssemblerNode(agent *collection.Agent) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.ConversationState) ([]*schema.Message, error) {
		msgs, err := agent.BuildPrompt(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("build collection prompt: %w", err)
		}
		return msgs, nil
	})
}

// NewChatModelPostHandler computes and logs usage cost for a model node.
func NewChatModelPostHandler(node, modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		state.ModelCalls++
		if usage := model.UsageOf(out); usage != nil {
			recordUsage(state, node, modelName, usage)
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			// Also expose running total in the message Extra for visibility
			out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
		}
		return out, nil
	}
}

// NewCollectionFinalizerNode records the model reply, runs extraction and
// applies the phase rules.
func NewCollectionFinalizerNode(agent *collection.Agent, extractionModel string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, reply *schema.Message) (*model.StepOutput, error) {
		if reply == nil || strings.TrimSpace(reply.Content) == "" {
			return nil, errx.WrapModel(errors.New("conversation model returned an empty reply"))
		}
		s, err := workingState(ctx)
		if err != nil {
			return nil, err
		}

		outcome := agent.Finalize(ctx, s, reply.Content)
		if usage := outcome.Extraction.Usage; usage != nil {
			_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
				state.ModelCalls++
				recordUsage(state, NodeCollectionFinalizer, extractionModel, usage)
				return nil
			})
		}
		return model.NewStepOutput(model.AgentCollection, outcome.Reply, s), nil
	})
}

// NewConfirmationGateNode consumes the affirmative utterance, marks the
// session confirmed and picks up any correction given with it.
func NewConfirmationGateNode(agent *collection.Agent, extractionModel string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
		if !collection.DetectConfirmation(s) {
			return s, nil
		}
		logx.Debug().Str("session_id", s.SessionID).Msg("User confirmed intake")

		res, ok := agent.Reconcile(ctx, s)
		if !ok {
			return s, nil
		}
		if usage := res.Usage; usage != nil {
			_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
				state.ModelCalls++
				recordUsage(state, NodeConfirmationGate, extractionModel, usage)
				return nil
			})
		}
		logx.Debug().
			Str("session_id", s.SessionID).
			Str("extraction_source", string(res.Source)).
			Msg("Re-extracted intake from confirming reply")
		return s, nil
	})
}

// NewAnalysisAgentNode runs the analysis agent for a confirmed session.
func NewAnalysisAgentNode(agent *analysis.Agent, summaryModel string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.ConversationState) (*model.StepOutput, error) {
		var userID string
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			userID = state.UserID
			return nil
		})

		outcome := agent.Analyze(ctx, s, userID)
		switch {
		case outcome.Refused:
			metrics.RecordAnalysis("refused")
			return model.NewStepOutput(model.AgentCollection, outcome.Reply, s), nil
		case outcome.Failed:
			metrics.RecordAnalysis("failed")
			return model.NewStepOutput(model.AgentAnalysis, outcome.Reply, s), nil
		}

		if outcome.Usage != nil {
			_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
				state.ModelCalls++
				recordUsage(state, NodeAnalysisAgent, summaryModel, outcome.Usage)
				return nil
			})
		}
		if outcome.Degraded {
			metrics.RecordAnalysis("degraded")
		} else {
			metrics.RecordAnalysis("success")
		}

		out := model.NewStepOutput(model.AgentAnalysis, outcome.Reply, s)
		out.Analysis = outcome.Result
		out.RedirectTo = model.RedirectRecommendation
		out.Degraded = outcome.Degraded
		return out, nil
	})
}

func workingState(ctx context.Context) (*model.ConversationState, error) {
	var s *model.ConversationState
	err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		if state.Working == nil {
			return fmt.Errorf("missing working state")
		}
		s = state.Working
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access state: %w", err)
	}
	return s, nil
}

func recordUsage(state *model.AppState, node, modelName string, usage *schema.TokenUsage) {
	pricing := model.ResolvePricing(modelName)
	inC, outC, totalC := model.ComputeCost(usage, pricing)
	logx.Debug().
		Str("session_id", state.SessionID).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")

	// Accumulate only total cost into state
	state.TotalCostUSD += totalC
	metrics.RecordModelUsage(modelName, usage.PromptTokens, usage.CompletionTokens, totalC)
}
