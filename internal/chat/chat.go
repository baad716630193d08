// Package chat runs the model side of a query: a bounded conversation
// loop that offers retrieval tools on the first round, dispatches any
// requested calls through a caller-supplied dispatcher, and feeds the
// results back until the model produces a final text answer.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	// DefaultModelName is the provider-qualified model used when Config
	// leaves ModelName empty.
	DefaultModelName = "googleai/gemini-2.5-flash"

	// DefaultMaxRounds bounds how many sequential tool rounds one query
	// may run before the loop forces a final answer.
	DefaultMaxRounds = 2

	// defaultMaxOutputTokens caps answer length when Config.MaxTokens is
	// unset. Answers are retrieval summaries, so they stay short.
	defaultMaxOutputTokens = 800
)

// DefaultSystemPrompt steers the model toward the two retrieval tools and
// a terse, direct answering style. Config.SystemPrompt overrides it.
const DefaultSystemPrompt = `You are an AI assistant specialized in course materials and educational content, with access to search tools for course information.

Available Tools:
1. search_course_content - Search for specific content inside course materials
2. get_course_outline - Get a course outline: title, link, and the complete lesson list

Tool Usage Guidelines:
- Use search_course_content for questions about specific course content, concepts, or detailed educational materials
- Use get_course_outline for questions about course structure, lesson lists, or course overview information
- Up to 2 tool calls may run sequentially for complex queries; each call is a separate step and you see its results before deciding on the next
- Synthesize tool results into accurate, fact-based responses
- If tools yield no results, state this clearly without offering alternatives

Response Protocol:
- General knowledge questions: answer from existing knowledge without using tools
- Course content questions: use search_course_content first
- Course outline questions: use get_course_outline first and include the course title, course link, and every lesson number and title in your answer
- No meta-commentary: provide the direct answer only, and never mention search results or tool output

All responses must be brief, educational, clear, and example-supported when an example aids understanding.`

// ToolDispatcher executes one requested tool call and returns the text
// the model reads back. Implementations never fail the round: unknown
// tools, bad arguments, and execution errors all come back as readable
// tool output. *tools.Registry satisfies this.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, name string, args json.RawMessage) string
}

// Query is a single user turn through the conversation loop.
type Query struct {
	Text       string
	History    string         // rendered prior exchanges, empty for a fresh session
	Dispatcher ToolDispatcher // nil disables tool execution for this query
}

// Config contains the parameters for a conversation Agent.
type Config struct {
	Genkit *genkit.Genkit
	Logger *slog.Logger
	Tools  []ai.Tool // pre-registered via tools.RegisterGenkit; empty = plain chat

	ModelName    string  // provider-qualified model name (e.g. "googleai/gemini-2.5-flash")
	MaxRounds    int     // maximum sequential tool rounds per query
	SystemPrompt string  // overrides DefaultSystemPrompt when set
	Temperature  float32 // sampling temperature; the zero value keeps answers deterministic
	MaxTokens    int     // max output tokens per generation; 0 = defaultMaxOutputTokens

	RetryConfig RetryConfig   // zero-value uses defaults
	RateLimiter *rate.Limiter // nil = use default
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Agent runs queries against the configured model.
//
// All configuration is captured immutably at construction time, so one
// Agent is safe for concurrent use. Per-query state (the transcript, the
// tool dispatcher) lives in the Query and the local round loop.
type Agent struct {
	// Immutable configuration (captured at construction)
	modelName    string
	maxRounds    int
	systemPrompt string
	genConfig    *genai.GenerateContentConfig

	// Resilience (captured at construction)
	retryConfig RetryConfig
	rateLimiter *rate.Limiter

	// Dependencies (read-only after construction)
	g         *genkit.Genkit
	logger    *slog.Logger
	toolRefs  []ai.ToolRef // cached at construction (ai.Tool implements ai.ToolRef)
	toolNames string       // cached as comma-separated for logging
}

// New creates an Agent with required configuration, applying defaults for
// everything optional.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = DefaultModelName
	}

	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	// Default: 10 requests/sec sustained, burst of 30
	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	// Cache tool refs and names at construction
	toolRefs := make([]ai.ToolRef, len(cfg.Tools))
	names := make([]string, len(cfg.Tools))
	for i, t := range cfg.Tools {
		toolRefs[i] = t
		names[i] = t.Name()
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}

	temperature := cfg.Temperature
	a := &Agent{
		modelName:    modelName,
		maxRounds:    maxRounds,
		systemPrompt: systemPrompt,
		genConfig: &genai.GenerateContentConfig{
			Temperature:     &temperature,
			MaxOutputTokens: int32(maxTokens),
		},

		retryConfig: retryConfig,
		rateLimiter: rl,

		g:         cfg.Genkit,
		logger:    cfg.Logger,
		toolRefs:  toolRefs,
		toolNames: strings.Join(names, ", "),
	}

	a.logger.Debug("chat agent initialized",
		"model", a.modelName,
		"tools", a.toolNames,
		"maxRounds", a.maxRounds,
	)

	return a, nil
}

// Answer runs one query through the conversation loop and returns the
// model's final text.
//
// Tools are offered on the first round only; follow-up rounds answer
// from the tool results already in the transcript, so the loop converges
// after one round of tool use and maxRounds caps it regardless. Tool
// failures never end a query: the dispatcher reports them as tool
// output. Only a model call that fails after retries returns an error.
func (a *Agent) Answer(ctx context.Context, q Query) (string, error) {
	if strings.TrimSpace(q.Text) == "" {
		return "", errors.New("query text is required")
	}

	system := a.systemPrompt
	if q.History != "" {
		system += "\n\nPrevious conversation:\n" + q.History
	}

	messages := []*ai.Message{ai.NewUserMessage(ai.NewTextPart(q.Text))}

	for round := 0; ; round++ {
		resp, err := a.generateWithRetry(ctx, a.roundOpts(system, messages, round))
		if err != nil {
			return "", err
		}

		requests := resp.ToolRequests()
		if round >= a.maxRounds || len(requests) == 0 || q.Dispatcher == nil {
			return resp.Text(), nil
		}

		a.logger.Debug("dispatching tool round", "round", round, "calls", len(requests))
		messages = append(messages, resp.Message, a.dispatchAll(ctx, q.Dispatcher, requests))
	}
}

// roundOpts assembles the generate options for one round.
func (a *Agent) roundOpts(system string, messages []*ai.Message, round int) []ai.GenerateOption {
	opts := []ai.GenerateOption{
		ai.WithModelName(a.modelName),
		ai.WithSystem(system),
		ai.WithMessages(messages...),
		ai.WithConfig(a.genConfig),
		// Requested calls are dispatched by hand, round by round.
		ai.WithReturnToolRequests(true),
	}

	// Tools go out on the first round only.
	if round == 0 && len(a.toolRefs) > 0 {
		opts = append(opts,
			ai.WithTools(a.toolRefs...),
			ai.WithToolChoice(ai.ToolChoiceAuto),
		)
	}

	return opts
}

// dispatchAll executes every requested call in order and bundles the
// results into one tool message, response refs matched to request refs.
func (a *Agent) dispatchAll(ctx context.Context, d ToolDispatcher, requests []*ai.ToolRequest) *ai.Message {
	parts := make([]*ai.Part, 0, len(requests))
	for _, req := range requests {
		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Ref:    req.Ref,
			Name:   req.Name,
			Output: a.dispatchOne(ctx, d, req),
		}))
	}
	return &ai.Message{Role: ai.RoleTool, Content: parts}
}

// dispatchOne reduces one tool request to the text the model reads back.
func (a *Agent) dispatchOne(ctx context.Context, d ToolDispatcher, req *ai.ToolRequest) string {
	args, err := json.Marshal(req.Input)
	if err != nil {
		a.logger.Warn("tool arguments not serializable", "tool", req.Name, "error", err)
		return fmt.Sprintf("Tool '%s' received invalid arguments", req.Name)
	}

	start := time.Now()
	out := d.Dispatch(ctx, req.Name, args)
	a.logger.Debug("tool call dispatched", "tool", req.Name, "elapsed", time.Since(start))
	return out
}
