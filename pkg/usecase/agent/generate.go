package agent

import (
	"context"
	"strings"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ReasoningDelimiter closes the model's deliberation block
const ReasoningDelimiter = "</think>"

// Generation is the outcome of the tool-augmented generation loop
type Generation struct {
	// Text is the post-processed final answer. Empty means no reply.
	Text string
	// Raw is the last model output before post-processing
	Raw string
	// Rounds counts gateway calls
	Rounds int
	// ToolCalls counts executed tool calls
	ToolCalls int
	// Aborted is set when the loop stopped on repetition or the round cap
	Aborted bool
}

// Generate runs the tool-augmented loop over messages. Tool calls in the
// model output are executed and their results fed back until an output
// carries no call. The loop aborts when the first call of a batch repeats
// the previous one more than the repeat threshold, returning the last output.
func (a *Agent) Generate(ctx context.Context, messages []model.Message) (*Generation, error) {
	logger := logging.From(ctx)
	messages = append([]model.Message(nil), messages...)

	output, err := a.complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	gen := &Generation{Rounds: 1}

	var (
		last    *model.ToolCall
		repeats int
	)
	for {
		calls := tool.ParseCalls(output)
		if len(calls) == 0 {
			break
		}

		first := calls[0]
		if last != nil && last.Same(first) {
			if repeats >= a.repeatThreshold {
				logger.Warn("repeated tool call, stop generation",
					"tool", first.Name, "repeats", repeats)
				gen.Aborted = true
				break
			}
			repeats++
		} else {
			repeats = 1
		}
		last = &first

		if a.maxRounds > 0 && gen.Rounds >= a.maxRounds {
			logger.Warn("tool round limit reached", "rounds", gen.Rounds)
			gen.Aborted = true
			break
		}

		messages = append(messages, model.AssistantMessage(output))
		for _, call := range calls {
			result := a.tools.Run(ctx, call)
			a.metrics.ToolCall(call.Name, result.Error != "")
			gen.ToolCalls++

			content := result.Content()
			logger.Debug("tool result", "tool", call.Name, "args", call.Args, "result", content)
			messages = append(messages, model.ToolMessage(call.Name, content))
		}

		output, err = a.complete(ctx, messages)
		if err != nil {
			return nil, err
		}
		gen.Rounds++
	}

	gen.Raw = output
	gen.Text = Finalize(output)
	return gen, nil
}

// complete makes one gateway call, streaming when a stream handler is set
func (a *Agent) complete(ctx context.Context, messages []model.Message) (string, error) {
	if a.stream == nil {
		output, err := a.gateway.Generate(ctx, messages)
		if err != nil {
			return "", goerr.Wrap(model.Kind(model.ErrGeneration, err), "failed to generate", goerr.V("messages", len(messages)))
		}
		return output, nil
	}

	var b strings.Builder
	for chunk, err := range a.gateway.GenerateStream(ctx, messages) {
		if err != nil {
			return "", goerr.Wrap(model.Kind(model.ErrGeneration, err), "failed to generate stream", goerr.V("messages", len(messages)))
		}
		b.WriteString(chunk)
		a.stream(chunk)
	}
	return b.String(), nil
}

// Finalize keeps the text after the last reasoning delimiter, trimmed
func Finalize(output string) string {
	if i := strings.LastIndex(output, ReasoningDelimiter); i >= 0 {
		output = output[i+len(ReasoningDelimiter):]
	}
	return strings.TrimSpace(output)
}
