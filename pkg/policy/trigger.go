package policy

import (
	"context"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

// TriggerQuery is the Rego document deciding whether to reply
const TriggerQuery = "data.trigger"

// regoPrintHook forwards Rego print() statements to the context logger
type regoPrintHook struct {
	ctx context.Context
}

func (h *regoPrintHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// TriggerInput is the `input` document of the trigger policy
type TriggerInput struct {
	URI       string   `json:"uri"`
	AuthorDID string   `json:"author_did"`
	Text      string   `json:"text"`
	Langs     []string `json:"langs"`
	IsReply   bool     `json:"is_reply"`
	ParentURI string   `json:"parent_uri"`
	Mentions  []string `json:"mentions"`
	EmbedKind string   `json:"embed_kind"`
	AgentDID  string   `json:"agent_did"`
}

// NewTriggerInput builds the policy input from a decoded post record
func NewTriggerInput(uri, authorDID, agentDID string, record *model.PostRecord) *TriggerInput {
	input := &TriggerInput{
		URI:       uri,
		AuthorDID: authorDID,
		Text:      record.Text,
		Langs:     record.Langs,
		AgentDID:  agentDID,
		Mentions:  record.MentionedDIDs(),
	}
	if record.Reply != nil {
		input.IsReply = true
		input.ParentURI = record.Reply.Parent.URI
	}
	if record.Embed != nil {
		input.EmbedKind = string(record.Embed.Kind)
	}
	return input
}

// Trigger evaluates `data.trigger.reply`. A Trigger without Rego files
// allows every post.
type Trigger struct {
	query *rego.PreparedEvalQuery
}

// NewTrigger loads every .rego file in policyDir
func NewTrigger(ctx context.Context, policyDir string) (*Trigger, error) {
	modules, err := loadModules(policyDir)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return &Trigger{}, nil
	}

	query, err := prepareQuery(ctx, modules, TriggerQuery)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare trigger query")
	}

	return &Trigger{query: query}, nil
}

// Allow reports whether the policy permits replying. An undefined
// `reply` rule denies.
func (t *Trigger) Allow(ctx context.Context, input *TriggerInput) (bool, error) {
	if t == nil || t.query == nil {
		return true, nil
	}

	rs, err := t.query.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&regoPrintHook{ctx: ctx}))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate trigger policy", goerr.V("uri", input.URI))
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return false, goerr.New("invalid trigger result", goerr.V("value", rs[0].Expressions[0].Value))
	}

	reply, _ := data["reply"].(bool)
	if reason, ok := data["reason"].(string); ok && reason != "" {
		logging.From(ctx).Debug("trigger policy decision", "uri", input.URI, "reply", reply, "reason", reason)
	}

	return reply, nil
}
