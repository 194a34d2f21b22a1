// Package ai is the store assistant: a Gemini chat session that can read the
// inventory, sales and credit books and change unit prices through Tools.
package ai

import (
	"context"
	"fmt"
	"time"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/config"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// maxToolRounds bounds the call/response exchanges of one question.
const maxToolRounds = 5

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = fmt.Errorf("assistant is not configured: %w", apperror.ErrCollaboratorUnavailable)

type Agent struct {
	cfg   config.AIConfig
	tools *Tools
	log   *zap.Logger
	now   func() time.Time
}

func NewAgent(cfg config.AIConfig, tools *Tools, log *zap.Logger) *Agent {
	return &Agent{cfg: cfg, tools: tools, log: log, now: time.Now}
}

// Enabled reports whether an API key is set.
func (a *Agent) Enabled() bool { return a != nil && a.cfg.APIKey != "" }

func (a *Agent) systemPrompt() string {
	return fmt.Sprintf(`Today is %s. You are the assistant of a small store's point of sale.

RULES:
1. Products are sold in units (piece, pack, case). Every unit has its own barcode and price, and stock is counted in base units (pieces).
2. UPDATE: If the user asks to change a price by NAME, do NOT ask for an ID. Call 'check_inventory' to find the unit id, then call 'update_unit_price'.
3. READ: For price, stock or details of a product, call 'check_inventory' and answer from it.
4. SALES: For sales or revenue, call 'get_sales_report'.
5. CREDIT: For how much a customer owes (utang), call 'get_customer_balance'.
6. Amounts are in pesos.`, a.now().Format("2006-01-02"))
}

// Ask answers one user message, running tool calls until the model replies
// with text.
func (a *Agent) Ask(ctx context.Context, message string) (string, error) {
	if !a.Enabled() {
		return "", ErrDisabled
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(a.cfg.APIKey))
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w: %w", apperror.ErrCollaboratorUnavailable, err)
	}
	defer client.Close()

	model := client.GenerativeModel(a.cfg.Model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(a.systemPrompt()))
	model.Tools = a.tools.Declarations()

	session := model.StartChat()
	resp, err := session.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", unavailable(err)
	}

	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			return replyText(resp), nil
		}

		parts := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			a.log.Info("assistant tool call", zap.String("tool", call.Name), zap.Any("args", call.Args))
			parts = append(parts, genai.FunctionResponse{
				Name:     call.Name,
				Response: a.tools.Call(ctx, call.Name, call.Args),
			})
		}

		if resp, err = session.SendMessage(ctx, parts...); err != nil {
			return "", unavailable(err)
		}
	}

	a.log.Warn("assistant stopped after too many tool calls", zap.Int("rounds", maxToolRounds))
	return replyText(resp), nil
}

func unavailable(err error) error {
	return fmt.Errorf("gemini: %w: %w", apperror.ErrCollaboratorUnavailable, err)
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var calls []genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if call, ok := part.(genai.FunctionCall); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "I completed the action."
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			return string(txt)
		}
	}
	return "I completed the action."
}
