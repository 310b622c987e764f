// Package rules runs the ordered, condition-gated hooks configured around
// target writes.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/openbridge/objectsync/internal/logic"
	"github.com/openbridge/objectsync/internal/model"
)

// ErrorResponse is a terminal result from a rule handler. It
// short-circuits all remaining rules and is propagated to the caller.
type ErrorResponse struct {
	// Rule names the rule that produced the response
	Rule string

	// Message describes why processing stopped
	Message string
}

func (e *ErrorResponse) String() string {
	return fmt.Sprintf("rule %q: %s", e.Rule, e.Message)
}

// Handler processes rules of the types it recognizes.
type Handler interface {
	// CanProcess reports whether this handler handles the rule's type
	CanProcess(rule *model.Rule) bool

	// Process applies the rule and returns replacement data, or a
	// terminal ErrorResponse, or an error for unexpected failures
	Process(ctx context.Context, rule *model.Rule, data map[string]any) (map[string]any, *ErrorResponse, error)
}

// Engine dispatches rules to the first registered handler that accepts
// them.
type Engine struct {
	handlers []Handler
}

// NewEngine creates a rule engine. With no handlers given, the built-in
// mapping and unset handlers are registered.
func NewEngine(handlers ...Handler) *Engine {
	if len(handlers) == 0 {
		handlers = []Handler{NewMappingHandler(), NewUnsetHandler()}
	}
	return &Engine{handlers: handlers}
}

// ProcessRules applies every rule matching the timing and action to data,
// strictly in order, and returns the resulting data. Rules whose
// conditions evaluate false are skipped; rules without a handler are
// logged and skipped. A terminal ErrorResponse stops the chain.
func (e *Engine) ProcessRules(
	ctx context.Context,
	allRules []model.Rule,
	data map[string]any,
	timing string,
	action string,
) (map[string]any, *ErrorResponse, error) {
	applicable := selectRules(allRules, timing, action)

	for i := range applicable {
		rule := &applicable[i]

		ok, err := logic.Evaluate(rule.Conditions, logic.EscapeKeys(data))
		if err != nil {
			return nil, nil, fmt.Errorf("rule %q conditions: %w", ruleName(rule), err)
		}
		if !ok {
			continue
		}

		handler := e.handlerFor(rule)
		if handler == nil {
			slog.Warn("No handler registered for rule type, skipping",
				"rule", ruleName(rule),
				"type", rule.Type)
			continue
		}

		replaced, errResp, err := handler.Process(ctx, rule, data)
		if err != nil {
			slog.Error("Rule handler failed",
				"rule", ruleName(rule),
				"type", rule.Type,
				"error", err)
			return nil, &ErrorResponse{Rule: ruleName(rule), Message: err.Error()}, nil
		}
		if errResp != nil {
			if errResp.Rule == "" {
				errResp.Rule = ruleName(rule)
			}
			return nil, errResp, nil
		}
		if replaced != nil {
			data = replaced
		}
	}

	return data, nil, nil
}

// selectRules filters by timing and action and sorts by the explicit
// order field, ties keeping definition order.
func selectRules(allRules []model.Rule, timing, action string) []model.Rule {
	selected := make([]model.Rule, 0, len(allRules))
	for _, rule := range allRules {
		if rule.Timing != timing {
			continue
		}
		if rule.Action != "" && rule.Action != action {
			continue
		}
		selected = append(selected, rule)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Order < selected[j].Order
	})
	return selected
}

func (e *Engine) handlerFor(rule *model.Rule) Handler {
	for _, handler := range e.handlers {
		if handler.CanProcess(rule) {
			return handler
		}
	}
	return nil
}

func ruleName(rule *model.Rule) string {
	if rule.Name != "" {
		return rule.Name
	}
	return rule.Type
}
