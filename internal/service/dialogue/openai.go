package dialogue

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
)

// OpenAIAssistant implements Assistant on the OpenAI Assistants API.
type OpenAIAssistant struct {
	client      *openai.Client
	assistantID string
}

var _ Assistant = (*OpenAIAssistant)(nil)

// NewOpenAIAssistant binds a configured assistant to a client.
func NewOpenAIAssistant(client *openai.Client, assistantID string) *OpenAIAssistant {
	return &OpenAIAssistant{client: client, assistantID: assistantID}
}

func (a *OpenAIAssistant) CreateThread(ctx context.Context) (string, error) {
	th, err := a.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", err
	}
	return th.ID, nil
}

func (a *OpenAIAssistant) AddUserMessage(ctx context.Context, threadID, text string) error {
	_, err := a.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	return err
}

func (a *OpenAIAssistant) StartRun(ctx context.Context, threadID string) (string, error) {
	run, err := a.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: a.assistantID,
	})
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

func (a *OpenAIAssistant) RunStatus(ctx context.Context, threadID, runID string) (RunStatus, error) {
	run, err := a.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return RunFailed, err
	}
	return mapRunStatus(run.Status), nil
}

// mapRunStatus folds the API's run states into pending, completed and
// failed. requires_action counts as pending: the dispatcher assistant has no
// tools, so such a run ends by timing out.
func mapRunStatus(s openai.RunStatus) RunStatus {
	switch s {
	case openai.RunStatusCompleted:
		return RunCompleted
	case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusCancelling,
		openai.RunStatusExpired, openai.RunStatusIncomplete:
		return RunFailed
	default:
		return RunPending
	}
}

// LatestAssistantMessage returns the text of the newest assistant message.
func (a *OpenAIAssistant) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	page, err := a.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
		Limit: openai.Int(20),
	})
	if err != nil {
		return "", err
	}
	for _, msg := range page.Data {
		if msg.Role != openai.MessageRoleAssistant {
			continue
		}
		var parts []string
		for _, c := range msg.Content {
			if c.Type == "text" {
				parts = append(parts, c.Text.Value)
			}
		}
		return strings.Join(parts, "\n"), nil
	}
	return "", errors.New("no assistant message in thread")
}
