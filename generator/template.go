package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TemplateModel is reported as the model of template drafts.
const TemplateModel = "template"

// Template renders fixed drafts locally. It is used when no generation service
// is configured and by the stress harness.
type Template struct{}

func (Template) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	p := req.Prompt
	title := strings.ReplaceAll(p.CommunicationType, "_", " ")
	draft := map[string]string{
		"subject": fmt.Sprintf("Re: %s for account %s", title, p.CaseID),
		"content": fmt.Sprintf("Dear %s, our records show an outstanding balance of %.2f, now %d days overdue. Please contact us to arrange payment.",
			p.DebtorName, p.OutstandingAmount, p.DaysOverdue),
	}
	body, err := json.Marshal(draft)
	if err != nil {
		return Response{}, fmt.Errorf("generator: render template: %w", err)
	}
	return Response{Content: string(body), Model: TemplateModel}, nil
}
