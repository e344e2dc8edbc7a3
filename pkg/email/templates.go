package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template represents a predefined email template type.
type Template string

const (
	// TemplateCollaborationInvite invites an external collaborator to an organization.
	TemplateCollaborationInvite Template = "collaboration_invite"
	// TemplateAccessChanged tells a user their grants changed.
	TemplateAccessChanged Template = "access_changed"
)

// CollaborationInviteData holds data for the invitation template.
type CollaborationInviteData struct {
	UserName         string
	OrganizationName string
	Message          string
	AcceptURL        string
	ExpiresAt        string
	AppName          string
}

// AccessChangedData holds data for the access changed template.
type AccessChangedData struct {
	UserName string
	Feature  string
	Message  string
	AppName  string
}

// TemplateEngine handles email template rendering.
type TemplateEngine struct {
	templates map[Template]*templateDef
}

type templateDef struct {
	subjectTmpl *template.Template
	bodyTmpl    *template.Template
}

// NewTemplateEngine creates a new template engine with all predefined templates.
func NewTemplateEngine() *TemplateEngine {
	engine := &TemplateEngine{
		templates: make(map[Template]*templateDef),
	}
	engine.registerTemplates()
	return engine
}

// Render renders a template with the given data.
func (e *TemplateEngine) Render(tmpl Template, data any) (subject string, body string, err error) {
	def, ok := e.templates[tmpl]
	if !ok {
		return "", "", fmt.Errorf("template %s not found", tmpl)
	}

	var subjectBuf bytes.Buffer
	if err := def.subjectTmpl.Execute(&subjectBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to execute subject template: %w", err)
	}

	var bodyBuf bytes.Buffer
	if err := def.bodyTmpl.Execute(&bodyBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to execute body template: %w", err)
	}

	return subjectBuf.String(), bodyBuf.String(), nil
}

func (e *TemplateEngine) registerTemplates() {
	e.templates[TemplateCollaborationInvite] = &templateDef{
		subjectTmpl: template.Must(template.New("collaboration_invite_subject").Parse("You've been invited to collaborate with {{.OrganizationName}}")),
		bodyTmpl:    template.Must(template.New("collaboration_invite").Parse(layout + collaborationInviteTemplate)),
	}

	e.templates[TemplateAccessChanged] = &templateDef{
		subjectTmpl: template.Must(template.New("access_changed_subject").Parse("Your {{.AppName}} access has changed")),
		bodyTmpl:    template.Must(template.New("access_changed").Parse(layout + accessChangedTemplate)),
	}
}

// Email Templates (HTML)

const layout = `{{define "layout_start"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .container { background: #ffffff; border-radius: 8px; padding: 40px; border: 1px solid #e0e0e0; }
        .button { display: inline-block; background: #2563eb; color: #ffffff; padding: 14px 28px; text-decoration: none; border-radius: 6px; font-weight: 600; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #e0e0e0; font-size: 12px; color: #666; text-align: center; }
    </style>
</head>
<body>
    <div class="container">{{end}}{{define "layout_end"}}
        <div class="footer">
            <p>&copy; {{.AppName}}</p>
        </div>
    </div>
</body>
</html>{{end}}`

const collaborationInviteTemplate = `{{template "layout_start" .}}
        <h2>You're invited to {{.OrganizationName}}</h2>

        <p>Hi{{if .UserName}} {{.UserName}}{{end}},</p>

        <p>{{.Message}}</p>

        {{if .AcceptURL}}<div style="text-align: center;">
            <a href="{{.AcceptURL}}" class="button">Review Invitation</a>
        </div>{{end}}

        {{if .ExpiresAt}}<p>This invitation expires on <strong>{{.ExpiresAt}}</strong>.</p>{{end}}
{{template "layout_end" .}}`

const accessChangedTemplate = `{{template "layout_start" .}}
        <h2>{{.Feature}}</h2>

        <p>Hi{{if .UserName}} {{.UserName}}{{end}},</p>

        <p>{{.Message}}</p>

        <p>If you did not expect this change, contact your administrator.</p>
{{template "layout_end" .}}`
