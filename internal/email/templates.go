package email

import (
	"bytes"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
)

// Templates de notificación.
const (
	TemplateSessionReuse    = "session_reuse"
	TemplateMFAEnabled      = "mfa_enabled"
	TemplateMFADisabled     = "mfa_disabled"
	TemplatePasswordChanged = "password_changed"
)

type template struct {
	subject string
	html    *htmltpl.Template
	text    *texttpl.Template
}

// Vars disponibles en todos los templates.
type Vars struct {
	Email   string
	IP      string
	When    string
	Product string
}

var builtin = map[string]struct{ subject, html, text string }{
	TemplateSessionReuse: {
		subject: "Security alert: all sessions were signed out",
		html:    `<p>We detected reuse of an old session token for <b>{{.Email}}</b> from {{.IP}} at {{.When}}.</p><p>All sessions were signed out. If this was not you, contact your {{.Product}} administrator.</p>`,
		text:    "We detected reuse of an old session token for {{.Email}} from {{.IP}} at {{.When}}.\nAll sessions were signed out. If this was not you, contact your {{.Product}} administrator.\n",
	},
	TemplateMFAEnabled: {
		subject: "Two-factor authentication enabled",
		html:    `<p>Two-factor authentication was enabled for <b>{{.Email}}</b> at {{.When}} from {{.IP}}.</p>`,
		text:    "Two-factor authentication was enabled for {{.Email}} at {{.When}} from {{.IP}}.\n",
	},
	TemplateMFADisabled: {
		subject: "Two-factor authentication disabled",
		html:    `<p>Two-factor authentication was <b>disabled</b> for <b>{{.Email}}</b> at {{.When}} from {{.IP}}.</p>`,
		text:    "Two-factor authentication was disabled for {{.Email}} at {{.When}} from {{.IP}}.\n",
	},
	TemplatePasswordChanged: {
		subject: "Your password was changed",
		html:    `<p>The password for <b>{{.Email}}</b> was changed at {{.When}} from {{.IP}}. All sessions were signed out.</p>`,
		text:    "The password for {{.Email}} was changed at {{.When}} from {{.IP}}. All sessions were signed out.\n",
	},
}

func parseTemplates() (map[string]template, error) {
	out := make(map[string]template, len(builtin))
	for id, src := range builtin {
		h, err := htmltpl.New(id + "_html").Parse(src.html)
		if err != nil {
			return nil, fmt.Errorf("email: template %s html: %w", id, err)
		}
		t, err := texttpl.New(id + "_txt").Parse(src.text)
		if err != nil {
			return nil, fmt.Errorf("email: template %s txt: %w", id, err)
		}
		out[id] = template{subject: src.subject, html: h, text: t}
	}
	return out, nil
}

func (t template) render(v Vars) (html, text string, err error) {
	var hb, tb bytes.Buffer
	if err := t.html.Execute(&hb, v); err != nil {
		return "", "", err
	}
	if err := t.text.Execute(&tb, v); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}
