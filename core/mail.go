package core

import (
	"bytes"
	"net/mail"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

var templates = struct {
	sync.RWMutex
	m map[string]*texttmpl.Template
}{m: make(map[string]*texttmpl.Template)}

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string
		TemplateData interface{}
		TextContent  string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// RegisterEmailTemplate parses and registers a text/plain email template under name.
func RegisterEmailTemplate(name, text string) error {
	tmpl, err := texttmpl.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return errors.Wrapf(err, "parsing email template %q", name)
	}
	templates.Lock()
	templates.m[name] = tmpl
	templates.Unlock()
	return nil
}

func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	} else if m.TemplateName == "" {
		return nil
	}

	templates.RLock()
	tmpl, ok := templates.m[m.TemplateName]
	templates.RUnlock()
	if !ok {
		return errors.Errorf("email template %q not registered", m.TemplateName)
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.TemplateData); err != nil {
		return errors.Wrapf(err, "executing email template %q", m.TemplateName)
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.TextContent != "" }
