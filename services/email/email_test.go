package emailsvc

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dhamana/core"
	"github.com/trezcool/dhamana/tests"
)

func testConfig() *core.Config {
	return &core.Config{
		AppName: "Dhamana",
		Email: core.EmailConfig{
			DefaultFromEmail: "Dhamana <noreply@dhamana.test>",
			SendgridApiKey:   "sg-key",
		},
	}
}

func TestConsoleServiceMock(t *testing.T) {
	require.NoError(t, core.RegisterEmailTemplate("test/hello", "Hello {{.}}!"))
	logger := &testutil.Logger{}
	svc := NewConsoleServiceMock(testConfig(), logger)

	to := []mail.Address{{Name: "Manager", Address: "manager@dhamana.test"}}
	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "plain", BodyStr: "hi"},
		&core.EmailMessage{To: to, Subject: "templated", TemplateName: "test/hello", TemplateData: "there"},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hi"},
		&core.EmailMessage{To: to, Subject: "no content"},
		&core.EmailMessage{To: to, Subject: "unknown template", TemplateName: "test/missing"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "hi", sent[0].TextContent)
	assert.Equal(t, "Hello there!", sent[1].TextContent)

	entries := logger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "error", entries[0].Level)

	out := svc.format(sent[1])
	assert.Contains(t, out, "Subject: [Dhamana] templated\r\n")
	assert.Contains(t, out, "From: \"Dhamana\" <noreply@dhamana.test>\r\n")
	assert.Contains(t, out, "To: \"Manager\" <manager@dhamana.test>\r\n")
}

func TestSendgridService_send(t *testing.T) {
	var gotReq rest.Request
	respCode := http.StatusAccepted
	origAPIFunc := sendgridAPIFunc
	defer func() { sendgridAPIFunc = origAPIFunc }()
	sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
		gotReq = req
		return &rest.Response{StatusCode: respCode, Body: "nope"}, nil
	}

	logger := &testutil.Logger{}
	svc := NewSendgridService(testConfig(), logger).(*sendgridService)
	msg := core.EmailMessage{
		To:          []mail.Address{{Address: "manager@dhamana.test"}},
		Subject:     "Deposit withdrawn: Go 101",
		TextContent: "alice withdrew their deposit",
	}

	require.NoError(t, svc.send(msg))
	assert.Equal(t, rest.Post, gotReq.Method)
	assert.Equal(t, host+endpoint, gotReq.BaseURL)
	assert.Equal(t, "Bearer sg-key", gotReq.Headers["Authorization"])

	var body struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			Subject string `json:"subject"`
			To      []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
		Content []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(gotReq.Body, &body))
	assert.Equal(t, "noreply@dhamana.test", body.From.Email)
	require.Len(t, body.Personalizations, 1)
	assert.Equal(t, "[Dhamana] Deposit withdrawn: Go 101", body.Personalizations[0].Subject)
	assert.Equal(t, "manager@dhamana.test", body.Personalizations[0].To[0].Email)
	require.Len(t, body.Content, 1)
	assert.Equal(t, "text/plain", body.Content[0].Type)
	assert.Equal(t, msg.TextContent, body.Content[0].Value)
	assert.Empty(t, logger.Entries())

	respCode = http.StatusBadRequest
	assert.Error(t, svc.send(msg))
	assert.Len(t, logger.Entries(), 1)
}
