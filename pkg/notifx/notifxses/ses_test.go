package notifxses_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx/notifxses"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESProvider_SendEmail(t *testing.T) {
	api := &fakeSES{}
	p := notifxses.NewSESProvider(api, "no-reply@example.com")

	err := p.SendEmail(context.Background(), notifx.EmailMessage{
		To:       []string{"alice@example.com"},
		Subject:  "Two-factor enabled",
		HTMLBody: "<p>hi</p>",
	})
	require.NoError(t, err)

	require.NotNil(t, api.input)
	assert.Equal(t, "no-reply@example.com", aws.ToString(api.input.Source))
	assert.Equal(t, []string{"alice@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "Two-factor enabled", aws.ToString(api.input.Message.Subject.Data))
	assert.Equal(t, "<p>hi</p>", aws.ToString(api.input.Message.Body.Html.Data))
	assert.Nil(t, api.input.Message.Body.Text)
}

func TestSESProvider_SendFailureIsRetryable(t *testing.T) {
	p := notifxses.NewSESProvider(&fakeSES{err: errors.New("throttled")}, "no-reply@example.com")

	err := p.SendEmail(context.Background(), notifx.EmailMessage{To: []string{"a@example.com"}, Subject: "x"})
	require.Error(t, err)
	assert.True(t, errx.HasCode(err, notifx.CodeSendFailed))

	var e *errx.Error
	require.True(t, errx.As(err, &e))
	assert.True(t, e.Retryable())
}
