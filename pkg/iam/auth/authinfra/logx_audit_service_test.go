package authinfra

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogxAuditService_FailedLoginIsWarning(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := logx.DefaultConfig()
	cfg.Format = logx.FormatJSON
	cfg.Output = buf
	audit := NewLogxAuditService(logx.NewLogger(cfg))

	ctx := logx.ContextWithFields(context.Background(), logx.Fields{"request_id": "req-1"})
	audit.LogLoginAttempt(ctx, kernel.NewUserID("u-1"), "password", false, "10.0.0.1", "curl/8")

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "WARN", out["level"])
	assert.Equal(t, "login_attempt", out["audit_event"])
	assert.Equal(t, "u-1", out["user_id"])
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "req-1", out["request_id"])
}
