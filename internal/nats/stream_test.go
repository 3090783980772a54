package nats

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/assistant-chat/internal/model"
	"github.com/capitalize-ai/assistant-chat/pkg/logger"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "chat.acme.th1.thread", ThreadSubject("acme", "th1"))
	assert.Equal(t, "chat.acme.th1.msg.assistant", MessageSubject("acme", "th1", model.RoleAssistant))
	assert.Equal(t, "chat.acme.th1.msg.>", messageFilter("acme", "th1"))
	assert.Equal(t, "chat.acme._.interaction", InteractionSubject("acme", ""))
}

func TestSubjectTokenSanitizes(t *testing.T) {
	assert.Equal(t, "a_b_c_d", subjectToken("a.b*c>d"))
	assert.Equal(t, "tenant_3", subjectToken("tenant 3"))
	assert.Equal(t, "chat.bad_tenant.th1.thread", ThreadSubject("bad.tenant", "th1"))
}

func TestValidThreadID(t *testing.T) {
	assert.True(t, validThreadID("0190b8a5-8f1e-7c3a-9d2b-5f6e7a8b9c0d"))
	assert.False(t, validThreadID(""))
	assert.False(t, validThreadID("th.1"))
	assert.False(t, validThreadID("th>"))
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{}, logger.NewNop())
	assert.EqualError(t, err, "NATS URL is required")
}

func TestCreateTLSConfig(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(bogus, []byte("not a certificate"), 0o600))

	_, err := createTLSConfig(filepath.Join(dir, "missing.pem"), "", "")
	assert.ErrorContains(t, err, "failed to read CA file")

	_, err = createTLSConfig(bogus, "", "")
	assert.EqualError(t, err, "failed to parse CA certificate")

	_, err = createTLSConfig("", "cert.pem", "")
	assert.EqualError(t, err, "client certificate requires both cert and key files")

	cfg, err := createTLSConfig("", "", "")
	require.NoError(t, err)
	assert.Nil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)
}
