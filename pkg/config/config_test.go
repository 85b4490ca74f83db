package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, EnvDevelopment, cfg.Env)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "AUT", cfg.Workflow.ReferencePrefix)
	require.Equal(t, "MAJORITY", cfg.Workflow.AdvisoryPolicy)
	require.Equal(t, TransportRedis, cfg.Notifications.Transport)
	require.Equal(t, 30*time.Minute, cfg.Archives.SignedURLTTL)
	require.Equal(t, int64(2*1024*1024), cfg.Documents.MaxSignatureBytes)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WORKFLOW_ADVISORY_POLICY", "unanimous")
	t.Setenv("NOTIFICATIONS_TRANSPORT", "Kafka")
	t.Setenv("NOTIFICATIONS_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("ARCHIVES_SIGNED_URL_TTL", "bogus")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "UNANIMOUS", cfg.Workflow.AdvisoryPolicy)
	require.Equal(t, TransportKafka, cfg.Notifications.Transport)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notifications.KafkaBrokers)
	require.Equal(t, 30*time.Minute, cfg.Archives.SignedURLTTL)
}

func TestLoadLetterhead(t *testing.T) {
	lh, err := LoadLetterhead("")
	require.NoError(t, err)
	require.Equal(t, DefaultLetterhead(), lh)

	path := filepath.Join(t.TempDir(), "letterhead.yaml")
	content := "ministry: Ministry of Energy\nfooter_lines:\n  - line one\n  - line two\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	lh, err = LoadLetterhead(path)
	require.NoError(t, err)
	require.Equal(t, "Ministry of Energy", lh.Ministry)
	require.Equal(t, DefaultLetterhead().Directorate, lh.Directorate)
	require.Equal(t, []string{"line one", "line two"}, lh.FooterLines)

	_, err = LoadLetterhead(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsDevelopmentSecretsInProduction(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", EnvProduction)
	t.Setenv("JWT_SECRET", "a-real-secret")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "ARCHIVES_SIGNED_URL_SECRET must be set in production")
	require.Contains(t, err.Error(), "DOCUMENTS_VERIFICATION_SECRET must be set in production")
	require.NotContains(t, err.Error(), "JWT_SECRET")
}

func TestValidateTransport(t *testing.T) {
	cfg := &Config{Workflow: WorkflowConfig{ReferencePrefix: "AUT"}}

	cfg.Notifications = NotificationsConfig{Transport: "pigeon"}
	require.ErrorContains(t, cfg.Validate(), `unknown NOTIFICATIONS_TRANSPORT "pigeon"`)

	cfg.Notifications = NotificationsConfig{Transport: TransportKafka, KafkaTopic: "t"}
	require.ErrorContains(t, cfg.Validate(), "kafka transport needs")

	cfg.Notifications = NotificationsConfig{Transport: TransportNone}
	require.NoError(t, cfg.Validate())
	require.Equal(t, "cache:6379", RedisConfig{Host: "cache", Port: 6379}.Addr())
}
