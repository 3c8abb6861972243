package bootstrapenv

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare(t *testing.T) {
	Prepare()

	assert.Equal(t, "/tmp", os.Getenv("HOME"))
	assert.Equal(t, "/tmp/.cache", os.Getenv("XDG_CACHE_HOME"))
	assert.Equal(t, "1", os.Getenv("DO_NOT_TRACK"))
	_, hadToken := os.LookupEnv("AWS_SESSION_TOKEN")
	assert.False(t, hadToken)
	_, hadRubyToken := os.LookupEnv("RUBY_AWS_SESSION_TOKEN")
	assert.False(t, hadRubyToken)
}

type fakeResolver struct {
	ssmValues    map[string]string
	secretValues map[string]string
}

func (f *fakeResolver) ResolveSSM(_ context.Context, path string) (string, error) {
	return f.ssmValues[path], nil
}

func (f *fakeResolver) ResolveSecret(_ context.Context, arn string) (string, error) {
	return f.secretValues[arn], nil
}

func TestResolveSecrets(t *testing.T) {
	t.Setenv("PLAIN_VAR", "unchanged")
	t.Setenv("DB_PASSWORD", "ssm:/prod/db/password")
	t.Setenv("API_KEY", "secretsmanager:arn:aws:secretsmanager:us-east-1:1:secret:api-key")

	resolver := &fakeResolver{
		ssmValues:    map[string]string{"/prod/db/password": "hunter2"},
		secretValues: map[string]string{"arn:aws:secretsmanager:us-east-1:1:secret:api-key": "sk-live-abc"},
	}

	require.NoError(t, ResolveSecrets(context.Background(), resolver))

	assert.Equal(t, "unchanged", os.Getenv("PLAIN_VAR"))
	assert.Equal(t, "hunter2", os.Getenv("DB_PASSWORD"))
	assert.Equal(t, "sk-live-abc", os.Getenv("API_KEY"))
}

type erroringResolver struct{}

func (erroringResolver) ResolveSSM(context.Context, string) (string, error) {
	return "", assert.AnError
}

func (erroringResolver) ResolveSecret(context.Context, string) (string, error) {
	return "", assert.AnError
}

func TestResolveSecrets_UnresolvableIsFatal(t *testing.T) {
	t.Setenv("MISSING_PARAM", "ssm:/does/not/exist")

	err := ResolveSecrets(context.Background(), erroringResolver{})
	require.Error(t, err)
}

func TestCheckInterpreter(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ruby"

	require.Error(t, CheckInterpreter(path))

	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644))
	require.Error(t, CheckInterpreter(path), "not executable")

	require.NoError(t, os.Chmod(path, 0o755))
	require.NoError(t, CheckInterpreter(path))
}
