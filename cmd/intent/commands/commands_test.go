package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyFromFlags(t *testing.T) {
	companyName, companyIndustry, companySize = "Acme", "saas", "51-200"
	companyHandles = []string{"github=acme-inc", "greenhouse=acme"}
	t.Cleanup(func() {
		companyName, companyIndustry, companySize, companyHandles = "", "", "", nil
	})

	c, err := companyFromFlags("acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)
	assert.Equal(t, map[string]string{"github": "acme-inc", "greenhouse": "acme"}, c.Handles)

	companyHandles = []string{"github"}
	_, err = companyFromFlags("acme.com")
	assert.Error(t, err)
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "postgres://intent:xxxxx@db:5432/intent", maskPassword("postgres://intent:s3cret@db:5432/intent"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"api", "start", "scheduler", "companies", "collect", "score", "signals", "migrate", "test-db", "policy"} {
		assert.True(t, names[want], want)
	}
}
