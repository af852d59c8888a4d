package pgxprovider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oss-evaluation-repository/swaldman-c3p0"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnakeToCamel(t *testing.T) {
	assert.Equal(t, "maxPoolSize", snakeToCamel("max_pool_size"))
	assert.Equal(t, "checkoutTimeout", snakeToCamel("checkout_timeout"))
	assert.Equal(t, "x", snakeToCamel("x"))
}

func TestConnConfigForCredential(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgpass")
	require.NoError(t, os.WriteFile(path, []byte("*:*:*:alice:from-passfile\n"), 0600))

	p, err := New("host=localhost port=5433 user=jack password=secret dbname=mydb")
	require.NoError(t, err)
	require.NoError(t, p.UsePassfile(path))

	config := p.connConfigFor(c3p0.Credential{})
	assert.Equal(t, "jack", config.User)
	assert.Equal(t, "secret", config.Password)

	config = p.connConfigFor(c3p0.Credential{User: "bob", Password: "pw"})
	assert.Equal(t, "bob", config.User)
	assert.Equal(t, "pw", config.Password)

	config = p.connConfigFor(c3p0.Credential{User: "alice"})
	assert.Equal(t, "from-passfile", config.Password)

	assert.Equal(t, "jack", p.config.User)
}
