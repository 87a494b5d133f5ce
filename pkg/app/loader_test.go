package app

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keypair.json")
	require.NoError(t, os.WriteFile(path, []byte("[1,2,3]"), 0600))

	for _, fileURL := range []string{path, "file://" + path} {
		data, err := LoadFile(fileURL)
		require.NoError(t, err)
		assert.Equal(t, "[1,2,3]", string(data))
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadFile("s3://bucket/keypair.json")
	assert.Error(t, err)
}

type staticLoader []byte

func (l staticLoader) Load(_ *url.URL) ([]byte, error) {
	return l, nil
}

func TestRegisterFileLoaderCtor(t *testing.T) {
	RegisterFileLoaderCtor("static", func() (FileLoader, error) {
		return staticLoader("contents"), nil
	})

	data, err := LoadFile("static://anything")
	require.NoError(t, err)
	assert.Equal(t, "contents", string(data))

	assert.Panics(t, func() {
		RegisterFileLoaderCtor("static", func() (FileLoader, error) { return nil, nil })
	})
}
