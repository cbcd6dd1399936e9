package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/actorvm/pkg/bytecode"
)

func TestLoaderCachesByDigest(t *testing.T) {
	bin := buildSimpleBinary()
	loader := bytecode.NewLoader()

	first, err := loader.Load(bin.Raw)
	require.NoError(t, err)

	second, err := loader.Load(bin.Raw)
	require.NoError(t, err)

	assert.Same(t, first, second, "identical raw bytes should hit the cache and return the same *Binary")
}

func TestLoaderDistinguishesDifferentBinaries(t *testing.T) {
	a := buildSimpleBinary()
	raw := append([]byte(nil), a.Raw...)
	raw = append(raw, 0x00) // perturb the digest without corrupting decode (trailing code is never reached)

	loader := bytecode.NewLoader()
	first, err := loader.Load(a.Raw)
	require.NoError(t, err)
	second, err := loader.Load(raw)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
}
