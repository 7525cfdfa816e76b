package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgprovider "github.com/cairnhq/cairn/pkg/provider"
)

type stubProvider struct {
	pkgprovider.Interface
}

func TestLoadProvider_BuiltIns(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"null", "aws", "docker"} {
		require.NoError(t, r.LoadProvider(name))
		p, err := r.Get(name)
		require.NoError(t, err)
		assert.NotNil(t, p)
	}
}

func TestLoadProvider_UnknownFails(t *testing.T) {
	r := NewRegistry()
	err := r.LoadProvider("gcp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestLoadProvider_IsIdempotent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.LoadProvider("null"))
	first, err := r.Get("null")
	require.NoError(t, err)

	require.NoError(t, r.LoadProvider("null"))
	second, err := r.Get("null")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestGet_UnloadedProviderFails(t *testing.T) {
	_, err := NewRegistry().Get("null")
	assert.Error(t, err)
}

func TestRegister_InjectsFakeAndMarksKnown(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Known("fake"))

	fake := &stubProvider{}
	r.Register("fake", fake)

	assert.True(t, r.Known("fake"))
	require.NoError(t, r.LoadProvider("fake"))
	got, err := r.Get("fake")
	require.NoError(t, err)
	assert.Same(t, fake, got)
}

func TestKnown_BuiltInsWithoutLoading(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Known("null"))
	assert.True(t, r.Known("aws"))
	assert.True(t, r.Known("docker"))
	assert.False(t, r.Known("azure"))
}
