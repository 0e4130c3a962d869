package redirect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
)

func strict(u string) repository.RedirectURI {
	return repository.RedirectURI{MatchingMode: repository.MatchStrict, URL: u}
}

func regex(u string) repository.RedirectURI {
	return repository.RedirectURI{MatchingMode: repository.MatchRegex, URL: u}
}

func TestStrict_TrailingSlashMatters(t *testing.T) {
	m, err := Compile([]repository.RedirectURI{strict("http://localhost:9009/")})
	require.NoError(t, err)

	_, ok := m.Match("http://localhost:9009")
	require.False(t, ok)

	got, ok := m.Match("http://localhost:9009/")
	require.True(t, ok)
	require.Equal(t, "http://localhost:9009/", got.URL)
}

func TestStrict_NoNormalization(t *testing.T) {
	m, err := Compile([]repository.RedirectURI{strict("https://app.example.com/cb")})
	require.NoError(t, err)

	for _, c := range []string{
		"https://APP.example.com/cb",
		"https://app.example.com:443/cb",
		"https://app.example.com/cb?x=1",
		"https://app.example.com/%63b",
		"https://app.example.com/cb#frag",
		" https://app.example.com/cb",
	} {
		_, ok := m.Match(c)
		require.False(t, ok, c)
	}
}

func TestRegex_IsAnchored(t *testing.T) {
	m, err := Compile([]repository.RedirectURI{regex(`https://[a-z]+\.example\.com/cb`)})
	require.NoError(t, err)

	_, ok := m.Match("https://foo.example.com/cb")
	require.True(t, ok)

	// prefijo y sufijo extra no matchean
	_, ok = m.Match("https://foo.example.com/cb/../../evil")
	require.False(t, ok)
	_, ok = m.Match("https://evil.test/?https://foo.example.com/cb")
	require.False(t, ok)
}

func TestRegex_AlternationStaysAnchored(t *testing.T) {
	m, err := Compile([]repository.RedirectURI{regex(`http://a\.test/|http://b\.test/`)})
	require.NoError(t, err)

	_, ok := m.Match("http://b.test/")
	require.True(t, ok)
	_, ok = m.Match("http://a.test/extra")
	require.False(t, ok)
}

func TestFirstMatchWins(t *testing.T) {
	uris := []repository.RedirectURI{
		regex(`http://localhost:\d+/`),
		strict("http://localhost:9009/"),
	}
	m, err := Compile(uris)
	require.NoError(t, err)

	got, ok := m.Match("http://localhost:9009/")
	require.True(t, ok)
	require.Equal(t, repository.MatchRegex, got.MatchingMode)
}

func TestCompile_RejectsInvalid(t *testing.T) {
	_, err := Compile([]repository.RedirectURI{strict("http://ok/"), regex(`http://(`)})
	require.ErrorIs(t, err, ErrInvalidPattern)

	_, err = Compile([]repository.RedirectURI{{MatchingMode: "glob", URL: "x"}})
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestNoRegisteredURIs(t *testing.T) {
	m, err := Compile(nil)
	require.NoError(t, err)
	_, ok := m.Match("http://localhost/")
	require.False(t, ok)
	require.Equal(t, 0, m.Len())

	_, err = Match(nil, "http://localhost/")
	require.ErrorIs(t, err, ErrMismatch)
}
