package assets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReferencesVariants(t *testing.T) {
	css := `
		body { background: url(/bg.png); }
		.a { background-image: URL("/quoted.png"); }
		.b { background: url( 'spaced.gif' ); }
		.c { cursor: url(  bare/path.cur  ); }
		.d { background: url(data:image/png;base64,AAAA); }
		.e { background: url(); }
	`
	refs := References(css)
	require.Equal(t, []string{"/bg.png", "/quoted.png", "spaced.gif", "bare/path.cur"}, refs)
}

func TestRewriteCSSReplacesMatchedOnly(t *testing.T) {
	css := `a{background:url('/img.png')}b{background:url(/missing.png)}c{background:url(DATA:image/gif;base64,XX)}`
	out := RewriteCSS(css, func(inner string) (string, bool) {
		if inner == "/img.png" {
			return "../img/index.png", true
		}
		return "", false
	})
	require.Equal(t, `a{background:url(../img/index.png)}b{background:url(/missing.png)}c{background:url(DATA:image/gif;base64,XX)}`, out)
}

func TestRewriteCSSCaseInsensitiveURLToken(t *testing.T) {
	out := RewriteCSS(`x{background:Url("/a.png")}`, func(inner string) (string, bool) {
		require.Equal(t, "/a.png", inner)
		return "a.png", true
	})
	require.Equal(t, `x{background:url(a.png)}`, out)
}
