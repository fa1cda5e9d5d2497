package assets

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractFindsAllReferenceKinds(t *testing.T) {
	doc := parseDoc(t, `<!doctype html><html><head>
		<link href="/style.css" rel="stylesheet">
		<script src="/app.js"></script>
	</head><body>
		<img src="/logo.png">
		<video src="/clip.mp4"></video>
		<audio src="/tune.ogg"></audio>
		<picture><source src="/pic.webp"></picture>
	</body></html>`)

	refs := Extract(doc)
	require.Len(t, refs, 6)

	raws := make([]string, 0, len(refs))
	for _, r := range refs {
		require.False(t, r.Srcset())
		raws = append(raws, r.Raw())
	}
	require.ElementsMatch(t, []string{"/style.css", "/app.js", "/logo.png", "/clip.mp4", "/tune.ogg", "/pic.webp"}, raws)
}

func TestExtractDiscardsEmptyValues(t *testing.T) {
	doc := parseDoc(t, `<html><body><img src=""><script src=""></script><img src="/ok.png"></body></html>`)
	refs := Extract(doc)
	require.Len(t, refs, 1)
	require.Equal(t, "/ok.png", refs[0].Raw())
}

func TestExtractSrcsetCandidates(t *testing.T) {
	doc := parseDoc(t, `<html><body><img srcset="/small.png 1x, /big.png 2x, /wide.png 800w"></body></html>`)
	refs := Extract(doc)
	require.Len(t, refs, 1)
	require.True(t, refs[0].Srcset())
	require.Equal(t, []string{"/small.png", "/big.png", "/wide.png"}, refs[0].CandidateURLs())
}

func TestApplyReplacementSingle(t *testing.T) {
	doc := parseDoc(t, `<html><body><img src="/logo.png"></body></html>`)
	refs := Extract(doc)
	require.Len(t, refs, 1)

	refs[0].ApplyReplacement("assets/logo.png")

	v, ok := doc.Find("img").Attr("src")
	require.True(t, ok)
	require.Equal(t, "assets/logo.png", v)
}

func TestApplyReplacementSrcsetPreservesDescriptors(t *testing.T) {
	doc := parseDoc(t, `<html><body><img srcset=" /small.png 1x , /big.png 2x "></body></html>`)
	refs := Extract(doc)
	require.Len(t, refs, 1)

	refs[0].ApplyReplacement("img/local.png")

	v, ok := doc.Find("img").Attr("srcset")
	require.True(t, ok)
	require.Equal(t, "img/local.png 1x, img/local.png 2x", v)
}
