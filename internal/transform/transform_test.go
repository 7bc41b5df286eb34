package transform

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/transform/transformtest"
)

func TestExtractPDFText(t *testing.T) {
	text, err := ExtractPDFText(transformtest.PDF("Hello owl"))
	require.NoError(t, err)
	assert.Contains(t, text, "Hello owl")

	_, err = ExtractPDFText(transformtest.PDF(""))
	assert.ErrorIs(t, err, ErrEmptyPDFText)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = ExtractPDFText([]byte("definitely not a pdf document, just some words"))
	assert.ErrorIs(t, err, ErrPDFParse)

	_, err = ExtractPDFText(nil)
	assert.ErrorIs(t, err, ErrPDFParse)
}

func TestToStorageContent(t *testing.T) {
	t.Run("text drops invalid utf-8", func(t *testing.T) {
		out, enc, err := ToStorageContent("text/plain", []byte("ok\xffdone"))
		require.NoError(t, err)
		assert.Equal(t, EncodingText, enc)
		assert.Equal(t, "okdone", out)
	})

	t.Run("binary is base64", func(t *testing.T) {
		out, enc, err := ToStorageContent("image/png", []byte{0, 1, 2})
		require.NoError(t, err)
		assert.Equal(t, EncodingBase64, enc)
		assert.Equal(t, "AAEC", out)
	})

	t.Run("pdf becomes text", func(t *testing.T) {
		out, enc, err := ToStorageContent("application/pdf", transformtest.PDF("Quarterly report"))
		require.NoError(t, err)
		assert.Equal(t, EncodingPDFText, enc)
		assert.Contains(t, out, "Quarterly report")
	})

	t.Run("scanned pdf fails", func(t *testing.T) {
		_, _, err := ToStorageContent("application/pdf", transformtest.PDF(""))
		assert.ErrorIs(t, err, ErrEmptyPDFText)
	})
}

func TestBase64AndPDFDetection(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("hi"))
	assert.False(t, LooksLikeBase64(short))

	long := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("payload"), 40))
	assert.True(t, LooksLikeBase64(long))
	assert.False(t, LooksLikeBase64(strings.Repeat("plain text! ", 20)))

	pdfDoc := transformtest.PDF("x")
	ok, raw := IsPDFContent(string(pdfDoc))
	assert.True(t, ok)
	assert.Equal(t, pdfDoc, raw)

	ok, raw = IsPDFContent(base64.StdEncoding.EncodeToString(pdfDoc))
	assert.True(t, ok)
	assert.Equal(t, pdfDoc, raw)

	ok, _ = IsPDFContent(long)
	assert.False(t, ok)

	assert.Equal(t, bytes.Repeat([]byte("payload"), 40), DecodeContent(long))
	assert.Equal(t, []byte("plain"), DecodeContent("plain"))
}

func TestTruncateAndPreview(t *testing.T) {
	s, truncated := Truncate("short", 10)
	assert.Equal(t, "short", s)
	assert.False(t, truncated)

	s, truncated = Truncate(strings.Repeat("ж", 12), 10)
	assert.True(t, truncated)
	assert.Equal(t, strings.Repeat("ж", 10)+TruncationMarker, s)

	s, truncated = Preview("<b>a & b</b>", 100)
	assert.False(t, truncated)
	assert.Equal(t, "&lt;b&gt;a &amp; b&lt;/b&gt;", s)

	s, truncated = Preview(strings.Repeat("a", 2998)+"<b>", 3000)
	assert.True(t, truncated)
	assert.Equal(t, strings.Repeat("a", 2998)+"&lt;b"+TruncationMarker, s)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2.0 MB", FormatSize(2*1024*1024))
}

func TestCleanHTMLTags(t *testing.T) {
	in := "<|ref|>Title<|/ref|><|det|>[[1,2,3,4]]<|/det|>\n" +
		"<table><tr><td>a</td><td>b</td></tr></table> &amp; done"

	out := CleanHTMLTags(in)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "a\tb")
	assert.Contains(t, out, "& done")
	assert.NotContains(t, out, "<")
	assert.NotContains(t, out, "[[")
	assert.NotContains(t, out, "\n\n\n")
}

func TestParseBoundingBoxes(t *testing.T) {
	in := "<|ref|>header<|/ref|><|det|>[[10, 20, 300, 40]]<|/det|> text " +
		"<table>[[0,50,999,900]] and <|ref|>footer<|/ref|><|det|>[[5,950,995,990]]<|/det|>"

	boxes := ParseBoundingBoxes(in)
	require.Len(t, boxes, 3)
	assert.Equal(t, BoundingBox{Label: "header", X1: 10, Y1: 20, X2: 300, Y2: 40}, boxes[0])
	assert.Equal(t, "table", boxes[1].Label)
	assert.Equal(t, 999, boxes[1].X2)
	assert.Equal(t, "footer", boxes[2].Label)

	assert.Empty(t, ParseBoundingBoxes("no boxes here"))
}

func TestDrawBoundingBoxes(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			src.Set(x, y, color.White)
		}
	}
	var in bytes.Buffer
	require.NoError(t, png.Encode(&in, src))

	out, err := DrawBoundingBoxes(in.Bytes(), []BoundingBox{{Label: "a", X1: 100, Y1: 100, X2: 500, Y2: 500}})
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), img.Bounds())

	// Inside the box the white background is tinted.
	_, g, _, _ := img.At(60, 60).RGBA()
	assert.Less(t, g>>8, uint32(230))

	// Outside it stays white.
	r, g, b, _ := img.At(180, 180).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))

	_, err = DrawBoundingBoxes([]byte("not an image"), nil)
	assert.ErrorIs(t, err, ErrImageDecode)
}

func TestToPixelsAppliesVerticalCorrection(t *testing.T) {
	r := toPixels(BoundingBox{X1: 0, Y1: 999, X2: 999, Y2: 999}, 1000, 1000)
	assert.True(t, r.Empty())

	r = toPixels(BoundingBox{X1: 0, Y1: 500, X2: 999, Y2: 999}, 1000, 1000)
	assert.Equal(t, 0, r.Min.X)
	assert.Equal(t, 1000, r.Max.X)
	assert.InDelta(t, 475, r.Min.Y, 1)
	assert.InDelta(t, 960, r.Max.Y, 1)
}
