package content

import (
	"strings"
	"testing"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConverter_Convert(t *testing.T) {
	c := NewConverter()

	tests := []struct {
		name     string
		from     models.ContentType
		to       models.ContentType
		body     string
		expected string
		lossy    bool
	}{
		{
			name: "same type", from: models.ContentHTML, to: models.ContentHTML,
			body: "<p>x</p>", expected: "<p>x</p>",
		},
		{
			name: "richtext to html", from: models.ContentRichtext, to: models.ContentHTML,
			body: "<p>Hi {{ .Subscriber.Name }}</p>", expected: "<p>Hi {{ .Subscriber.Name }}</p>",
		},
		{
			name: "html to markdown keeps markup", from: models.ContentHTML, to: models.ContentMarkdown,
			body: "<p>Hi</p>", expected: "<p>Hi</p>",
		},
		{
			name: "markdown to html", from: models.ContentMarkdown, to: models.ContentHTML,
			body: "# Hi {{ .Subscriber.Name }}", expected: "<h1>Hi {{ .Subscriber.Name }}</h1>\n", lossy: true,
		},
		{
			name: "html to plain", from: models.ContentHTML, to: models.ContentPlain,
			body: "<h1>Sale</h1><p>Hi <b>{{ .Subscriber.Name }}</b></p>", expected: "Sale Hi {{ .Subscriber.Name }}", lossy: true,
		},
		{
			name: "markdown to plain", from: models.ContentMarkdown, to: models.ContentPlain,
			body: "**bold** and _em_", expected: "bold and em", lossy: true,
		},
		{
			name: "plain to html", from: models.ContentPlain, to: models.ContentHTML,
			body: "Hi {{ .Subscriber.Name }},\nfish & chips\n\nBye", expected: "<p>Hi {{ .Subscriber.Name }},<br>\nfish &amp; chips</p>\n<p>Bye</p>", lossy: true,
		},
		{
			name: "plain to markdown", from: models.ContentPlain, to: models.ContentMarkdown,
			body: "*not* emphasis", expected: "*not* emphasis", lossy: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, lossy, err := c.Convert(tt.from, tt.to, tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
			assert.Equal(t, tt.lossy, lossy)
		})
	}
}

func TestConverter_ConvertUnknownType(t *testing.T) {
	c := NewConverter()
	_, _, err := c.Convert("docx", models.ContentHTML, "x")
	assert.Error(t, err)
	_, _, err = c.Convert(models.ContentHTML, "docx", "x")
	assert.Error(t, err)
}

func TestConverter_TemplateExpressionsSurvive(t *testing.T) {
	c := NewConverter()
	expr := `{{ if eq .Subscriber.Attribs.tier "gold" }}VIP{{ end }} {{ printf "%s & %s" "<x>" "*y*" }}`
	types := []models.ContentType{models.ContentRichtext, models.ContentHTML, models.ContentMarkdown, models.ContentPlain}

	for _, from := range types {
		for _, to := range types {
			out, _, err := c.Convert(from, to, "Hello "+expr)
			require.NoError(t, err)
			assert.True(t, strings.Contains(out, expr), "%s -> %s: %q", from, to, out)
		}
	}
}

func TestConverter_AltBody(t *testing.T) {
	c := NewConverter()

	alt, err := c.AltBody(models.ContentPlain, "hello")
	require.NoError(t, err)
	assert.Nil(t, alt)

	alt, err = c.AltBody(models.ContentHTML, "<p>hello <b>there</b></p>")
	require.NoError(t, err)
	require.NotNil(t, alt)
	assert.Equal(t, "hello there", *alt)
}

func TestPlainToHTML_Empty(t *testing.T) {
	assert.Equal(t, "", PlainToHTML("  \n "))
}
