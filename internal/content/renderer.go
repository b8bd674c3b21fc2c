package content

import (
	"bytes"
	"fmt"
	"html/template"
	"maps"
	"regexp"
	"sort"
	"strconv"
	ttemplate "text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// reAttribRef finds the attribute keys a template references, either as a
// field (.Subscriber.Attribs.city) or as a quoted index key
// (index .Subscriber.Attribs "zip-code").
var reAttribRef = regexp.MustCompile(`\.Subscriber\.Attribs(?:\.([A-Za-z_][A-Za-z0-9_]*)|\s+("(?:[^"\\]|\\.)*"|` + "`[^`]*`" + `))`)

// DemoSubscriber is the fixed recipient previews are rendered against
var DemoSubscriber = models.Subscriber{
	ID:      0,
	UUID:    "00000000-0000-4000-8000-000000000000",
	Email:   "demo@mailbeacon.local",
	Name:    "Demo Subscriber",
	Attribs: map[string]any{"city": "Bengaluru"},
	Status:  models.SubscriberStatusEnabled,
}

// CampaignData is the campaign part of the template context
type CampaignData struct {
	UUID    string
	Name    string
	Subject string
}

// Data is the context a campaign template is executed with
type Data struct {
	Subscriber models.Subscriber
	Campaign   CampaignData
}

// Output is a rendered campaign for one subscriber
type Output struct {
	Subject   string
	HTML      string
	PlainText string
	Warnings  []string
}

// Renderer compiles campaign bodies into executable templates
type Renderer struct {
	conv  *Converter
	funcs map[string]any
}

// NewRenderer creates a renderer with the sprig function map
func NewRenderer(conv *Converter) *Renderer {
	funcs := map[string]any{
		"Safe": func(s string) template.HTML {
			return template.HTML(s)
		},
	}

	sprigFuncs := sprig.GenericFuncMap()
	delete(sprigFuncs, "env")
	delete(sprigFuncs, "expandenv")
	maps.Copy(funcs, sprigFuncs)

	return &Renderer{conv: conv, funcs: funcs}
}

// Template is a compiled campaign, safe for concurrent Execute calls
type Template struct {
	contentType models.ContentType
	campaign    CampaignData
	subject     *ttemplate.Template
	html        *template.Template
	text        *ttemplate.Template
	attribRefs  []string
}

// Compile parses the subject and body of c. Syntax errors are reported as
// validation errors on the offending field.
func (r *Renderer) Compile(c *models.Campaign) (*Template, error) {
	t := &Template{
		contentType: c.ContentType,
		campaign:    CampaignData{UUID: c.UUID, Name: c.Name, Subject: c.Subject},
		attribRefs:  attribRefs(c.Subject, c.Body),
	}

	var err error
	if t.subject, err = ttemplate.New("subject").Funcs(r.funcs).Parse(c.Subject); err != nil {
		return nil, apperrors.NewValidation("subject", "%v", err)
	}

	if c.ContentType == models.ContentPlain {
		if t.text, err = ttemplate.New("body").Funcs(r.funcs).Parse(c.Body); err != nil {
			return nil, apperrors.NewValidation("body", "%v", err)
		}
		return t, nil
	}

	src, err := r.conv.ToHTML(c.ContentType, c.Body)
	if err != nil {
		return nil, apperrors.NewValidation("body", "%v", err)
	}
	if t.html, err = template.New("body").Funcs(r.funcs).Parse(src); err != nil {
		return nil, apperrors.NewValidation("body", "%v", err)
	}
	return t, nil
}

// Execute renders the compiled campaign for sub. Attribute keys the subscriber
// lacks render as empty strings and are listed in Output.Warnings.
func (t *Template) Execute(sub models.Subscriber) (*Output, error) {
	var warnings []string
	attribs := make(map[string]any, len(sub.Attribs)+len(t.attribRefs))
	for k, v := range sub.Attribs {
		// text/template prints nil as "<no value>"
		if v == nil {
			v = ""
		}
		attribs[k] = v
	}
	for _, k := range t.attribRefs {
		if _, ok := attribs[k]; !ok {
			attribs[k] = ""
			warnings = append(warnings, fmt.Sprintf("subscriber attribute %q is not set", k))
		}
	}
	sub.Attribs = attribs

	data := Data{Subscriber: sub, Campaign: t.campaign}
	out := &Output{Warnings: warnings}

	var buf bytes.Buffer
	if err := t.subject.Execute(&buf, data); err != nil {
		return nil, apperrors.NewValidation("subject", "%v", err)
	}
	out.Subject = CollapseWhitespace(buf.String())

	buf.Reset()
	if t.contentType == models.ContentPlain {
		if err := t.text.Execute(&buf, data); err != nil {
			return nil, apperrors.NewValidation("body", "%v", err)
		}
		out.PlainText = CollapseWhitespace(buf.String())
		return out, nil
	}

	if err := t.html.Execute(&buf, data); err != nil {
		return nil, apperrors.NewValidation("body", "%v", err)
	}
	out.HTML = buf.String()
	out.PlainText = HTMLToText(out.HTML)
	return out, nil
}

// Render compiles and executes c for a single subscriber
func (r *Renderer) Render(c *models.Campaign, sub models.Subscriber) (*Output, error) {
	t, err := r.Compile(c)
	if err != nil {
		return nil, err
	}
	return t.Execute(sub)
}

// Preview renders c against DemoSubscriber
func (r *Renderer) Preview(c *models.Campaign) (*models.Preview, error) {
	out, err := r.Render(c, DemoSubscriber)
	if err != nil {
		return nil, err
	}
	return &models.Preview{
		CampaignID:  c.ID,
		ContentType: c.ContentType,
		Subject:     out.Subject,
		HTML:        out.HTML,
		PlainText:   out.PlainText,
		Warnings:    out.Warnings,
	}, nil
}

func attribRefs(srcs ...string) []string {
	seen := map[string]struct{}{}
	for _, s := range srcs {
		for _, m := range reAttribRef.FindAllStringSubmatch(s, -1) {
			key := m[1]
			if key == "" {
				var err error
				if key, err = strconv.Unquote(m[2]); err != nil {
					continue
				}
			}
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
