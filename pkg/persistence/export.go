package persistence

import (
	"bytes"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/projection"
)

// DefaultExportTemplate lays exports out by day, named after the title.
const DefaultExportTemplate = `{{ .Year }}/{{ .Month }}/{{ .Day }}/{{ .Time.Format "150405" }}-{{ .Title | slug }}-{{ .ShortID }}.{{ .Ext }}`

// ExportData is the data available to the export path template.
type ExportData struct {
	ID      string
	ShortID string
	Title   string
	Time    time.Time
	Year    string
	Month   string
	Day     string
	Ext     string
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = nonSlug.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > 48 {
		s = strings.TrimRight(s[:48], "-")
	}
	if s == "" {
		return "conversation"
	}
	return s
}

func templateFuncs() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["slug"] = slug
	return funcs
}

// Exporter writes single conversations below a directory, naming each file
// with a text/template.
type Exporter struct {
	dir  string
	path *template.Template
	now  func() time.Time
}

type ExporterOption func(*Exporter) error

func WithPathTemplate(tpl string) ExporterOption {
	return func(e *Exporter) error {
		t, err := template.New("path").Funcs(templateFuncs()).Parse(tpl)
		if err != nil {
			return errors.Wrap(err, "could not parse export path template")
		}
		e.path = t
		return nil
	}
}

func WithExportClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) error {
		e.now = now
		return nil
	}
}

func NewExporter(dir string, options ...ExporterOption) (*Exporter, error) {
	ret := &Exporter{
		dir: dir,
		now: time.Now,
	}
	if err := WithPathTemplate(DefaultExportTemplate)(ret); err != nil {
		return nil, err
	}
	for _, option := range options {
		if err := option(ret); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// Path renders the target path of c for the given format. The result must stay
// inside the export directory.
func (e *Exporter) Path(c *conversation.Conversation, format Format) (string, error) {
	t := e.now()
	id := c.ID.String()
	data := ExportData{
		ID:      id,
		ShortID: id[:8],
		Title:   c.Title,
		Time:    t,
		Year:    t.Format("2006"),
		Month:   t.Format("01"),
		Day:     t.Format("02"),
		Ext:     extension(format),
	}

	var buf bytes.Buffer
	if err := e.path.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "could not render export path")
	}
	name := strings.TrimSpace(buf.String())
	if name == "" {
		return "", errors.New("export path template rendered an empty path")
	}

	full := filepath.Join(e.dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(e.dir, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", errors.Errorf("export path %s escapes %s", name, e.dir)
	}
	return full, nil
}

// Export writes c and returns the path written to.
func (e *Exporter) Export(c *conversation.Conversation, format Format) (string, error) {
	if c == nil {
		return "", errors.New("no conversation to export")
	}
	path, err := e.Path(c, format)
	if err != nil {
		return "", err
	}

	var data []byte
	switch format {
	case FormatMarkdown:
		var buf bytes.Buffer
		if err := WriteMarkdown(&buf, c); err != nil {
			return "", err
		}
		data = buf.Bytes()
	default:
		data, err = encode(format, c)
		if err != nil {
			return "", errors.Wrap(err, "could not encode conversation")
		}
	}

	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	log.Debug().Str("conversation_id", c.ID.String()).Str("path", path).Msg("exported conversation")
	return path, nil
}

func extension(format Format) string {
	switch format {
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "md"
	default:
		return "json"
	}
}

const markdownTemplate = `# {{ .Title }}

Created at: {{ .CreatedAt.Format "2006-01-02 15:04:05" }}
Branch: {{ .Branch }}

{{ range .Messages -}}
**{{ .Role | toString | title }}**{{ if .ModelID }} ({{ .ModelID }}){{ end }}:

{{ .Content | trim }}
{{ if .Thinking }}
<details><summary>Thinking</summary>

{{ .Thinking | trim }}

</details>
{{ end -}}
{{ range $i, $s := .Sources }}
{{ add1 $i }}. [{{ $s.Title }}]({{ $s.URL }})
{{- end }}

---

{{ end -}}
`

var markdown = template.Must(template.New("markdown").Funcs(templateFuncs()).Parse(markdownTemplate))

type markdownData struct {
	Title     string
	CreatedAt time.Time
	Branch    string
	Messages  conversation.Messages
}

// WriteMarkdown renders the current path of c as a markdown transcript.
func WriteMarkdown(w io.Writer, c *conversation.Conversation) error {
	node := projection.CurrentNode(c)
	if node == nil {
		return errors.New("conversation has no current node")
	}
	data := markdownData{
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		Branch:    node.Title,
		Messages:  projection.CurrentMessages(c),
	}
	if err := markdown.Execute(w, data); err != nil {
		return errors.Wrap(err, "could not render markdown transcript")
	}
	return nil
}
