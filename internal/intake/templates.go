package intake

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"text/template"

	"gopkg.in/yaml.v3"
)

// TemplateData holds the named substitutions available to every trigger template
type TemplateData struct {
	FirstName    string
	CoachName    string
	CalendarLink string
}

const sevenDayTemplate = `Hey {{.FirstName}}! 👋

{{.CoachName}} here - just wanted to check in on your first week in the Inner Circle!

Quick questions:
- Have you posted any content yet?
- How did your onboarding call go?
- Any roadblocks I can help with?
- Are you attending the group calls?

Don't hesitate to DM me anytime.

The faster you take action, the faster you'll see results. Let's make this week count!`

const thirtyDayTemplate = `{{.FirstName}}! 🎉

You've officially been in the Inner Circle for a month!

Time for your first progress review.

BOOK YOUR 30-DAY REVIEW CALL: {{.CalendarLink}}

We'll discuss:
✓ What's working for you
✓ What needs adjusting
✓ Your next 60 days strategy
✓ Any obstacles to overcome

So, just a quick check-in to make sure you're on the right track/see what we can do to help.

Look forward to chatting.

{{.CoachName}}`

const ninetyDayTemplate = `{{.FirstName}}! 🔥

90 days in the Inner Circle! This is a major milestone.

You've now had:
✓ 12+ weeks of 1-on-1 coaching
✓ Dozens of group training calls
✓ Access to brand connections
✓ Your custom action plan and support

It's time for your major quarterly review.

BOOK YOUR 90-DAY REVIEW: {{.CalendarLink}}

We'll cover:
✓ Your progress since joining
✓ What's gone well/what hasn't
✓ Setting your next 90-day targets
✓ Getting you on the right track

Look forward to chatting!

{{.CoachName}}`

// DefaultTemplates returns the built-in message text per trigger bucket
func DefaultTemplates() map[int]string {
	return map[int]string{
		7:  sevenDayTemplate,
		30: thirtyDayTemplate,
		90: ninetyDayTemplate,
	}
}

// TemplateSet is a parsed, immutable set of trigger templates
type TemplateSet struct {
	templates map[int]*template.Template
}

// NewTemplateSet parses every source. Keys are trigger buckets.
func NewTemplateSet(sources map[int]string) (*TemplateSet, error) {
	set := &TemplateSet{templates: make(map[int]*template.Template, len(sources))}
	for bucket, text := range sources {
		tmpl, err := template.New(strconv.Itoa(bucket)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template for bucket %d: %w", bucket, err)
		}
		set.templates[bucket] = tmpl
	}
	return set, nil
}

// Has reports whether bucket is a recognised trigger
func (s *TemplateSet) Has(bucket int) bool {
	_, ok := s.templates[bucket]
	return ok
}

// Buckets lists the recognised triggers
func (s *TemplateSet) Buckets() []int {
	out := make([]int, 0, len(s.templates))
	for b := range s.templates {
		out = append(out, b)
	}
	return out
}

// Render executes the template for bucket
func (s *TemplateSet) Render(bucket int, data TemplateData) (string, error) {
	tmpl, ok := s.templates[bucket]
	if !ok {
		return "", fmt.Errorf("no template found for count: %d", bucket)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template for bucket %d: %w", bucket, err)
	}
	return buf.String(), nil
}

type templateFile struct {
	Templates map[int]string `yaml:"templates"`
}

// LoadTemplateFile reads a YAML override file and merges it over the built-ins.
// Overrides may only replace or add buckets, never remove one.
func LoadTemplateFile(path string) (*TemplateSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}

	sources := DefaultTemplates()
	for bucket, text := range file.Templates {
		if bucket <= 0 {
			return nil, fmt.Errorf("invalid trigger bucket %d in template file", bucket)
		}
		sources[bucket] = text
	}
	return NewTemplateSet(sources)
}
