package services

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/amirphl/Kusanagi/models"
)

// Branding holds the profile fields rendered into an edition. Missing values
// render as placeholder text rather than failing.
type Branding struct {
	DisplayName      string
	OrganizationName string
	Phone            string
	Email            string
	HeadshotURL      string
	LogoURL          string
	AccentColor      string
}

// BrandingFromProfile builds a Branding from a profile row
func BrandingFromProfile(p *models.Profile) Branding {
	b := Branding{
		DisplayName: p.DisplayName,
		Email:       p.Email,
	}
	if p.OrganizationName != nil {
		b.OrganizationName = *p.OrganizationName
	}
	if p.Phone != nil {
		b.Phone = *p.Phone
	}
	if p.HeadshotURL != nil {
		b.HeadshotURL = *p.HeadshotURL
	}
	if p.LogoURL != nil {
		b.LogoURL = *p.LogoURL
	}
	if p.AccentColor != nil {
		b.AccentColor = *p.AccentColor
	}
	return b
}

// EditionRenderer renders an edition to a self-contained HTML document. Pure:
// identical inputs produce byte-identical output, no network or storage
// access.
type EditionRenderer interface {
	Render(branding Branding, stories []models.EditionStory, dateLabel string) (string, error)
}

// EditionRendererImpl implements EditionRenderer with a parsed html/template
type EditionRendererImpl struct {
	tmpl *template.Template
}

// NewEditionRenderer creates a new edition renderer
func NewEditionRenderer() EditionRenderer {
	return &EditionRendererImpl{
		tmpl: template.Must(template.New("edition").Parse(editionTemplate)),
	}
}

type editionTemplateData struct {
	Branding  Branding
	Stories   []models.EditionStory
	DateLabel string
}

// Render produces the edition HTML. Missing branding fields are substituted
// with placeholders before template execution so the template itself stays
// free of fallback logic.
func (r *EditionRendererImpl) Render(branding Branding, stories []models.EditionStory, dateLabel string) (string, error) {
	if branding.DisplayName == "" {
		branding.DisplayName = "Your Name"
	}
	if branding.AccentColor == "" {
		branding.AccentColor = "#1a73e8"
	}
	if dateLabel == "" {
		dateLabel = "Latest Edition"
	}

	data := editionTemplateData{
		Branding:  branding,
		Stories:   stories,
		DateLabel: dateLabel,
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render edition: %w", err)
	}

	return buf.String(), nil
}

const editionTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Branding.DisplayName}} | {{.DateLabel}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f4f4;font-family:Arial,Helvetica,sans-serif;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color:#f4f4f4;">
<tr><td align="center" style="padding:24px 12px;">
<table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;overflow:hidden;">
<tr><td style="background-color:{{.Branding.AccentColor}};padding:24px 32px;">
{{if .Branding.LogoURL}}<img src="{{.Branding.LogoURL}}" alt="{{.Branding.OrganizationName}}" height="40" style="display:block;margin-bottom:12px;">{{end}}
<h1 style="margin:0;color:#ffffff;font-size:22px;">{{.Branding.DisplayName}}</h1>
{{if .Branding.OrganizationName}}<p style="margin:4px 0 0;color:#ffffff;font-size:14px;">{{.Branding.OrganizationName}}</p>{{end}}
<p style="margin:8px 0 0;color:#ffffff;font-size:13px;">{{.DateLabel}}</p>
</td></tr>
{{if .Stories}}
{{range .Stories}}
<tr><td style="padding:20px 32px;border-bottom:1px solid #eeeeee;">
{{if .Category}}<p style="margin:0 0 4px;color:{{$.Branding.AccentColor}};font-size:12px;text-transform:uppercase;letter-spacing:1px;">{{.Category}}</p>{{end}}
<h2 style="margin:0 0 8px;color:#222222;font-size:17px;">{{.Headline}}</h2>
<p style="margin:0;color:#555555;font-size:14px;line-height:1.5;">{{.Summary}}</p>
{{if .SourceURL}}<p style="margin:8px 0 0;"><a href="{{.SourceURL}}" style="color:{{$.Branding.AccentColor}};font-size:13px;">Read more</a></p>{{end}}
</td></tr>
{{end}}
{{else}}
<tr><td style="padding:32px;">
<p style="margin:0;color:#555555;font-size:14px;">No stories in this edition yet. Check back soon.</p>
</td></tr>
{{end}}
<tr><td style="padding:20px 32px;background-color:#fafafa;">
{{if .Branding.HeadshotURL}}<img src="{{.Branding.HeadshotURL}}" alt="{{.Branding.DisplayName}}" width="48" height="48" style="border-radius:24px;display:block;margin-bottom:8px;">{{end}}
<p style="margin:0;color:#888888;font-size:12px;">{{.Branding.DisplayName}}{{if .Branding.Phone}} &middot; {{.Branding.Phone}}{{end}}{{if .Branding.Email}} &middot; {{.Branding.Email}}{{end}}</p>
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>
`
