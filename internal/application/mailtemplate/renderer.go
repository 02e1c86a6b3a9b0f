// Package mailtemplate рендерит транзакционные письма.
// Набор шаблонов закрыт; неизвестный шаблон и недостающая переменная — ошибка,
// плейсхолдеры в письмо никогда не попадают.
package mailtemplate

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"sort"
	"strings"
	texttemplate "text/template"
)

type TemplateID string

const (
	ContactRequest TemplateID = "kontakt-anfrage"
	Invitation     TemplateID = "einladung"
	PasswordReset  TemplateID = "passwort-zuruecksetzen"
	EventReminder  TemplateID = "termin-erinnerung"
)

var (
	ErrUnknownTemplate = errors.New("unknown email template")
	ErrMissingVariable = errors.New("missing template variable")
)

type Rendered struct {
	Subject string
	Body    string
}

type definition struct {
	required []string
	subject  string
	body     string
}

var definitions = map[TemplateID]definition{
	ContactRequest: {
		required: []string{"name", "email", "message"},
		subject:  `Kontaktanfrage von {{.name}}`,
		body: `<p>Neue Nachricht über das Kontaktformular.</p>
<p><strong>Name:</strong> {{.name}}<br>
<strong>E-Mail:</strong> {{.email}}</p>
<p style="white-space: pre-line">{{.message}}</p>`,
	},
	Invitation: {
		required: []string{"inviteLink", "expiresAt"},
		subject:  `Einladung zum Mitgliederbereich`,
		body: `<p>Hallo,</p>
<p>du wurdest in den Mitgliederbereich unseres Vereins eingeladen.</p>
<p><a href="{{.inviteLink}}">Einladung annehmen</a></p>
<p>Der Link ist gültig bis {{.expiresAt}}.</p>
<p>Wenn du diese Einladung nicht erwartet hast, kannst du diese E-Mail ignorieren.</p>`,
	},
	PasswordReset: {
		required: []string{"name", "resetLink", "validHours"},
		subject:  `Passwort zurücksetzen`,
		body: `<p>Hallo {{.name}},</p>
<p>für dein Konto wurde das Zurücksetzen des Passworts angefordert.</p>
<p><a href="{{.resetLink}}">Neues Passwort festlegen</a></p>
<p>Der Link ist {{.validHours}} Stunden gültig und kann nur einmal verwendet werden.</p>
<p>Wenn du das nicht warst, ignoriere diese E-Mail. Dein Passwort bleibt unverändert.</p>`,
	},
	EventReminder: {
		required: []string{"name", "eventTitle", "eventDate", "eventTime", "daysBefore", "rsvpLink", "unsubscribeLink"},
		subject:  `Erinnerung: {{.eventTitle}} am {{.eventDate}}`,
		body: `<p>Hallo {{.name}},</p>
<p>in {{.daysBefore}} Tag(en) findet der Termin <strong>{{.eventTitle}}</strong> statt:
{{.eventDate}} um {{.eventTime}} Uhr{{with .eventLocation}}, {{.}}{{end}}.</p>
<p><a href="{{.rsvpLink}}">Zu- oder absagen</a></p>
<p style="font-size: small"><a href="{{.unsubscribeLink}}">Keine Erinnerungen mehr erhalten</a></p>`,
	},
}

type compiled struct {
	def     definition
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

type Renderer struct {
	templates map[TemplateID]compiled
}

// NewRenderer компилирует все шаблоны заранее, чтобы ошибка в шаблоне была видна при старте.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[TemplateID]compiled, len(definitions))}
	for id, def := range definitions {
		subj, err := texttemplate.New(string(id) + ".subject").Option("missingkey=error").Parse(def.subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject %s: %w", id, err)
		}
		body, err := htmltemplate.New(string(id) + ".body").Option("missingkey=error").Parse(def.body)
		if err != nil {
			return nil, fmt.Errorf("parse body %s: %w", id, err)
		}
		r.templates[id] = compiled{def: def, subject: subj, body: body}
	}
	return r, nil
}

// Known — входит ли id в закрытый набор шаблонов
func Known(id string) bool {
	_, ok := definitions[TemplateID(id)]
	return ok
}

// IDs возвращает все шаблоны в стабильном порядке
func IDs() []TemplateID {
	ids := make([]TemplateID, 0, len(definitions))
	for id := range definitions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Required — переменные, без которых шаблон не рендерится
func Required(id TemplateID) ([]string, error) {
	def, ok := definitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}
	out := make([]string, len(def.required))
	copy(out, def.required)
	return out, nil
}

// Validate проверяет шаблон и переменные до постановки письма в очередь.
func (r *Renderer) Validate(id TemplateID, vars map[string]string) error {
	t, ok := r.templates[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}
	var missing []string
	for _, k := range t.def.required {
		if strings.TrimSpace(vars[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s requires %s", ErrMissingVariable, id, strings.Join(missing, ", "))
	}
	return nil
}

func (r *Renderer) Render(id TemplateID, vars map[string]string) (Rendered, error) {
	if err := r.Validate(id, vars); err != nil {
		return Rendered{}, err
	}
	t := r.templates[id]

	// опциональные переменные, которые шаблон использует через with
	data := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		data[k] = v
	}
	if _, ok := data["eventLocation"]; !ok {
		data["eventLocation"] = ""
	}

	var subj bytes.Buffer
	if err := t.subject.Execute(&subj, data); err != nil {
		return Rendered{}, fmt.Errorf("%w: %s subject: %v", ErrMissingVariable, id, err)
	}
	var body bytes.Buffer
	if err := t.body.Execute(&body, data); err != nil {
		return Rendered{}, fmt.Errorf("%w: %s body: %v", ErrMissingVariable, id, err)
	}

	return Rendered{
		Subject: strings.TrimSpace(subj.String()),
		Body:    body.String(),
	}, nil
}
