package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

// Имена шаблонов, они же значения метки template в метриках.
const (
	TemplateOperatorReceipt      = "operator_receipt"
	TemplateCustomerConfirmation = "customer_confirmation"
)

//go:embed templates/*.html
var templateFiles embed.FS

var (
	frenchWeekdays = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
	frenchMonths   = [...]string{"janvier", "février", "mars", "avril", "mai", "juin",
		"juillet", "août", "septembre", "octobre", "novembre", "décembre"}
)

type emailView struct {
	Number      string
	Name        string
	Phone       string
	Quantity    int
	ModeLabel   string
	IsDelivery  bool
	Address     string
	Notes       string
	ReceivedAt  string
	TrackingURL string
}

// Renderer собирает письма из встроенных шаблонов.
type Renderer struct {
	baseURL  string
	location *time.Location
	tmpl     *template.Template
}

// NewRenderer разбирает шаблоны; loc задаёт часовой пояс даты в письме оператору.
func NewRenderer(baseURL string, loc *time.Location) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		location: loc,
		tmpl:     tmpl,
	}, nil
}

// TrackingURL: публичная страница отслеживания заказа.
func (r *Renderer) TrackingURL(number string) string {
	return r.baseURL + "/orders/" + url.PathEscape(number)
}

// OperatorReceipt собирает письмо ресторану. Адресата выставляет вызывающий.
func (r *Renderer) OperatorReceipt(p domain.OrderPlacedPayload) (Email, error) {
	subject := "Nouvelle Commande de Lahmacun - " + p.Name
	if p.Number != "" {
		subject = fmt.Sprintf("Commande #%s - Lahmacun - %s", p.Number, p.Name)
	}
	html, err := r.render(TemplateOperatorReceipt, p)
	if err != nil {
		return Email{}, err
	}
	return Email{Subject: subject, HTML: html}, nil
}

// CustomerConfirmation собирает подтверждение клиенту на его email.
func (r *Renderer) CustomerConfirmation(p domain.OrderPlacedPayload) (Email, error) {
	if strings.TrimSpace(p.Email) == "" {
		return Email{}, ErrRecipientRequired
	}
	html, err := r.render(TemplateCustomerConfirmation, p)
	if err != nil {
		return Email{}, err
	}
	return Email{
		To:      p.Email,
		Subject: fmt.Sprintf("Confirmation de votre commande #%s - Chez Ayhan", p.Number),
		HTML:    html,
	}, nil
}

func (r *Renderer) render(name string, p domain.OrderPlacedPayload) (string, error) {
	placedAt := p.PlacedAt
	if placedAt.IsZero() {
		placedAt = time.Now()
	}
	view := emailView{
		Number:      p.Number,
		Name:        p.Name,
		Phone:       p.Phone,
		Quantity:    p.Quantity,
		ModeLabel:   p.DeliveryMode.EmailLabel(),
		IsDelivery:  p.DeliveryMode.IsDelivery(),
		Address:     p.Address,
		Notes:       p.Notes,
		ReceivedAt:  formatFrenchDateTime(placedAt.In(r.location)),
		TrackingURL: r.TrackingURL(p.Number),
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name+".html", view); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// formatFrenchDateTime повторяет полный формат fr-FR: "dimanche 19 avril 2026 à 18:30:05".
func formatFrenchDateTime(t time.Time) string {
	return fmt.Sprintf("%s %d %s %d à %02d:%02d:%02d",
		frenchWeekdays[t.Weekday()], t.Day(), frenchMonths[t.Month()-1], t.Year(),
		t.Hour(), t.Minute(), t.Second())
}
