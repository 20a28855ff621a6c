package mail

import (
	"bytes"
	"fmt"
	"text/template"

	"studio-checkout/internal/domain"
)

type LineItem struct {
	Name     string
	Quantity int
	Total    string
}

// Payload carries everything a template may reference. Which fields are set
// depends on the email type.
type Payload struct {
	Type          domain.EmailType
	Name          string
	Reference     string
	Items         []LineItem
	Subtotal      string
	Shipping      string
	Total         string
	Address       string
	Experience    string
	Date          string
	TimeSlot      string
	Guests        int
	EstimatedCost string
	EstimatedDate string
	Note          string
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[domain.EmailType]emailTemplate{
	domain.EmailOrderConfirmation: {
		subject: "Your order {{.Reference}} is confirmed",
		body: parse(`Hi {{.Name}},

Thank you for your order {{.Reference}}. We have received your payment.
{{range .Items}}
  {{.Quantity}} x {{.Name}}  Rs. {{.Total}}{{end}}

Subtotal: Rs. {{.Subtotal}}
Shipping: Rs. {{.Shipping}}
Total paid: Rs. {{.Total}}
{{if .Address}}
Shipping to:
{{.Address}}
{{end}}
We will let you know when it ships.
`),
	},
	domain.EmailBookingConfirmation: {
		subject: "Your {{.Experience}} experience is booked",
		body: parse(`Hi {{.Name}},

Your {{.Experience}} experience on {{.Date}} ({{.TimeSlot}}) for {{.Guests}} guest(s) is confirmed.
Booking reference: {{.Reference}}
Amount paid: Rs. {{.Total}}

See you at the studio.
`),
	},
	domain.EmailCustomReceived: {
		subject: "We received your custom order request",
		body: parse(`Hi {{.Name}},

Thanks for your custom order request {{.Reference}}. Our potters will review it and get back to you with a quote.
`),
	},
	domain.EmailCustomQuote: {
		subject: "Your custom order quote",
		body: parse(`Hi {{.Name}},

We have reviewed request {{.Reference}}.
Estimated price: Rs. {{.EstimatedCost}}
{{if .EstimatedDate}}Estimated delivery: {{.EstimatedDate}}
{{end}}{{if .Note}}
{{.Note}}
{{end}}`),
	},
	domain.EmailCustomPaymentReceived: {
		subject: "Payment received for your custom order",
		body:    parse("Hi {{.Name}},\n\nWe received your payment for {{.Reference}}. Work starts soon.\n"),
	},
	domain.EmailCustomInProgress: {
		subject: "Your custom piece is on the wheel",
		body:    parse("Hi {{.Name}},\n\nYour custom order {{.Reference}} is now in progress.\n"),
	},
	domain.EmailCustomShipped: {
		subject: "Your custom order has shipped",
		body:    parse("Hi {{.Name}},\n\nYour custom order {{.Reference}} is on its way.\n"),
	},
	domain.EmailCustomDelivered: {
		subject: "Your custom order was delivered",
		body:    parse("Hi {{.Name}},\n\nYour custom order {{.Reference}} has been delivered. Enjoy!\n"),
	},
	domain.EmailCustomRejected: {
		subject: "About your custom order request",
		body: parse(`Hi {{.Name}},

We are sorry, we cannot take on custom order {{.Reference}}.{{if .Note}}
{{.Note}}{{end}}
`),
	},
}

func parse(body string) *template.Template {
	return template.Must(template.New("").Parse(body))
}

// Render builds the message for p.Type addressed to to.
func Render(to string, p Payload) (Message, error) {
	tpl, ok := templates[p.Type]
	if !ok {
		return Message{}, fmt.Errorf("no template for email type %q", p.Type)
	}
	subject, err := template.New("subject").Parse(tpl.subject)
	if err != nil {
		return Message{}, err
	}
	var subj, body bytes.Buffer
	if err := subject.Execute(&subj, p); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", p.Type, err)
	}
	if err := tpl.body.Execute(&body, p); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", p.Type, err)
	}
	return Message{To: to, Subject: subj.String(), Body: body.String()}, nil
}
