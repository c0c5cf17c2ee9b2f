package notify

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/shadowdestructor/storefront/internal/catalog"
	"github.com/shadowdestructor/storefront/internal/order"
)

var orderConfirmationTmpl = template.Must(template.New("order_confirmation").Parse(`
<h1>Thanks for your order, {{.Order.ShippingAddress.Name}}!</h1>
<p>Order <strong>{{.Order.Number}}</strong> has been received.</p>
<table>
{{range .Order.Items}}
  <tr>
    <td>{{.ProductName}}{{if .VariantName}} ({{.VariantName}}){{end}}</td>
    <td>{{.Quantity}} &times; {{.UnitPrice}}</td>
    <td>{{.LineTotal}}</td>
  </tr>
{{end}}
</table>
<p>Subtotal: {{.Order.Subtotal}}</p>
<p>Tax: {{.Order.Tax}}</p>
<p>Shipping: {{.Order.Shipping}}</p>
{{if not .Order.Discount.IsZero}}<p>Discount: -{{.Order.Discount}}</p>{{end}}
<p><strong>Total: {{.Order.Total}}</strong></p>
`))

var statusChangeTmpl = template.Must(template.New("status_change").Parse(`
<h1>Your order {{.Order.Number}} is now {{.Order.Status}}</h1>
<p>Previous status: {{.Previous}}</p>
{{if eq (printf "%s" .Order.Status) "SHIPPED"}}<p>Your package is on its way.</p>{{end}}
`))

var lowStockTmpl = template.Must(template.New("low_stock").Parse(`
<h1>Low stock alert</h1>
<ul>
{{range .Products}}
  <li>{{.Name}}: {{.Stock}} left (threshold {{.LowStockThreshold}})</li>
{{end}}
</ul>
`))

var welcomeTmpl = template.Must(template.New("welcome").Parse(`
<h1>Welcome{{if .Name}}, {{.Name}}{{end}}!</h1>
<p>Your account is ready. Happy shopping.</p>
`))

var passwordResetTmpl = template.Must(template.New("password_reset").Parse(`
<h1>Password reset</h1>
<p>Follow <a href="{{.ResetURL}}">this link</a> to choose a new password.
The link expires in one hour.</p>
<p>If you did not request a reset, ignore this email.</p>
`))

func render(tmpl *template.Template, data any) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderOrderConfirmation(o *order.Order) (Message, error) {
	html, err := render(orderConfirmationTmpl, struct{ Order *order.Order }{o})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{o.Email},
		Subject: fmt.Sprintf("Order confirmation %s", o.Number),
		HTML:    html,
	}, nil
}

func renderStatusChange(o *order.Order, previous order.Status) (Message, error) {
	html, err := render(statusChangeTmpl, struct {
		Order    *order.Order
		Previous order.Status
	}{o, previous})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{o.Email},
		Subject: fmt.Sprintf("Order %s update: %s", o.Number, o.Status),
		HTML:    html,
	}, nil
}

func renderLowStock(recipients []string, products []catalog.Product) (Message, error) {
	html, err := render(lowStockTmpl, struct{ Products []catalog.Product }{products})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      recipients,
		Subject: fmt.Sprintf("Low stock alert: %d products", len(products)),
		HTML:    html,
	}, nil
}

func renderWelcome(email, name string) (Message, error) {
	html, err := render(welcomeTmpl, struct{ Name string }{name})
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{email}, Subject: "Welcome to the store", HTML: html}, nil
}

func renderPasswordReset(email, resetURL string) (Message, error) {
	html, err := render(passwordResetTmpl, struct{ ResetURL string }{resetURL})
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{email}, Subject: "Reset your password", HTML: html}, nil
}
