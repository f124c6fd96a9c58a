package email

import "html/template"

var receiptTemplate = template.Must(template.New("receipt").Parse(`<h1>¡Gracias por tu compra!</h1>
<p>Compra #{{.PurchaseID}}{{if .BuyOrder}} (orden {{.BuyOrder}}){{end}}</p>
<table>
  <tr><th>Producto</th><th>Cantidad</th><th>Precio unitario</th></tr>
{{- range .Items}}
  <tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>${{.UnitPrice}}</td></tr>
{{- end}}
</table>
<p><strong>Total: ${{.Total}}</strong></p>
{{- if .AuthorizationCode}}
<p>Código de autorización: {{.AuthorizationCode}}</p>
{{- end}}
<p><a href="{{.PurchasesURL}}">Ver mis compras</a></p>
`))

var rejectedTemplate = template.Must(template.New("rejected").Parse(`<h1>Tu pago no pudo completarse</h1>
<p>La orden {{.BuyOrder}} por ${{.Amount}} fue rechazada (código {{.ResponseCode}}).</p>
<p>Tu carrito sigue disponible, puedes intentarlo nuevamente.</p>
<p><a href="{{.CartURL}}">Volver al carrito</a></p>
`))

type receiptView struct {
	PurchaseID        int64
	BuyOrder          string
	AuthorizationCode string
	Total             string
	Items             []receiptLine
	PurchasesURL      string
}

type receiptLine struct {
	Name      string
	Quantity  int32
	UnitPrice string
}

type rejectedView struct {
	BuyOrder     string
	Amount       int64
	ResponseCode int
	CartURL      string
}
