package notifications

import (
	"bytes"
	"html/template"
)

var emailTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body style="margin:0;padding:0;font-family:Arial,sans-serif;background-color:#f4f4f4;">
<div style="max-width:600px;margin:0 auto;padding:20px;border:1px solid #e0e0e0;border-radius:5px;background-color:#ffffff;">
  <div style="background-color:{{.Accent}};padding:15px;border-radius:5px;margin-bottom:20px;">
    <h1 style="color:white;margin:0;font-size:24px;">{{.Heading}}</h1>
  </div>
  <p style="font-size:16px;line-height:1.5;">Hello {{.Recipient}},</p>
  <p style="font-size:16px;line-height:1.5;">{{.Content}}</p>
  {{- if .Rows}}
  <div style="background-color:#f9f9f9;padding:15px;border-radius:5px;margin:20px 0;">
    {{- range .Rows}}
    <p><strong>{{.Label}}:</strong> {{.Value}}</p>
    {{- end}}
  </div>
  {{- end}}
  <div style="margin-top:30px;padding-top:20px;border-top:1px solid #e0e0e0;text-align:center;color:#666;">
    <p>This is an automated notification from Inventra. Please do not reply to this email.</p>
  </div>
</div>
</body>
</html>
`))

type emailView struct {
	Title     string
	Heading   string
	Accent    string
	Recipient string
	Content   string
	Rows      []Row
}

var headings = map[Type]string{
	TypeOrderSale:       "New Sale Order",
	TypeOrderStock:      "New Stock Order",
	TypeOrderDelete:     "Order Deleted",
	TypeLowStock:        "Low Stock Alert",
	TypeLowStockDigest:  "Low Stock Digest",
	TypeProductCreate:   "Product Created",
	TypeProductUpdate:   "Product Updated",
	TypeProductDelete:   "Product Deleted",
	TypeInventoryCreate: "Inventory Part Created",
	TypeInventoryUpdate: "Inventory Part Updated",
	TypeInventoryDelete: "Inventory Part Deleted",
}

func accent(t Type) string {
	switch t {
	case TypeLowStock, TypeLowStockDigest, TypeOrderDelete, TypeProductDelete, TypeInventoryDelete:
		return "#dc3545"
	case TypeOrderSale, TypeOrderStock:
		return "#28a745"
	default:
		return "#007bff"
	}
}

// RenderEmail renders the HTML body sent to one recipient.
func RenderEmail(ev Event, recipient Recipient) (string, error) {
	heading := headings[ev.Type]
	if heading == "" {
		heading = ev.Title
	}
	name := recipient.FullName
	if name == "" {
		name = "there"
	}
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, emailView{
		Title:     ev.Title,
		Heading:   heading,
		Accent:    accent(ev.Type),
		Recipient: name,
		Content:   ev.Content,
		Rows:      ev.Rows,
	})
	return buf.String(), err
}
