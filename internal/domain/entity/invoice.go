package entity

// Invoice is the structured record the OCR collaborator extracts from an
// uploaded document.
type Invoice struct {
	InvoiceNumber string
	InvoiceDate   string
	InvoiceType   string
	TotalAmount   string
	TaxAmount     string
	NetAmount     string
	SellerName    string
	SellerTaxID   string
	BuyerName     string
	BuyerTaxID    string
	Confidence    float64
}

// Fields flattens the non-empty invoice values into logical field names,
// ready to merge into a session's extracted data.
func (inv *Invoice) Fields() map[string]string {
	out := make(map[string]string)
	put := func(key, val string) {
		if val != "" {
			out[key] = val
		}
	}
	put("invoice_number", inv.InvoiceNumber)
	put("invoice_date", inv.InvoiceDate)
	put("invoice_type", inv.InvoiceType)
	put("total_amount", inv.TotalAmount)
	put("tax_amount", inv.TaxAmount)
	put("net_amount", inv.NetAmount)
	put("seller_name", inv.SellerName)
	put("seller_tax_id", inv.SellerTaxID)
	put("buyer_name", inv.BuyerName)
	put("buyer_tax_id", inv.BuyerTaxID)
	return out
}
