package payment

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

type QRGenerator interface {
	Generate(p *Payment) ([]byte, error)
}

// ReceiptQR encodes a link to the receipt, with the total for offline display.
type ReceiptQR struct {
	BaseURL string
	Size    int
}

func (g ReceiptQR) Content(p *Payment) string {
	return fmt.Sprintf("%s/payments/%s?total=%s", strings.TrimRight(g.BaseURL, "/"), p.ID, p.Total.StringFixed(2))
}

func (g ReceiptQR) Generate(p *Payment) ([]byte, error) {
	size := g.Size
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(g.Content(p), qrcode.Medium, size)
}
