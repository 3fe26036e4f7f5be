package services

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"rifa/internal/models"
)

type PaymentResult string

const (
	PaymentNone    PaymentResult = ""
	PaymentSuccess PaymentResult = "success"
	PaymentFailure PaymentResult = "failure"
	PaymentPending PaymentResult = "pending"
)

// PaymentQuery is what the payment page reads from its URL.
type PaymentQuery struct {
	Numbers []int
	Total   decimal.Decimal
	Result  PaymentResult
}

// ParsePaymentQuery reads numeros, total and the success/failure/pending
// flags. An unparseable total reads as zero.
func ParsePaymentQuery(q url.Values) PaymentQuery {
	pq := PaymentQuery{Numbers: SplitNumbers(q.Get("numeros"))}
	if total, err := decimal.NewFromString(q.Get("total")); err == nil {
		pq.Total = total
	}
	switch {
	case q.Get("success") == "true":
		pq.Result = PaymentSuccess
	case q.Get("failure") == "true":
		pq.Result = PaymentFailure
	case q.Get("pending") == "true":
		pq.Result = PaymentPending
	}
	return pq
}

// WhatsAppURL builds the wa.me deep link carrying the order details.
func WhatsAppURL(number string, p *models.Purchase) string {
	padded := make([]string, len(p.Numbers))
	for i, n := range p.Numbers {
		padded[i] = fmt.Sprintf("%03d", n)
	}

	msg := fmt.Sprintf(`Olá! Acabei de fazer meu pedido na Rifa do Chá de Fralda da Malu 💕👶

📝 *Dados do pedido:*
• Nome: %s
• Telefone: %s
• Números: %s
• Total: R$ %s

💳 Já realizei o pagamento via PIX e gostaria de enviar o comprovante!

Obrigado(a)! 🎉`, p.CustomerName, p.CustomerPhone, strings.Join(padded, ", "), p.Total.StringFixed(2))

	return "https://wa.me/" + number + "?text=" + strings.ReplaceAll(url.QueryEscape(msg), "+", "%20")
}
