package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Provider interface {
	Send(ctx context.Context, to []string, subject string, body string) error
}

// Receipt is the purchase confirmation sent once an NFT is delivered.
type Receipt struct {
	To              string
	BuyerName       string
	AssetID         string
	ContractAddress string
	TransactionID   string
	Amount          decimal.Decimal
	Currency        string
}

// SendReceipt renders a plain-text receipt and sends it through p.
func SendReceipt(ctx context.Context, p Provider, r Receipt) error {
	if p == nil || strings.TrimSpace(r.To) == "" {
		return nil
	}
	subject, body := ReceiptMessage(r)
	return p.Send(ctx, []string{r.To}, subject, body)
}

func ReceiptMessage(r Receipt) (string, string) {
	greeting := "Hello"
	if name := strings.TrimSpace(r.BuyerName); name != "" {
		greeting = "Hello " + name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s,\n\n", greeting)
	fmt.Fprintf(&b, "Your payment of %s %s was received and NFT %s has been delivered.\n", r.Amount.StringFixed(2), r.Currency, r.AssetID)
	if r.ContractAddress != "" {
		fmt.Fprintf(&b, "Contract: %s\n", r.ContractAddress)
	}
	fmt.Fprintf(&b, "Transaction: %s\n", r.TransactionID)
	return "Your NFT purchase is complete", b.String()
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, body string) error {
	return nil
}
