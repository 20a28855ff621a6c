package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-checkout/internal/domain"
)

func TestRenderOrderConfirmation(t *testing.T) {
	msg, err := Render("asha@example.com", Payload{
		Type:      domain.EmailOrderConfirmation,
		Name:      "Asha",
		Reference: "ORD-20260101-120000-ABCDEF",
		Items:     []LineItem{{Name: "Mug", Quantity: 2, Total: "900.00"}},
		Subtotal:  "900.00",
		Shipping:  "150.00",
		Total:     "1050.00",
	})
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", msg.To)
	assert.Equal(t, "Your order ORD-20260101-120000-ABCDEF is confirmed", msg.Subject)
	assert.Contains(t, msg.Body, "2 x Mug")
	assert.Contains(t, msg.Body, "Total paid: Rs. 1050.00")
}

func TestEveryEmailTypeHasTemplate(t *testing.T) {
	types := []domain.EmailType{
		domain.EmailOrderConfirmation, domain.EmailBookingConfirmation, domain.EmailCustomReceived,
		domain.EmailCustomQuote, domain.EmailCustomPaymentReceived, domain.EmailCustomInProgress,
		domain.EmailCustomShipped, domain.EmailCustomDelivered, domain.EmailCustomRejected,
	}
	for _, typ := range types {
		msg, err := Render("x@example.com", Payload{Type: typ, Name: "X", Reference: "R-1"})
		require.NoError(t, err, typ)
		assert.NotEmpty(t, msg.Subject, typ)
		assert.NotEmpty(t, msg.Body, typ)
	}

	_, err := Render("x@example.com", Payload{Type: "newsletter"})
	assert.Error(t, err)
}

func TestEnvelopeAddress(t *testing.T) {
	assert.Equal(t, "orders@example.com", envelopeAddress("Clay Studio <orders@example.com>"))
	assert.Equal(t, "orders@example.com", envelopeAddress("orders@example.com"))
}
