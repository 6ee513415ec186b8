package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"plantstore-be/internal/logger"
	"plantstore-be/internal/mail"
	"plantstore-be/internal/metrics"
	"plantstore-be/internal/order"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Result reports each send independently. There are no retries.
type Result struct {
	CustomerSent bool
	AdminSent    bool
}

type Notifier interface {
	Notify(ctx context.Context, o *order.Order, items []order.OrderItem) Result
}

type emailNotifier struct {
	sender     mail.Sender
	storeName  string
	adminEmail string
	loc        *time.Location
}

func NewEmailNotifier(sender mail.Sender, storeName, adminEmail string) Notifier {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		logger.L().Error("failed to load Nairobi location, defaulting to UTC", zap.Error(err))
		loc = time.UTC
	}

	return &emailNotifier{
		sender:     sender,
		storeName:  storeName,
		adminEmail: adminEmail,
		loc:        loc,
	}
}

type itemView struct {
	Name     string
	Quantity int
	Price    string
	Subtotal string
}

type orderView struct {
	StoreName     string
	OrderID       string
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string

	Delivery        bool
	ShippingAddress string
	ShippingCity    string
	ShippingState   string
	ShippingZip     string
	PickupLocation  string

	PaymentLabel string
	Receipt      string
	Items        []itemView
	Total        string
	PlacedAt     string
}

func paymentLabel(m order.PaymentMethod) string {
	switch m {
	case order.PaymentMethodMpesa:
		return "M-Pesa"
	case order.PaymentMethodCashOnDelivery:
		return "Cash on delivery"
	case order.PaymentMethodPayOnPickup:
		return "Pay on pickup"
	}
	return string(m)
}

func (n *emailNotifier) view(o *order.Order, items []order.OrderItem) orderView {
	v := orderView{
		StoreName:       n.storeName,
		OrderID:         o.ID.String(),
		OrderNumber:     o.OrderNumber,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		CustomerPhone:   o.CustomerPhone,
		Delivery:        o.DeliveryMethod == order.DeliveryMethodDelivery,
		ShippingAddress: o.ShippingAddress,
		ShippingCity:    o.ShippingCity,
		ShippingState:   o.ShippingState,
		ShippingZip:     o.ShippingZip,
		PickupLocation:  o.PickupLocation,
		PaymentLabel:    paymentLabel(o.PaymentMethod),
		Total:           FormatKES(o.TotalAmount),
		PlacedAt:        o.CreatedAt.In(n.loc).Format("2 Jan 2006 15:04"),
	}
	if o.MpesaReceipt != nil {
		v.Receipt = *o.MpesaReceipt
	}

	v.Items = make([]itemView, 0, len(items))
	for _, it := range items {
		v.Items = append(v.Items, itemView{
			Name:     it.ProductName,
			Quantity: it.Quantity,
			Price:    FormatKES(it.Price),
			Subtotal: FormatKES(it.Subtotal()),
		})
	}
	return v
}

func render(name string, v orderView) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, v); err != nil {
		return "", fmt.Errorf("render %s email: %w", name, err)
	}
	return buf.String(), nil
}

// Notify sends the customer confirmation and the admin alert. A failure of one
// never prevents the other.
func (n *emailNotifier) Notify(ctx context.Context, o *order.Order, items []order.OrderItem) Result {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "notify"),
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
	)

	v := n.view(o, items)

	var res Result
	res.CustomerSent = n.send(ctx, log, "customer", o.CustomerEmail,
		fmt.Sprintf("Order %s confirmed - %s", o.OrderNumber, n.storeName), v)
	res.AdminSent = n.send(ctx, log, "admin", n.adminEmail,
		fmt.Sprintf("Action required: new order %s (%s)", o.OrderNumber, v.Total), v)

	return res
}

func (n *emailNotifier) send(ctx context.Context, log *zap.Logger, kind, to, subject string, v orderView) bool {
	ok := n.deliver(ctx, log, kind, to, subject, v)
	metrics.NotificationsTotal.WithLabelValues(kind, metrics.Outcome(ok)).Inc()
	return ok
}

func (n *emailNotifier) deliver(ctx context.Context, log *zap.Logger, kind, to, subject string, v orderView) bool {
	log = log.With(zap.String("recipient", kind))

	if to == "" {
		log.Warn("no recipient address, skipping email")
		return false
	}

	html, err := render(kind, v)
	if err != nil {
		log.Error("failed to render email", zap.Error(fmt.Errorf("%w: %w", ErrNotificationFailure, err)))
		return false
	}

	id, err := n.sender.Send(ctx, mail.Message{To: []string{to}, Subject: subject, HTML: html})
	if err != nil {
		log.Error("failed to send email", zap.Error(fmt.Errorf("%w: %w", ErrNotificationFailure, err)))
		return false
	}

	log.Info("email sent", zap.String("message_id", id))
	return true
}

// NotifyAsync runs n.Notify in the background on a context detached from the request.
func NotifyAsync(ctx context.Context, n Notifier, o *order.Order) {
	if n == nil || o == nil {
		return
	}
	bg := logger.Detach(ctx)
	go func() {
		res := n.Notify(bg, o, o.Items)
		logger.FromCtx(bg).Info("order notification finished",
			zap.String("order_id", o.ID.String()),
			zap.Bool("customer_sent", res.CustomerSent),
			zap.Bool("admin_sent", res.AdminSent),
		)
	}()
}
