package email

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

// Notifier es el puerto que usan auth/mfa/session: send(template, context).
type Notifier interface {
	Send(ctx context.Context, templateID, to string, vars Vars)
}

// AsyncNotifier renderiza en el request y entrega en una goroutine con timeout propio.
type AsyncNotifier struct {
	sender    Sender
	templates map[string]template
	product   string
	timeout   time.Duration
	now       func() time.Time

	// done, si no es nil, recibe el resultado de cada envío (tests).
	done chan<- error
}

func NewAsyncNotifier(sender Sender, product string, timeout time.Duration) (*AsyncNotifier, error) {
	tpls, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if product == "" {
		product = "control plane"
	}
	return &AsyncNotifier{sender: sender, templates: tpls, product: product, timeout: timeout, now: time.Now}, nil
}

func (n *AsyncNotifier) Send(ctx context.Context, templateID, to string, vars Vars) {
	log := logger.From(ctx).With(logger.Component("email.notifier"), logger.String("template", templateID))
	if to == "" {
		return
	}
	tpl, ok := n.templates[templateID]
	if !ok {
		log.Error("unknown email template")
		return
	}
	if vars.Email == "" {
		vars.Email = to
	}
	if vars.When == "" {
		vars.When = n.now().UTC().Format(time.RFC1123)
	}
	if vars.Product == "" {
		vars.Product = n.product
	}
	html, text, err := tpl.render(vars)
	if err != nil {
		log.Error("render email failed", logger.Err(err))
		return
	}

	// Desacoplado de la cancelación del request; conserva el logger.
	bg := logger.ToContext(context.Background(), log)
	go func() {
		sctx, cancel := context.WithTimeout(bg, n.timeout)
		defer cancel()
		err := n.deliver(sctx, to, tpl.subject, html, text)
		if err != nil {
			log.Warn("notification not delivered", logger.Err(err))
		}
		if n.done != nil {
			n.done <- err
		}
	}()
}

func (n *AsyncNotifier) deliver(ctx context.Context, to, subject, html, text string) error {
	res := make(chan error, 1)
	go func() { res <- n.sender.Send(ctx, to, subject, html, text) }()
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return fmt.Errorf("email: send timeout: %w", ctx.Err())
	}
}

// Discard no envía nada.
type Discard struct{}

func (Discard) Send(context.Context, string, string, Vars) {}
