package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"math"
	texttemplate "text/template"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig configures the outbound mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
	Subject  string
	// CodeTTL is quoted in the message body.
	CodeTTL time.Duration
	Timeout time.Duration
}

type mailDialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPSender delivers codes over SMTP with go-mail.
type SMTPSender struct {
	cfg    SMTPConfig
	client mailDialer
}

var (
	codeText = texttemplate.Must(texttemplate.New("text").Parse(
		"Your verification code is {{.Code}}\n\nIt expires in {{.Minutes}} minutes. If you did not try to sign in, ignore this message.\n"))
	codeHTML = htmltemplate.Must(htmltemplate.New("html").Parse(
		`<p>Your verification code is <strong>{{.Code}}</strong></p><p>It expires in {{.Minutes}} minutes. If you did not try to sign in, ignore this message.</p>`))
)

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp host and from address are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Subject == "" {
		cfg.Subject = "Your verification code"
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{cfg: cfg, client: client}, nil
}

func (s *SMTPSender) SendCode(ctx context.Context, email, code string) error {
	if email == "" {
		return ErrNoRecipient
	}
	msg, err := s.message(email, code)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(email, code string) (*mail.Msg, error) {
	data := struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: int(math.Ceil(s.cfg.CodeTTL.Minutes()))}

	var text, html bytes.Buffer
	if err := codeText.Execute(&text, data); err != nil {
		return nil, err
	}
	if err := codeHTML.Execute(&html, data); err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(email); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(s.cfg.Subject)
	msg.SetBodyString(mail.TypeTextPlain, text.String())
	msg.AddAlternativeString(mail.TypeTextHTML, html.String())
	return msg, nil
}
