package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/smtp"
	"net/textproto"
	"path/filepath"
	"time"
)

// SMTPSender relays messages through an SMTP server such as a local postfix.
type SMTPSender struct {
	Addr string
	From string
	Auth smtp.Auth

	now      func() time.Time
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns a sender relaying through addr with the given
// envelope sender.
func NewSMTPSender(addr, from string) *SMTPSender {
	return &SMTPSender{
		Addr:     addr,
		From:     from,
		now:      time.Now,
		sendMail: smtp.SendMail,
	}
}

// Send encodes msg and hands it to the relay. net/smtp has no context support
// so ctx is only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return fmt.Errorf("smtp: recipient required")
	}
	raw, err := Encode(s.From, msg, s.now())
	if err != nil {
		return err
	}
	if err := s.sendMail(s.Addr, s.Auth, s.From, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("smtp %s: %w", s.Addr, err)
	}
	return nil
}

// Encode renders msg as an RFC 5322 message. Messages with attachments are
// sent as multipart/mixed with base64 encoded parts.
func Encode(from string, msg Message, date time.Time) ([]byte, error) {
	var buf bytes.Buffer
	header := textproto.MIMEHeader{}
	header.Set("From", from)
	header.Set("To", msg.To)
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("Date", date.Format(time.RFC1123Z))
	header.Set("MIME-Version", "1.0")

	if len(msg.Attachments) == 0 {
		header.Set("Content-Type", "text/plain; charset=utf-8")
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		writeHeader(&buf, header)
		if err := writeQuotedPrintable(&buf, msg.Body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header.Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	writeHeader(&buf, header)

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeQuotedPrintable(text, msg.Body); err != nil {
		return nil, err
	}
	for _, a := range msg.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		name := filepath.Base(a.Filename)
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(contentType, map[string]string{"name": name})},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": name})},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, a.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

var headerOrder = []string{"From", "To", "Subject", "Date", "MIME-Version", "Content-Type", "Content-Transfer-Encoding"}

func writeHeader(buf *bytes.Buffer, header textproto.MIMEHeader) {
	for _, key := range headerOrder {
		if v := header.Get(key); v != "" {
			fmt.Fprintf(buf, "%s: %s\r\n", key, v)
		}
	}
	buf.WriteString("\r\n")
}

func writeQuotedPrintable(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := fmt.Fprintf(w, "%s\r\n", encoded[:76]); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := fmt.Fprintf(w, "%s\r\n", encoded)
	return err
}
