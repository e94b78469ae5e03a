package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"gopkg.in/gomail.v2"
)

// TrackingInfo correlates a relayed message back to one ledger row.
type TrackingInfo struct {
	CorrelationID string `json:"correlation_id"`
	CampaignID    uint   `json:"campaign_id"`
	ContactID     uint   `json:"contact_id"`
}

// Attachment references a stored file by URL; the relay fetches it.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Type     string `json:"type"`
}

// OutboundMessage is one fully rendered message handed to the transport.
type OutboundMessage struct {
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	HTMLBody    string       `json:"html_body"`
	SenderName  string       `json:"sender_name"`
	CC          string       `json:"cc,omitempty"`
	BCC         string       `json:"bcc,omitempty"`
	Tracking    TrackingInfo `json:"tracking_info"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Transport performs the actual transmission of a rendered message. The
// engine only sees success or failure; retries, bounces and provider
// handling live behind this boundary.
type Transport interface {
	Send(msg OutboundMessage) error
}

// RelayClient posts messages to the external outbound-mail relay.
type RelayClient struct {
	Endpoint string
	APIKey   string
	Client   *fasthttp.Client
	Timeout  time.Duration
}

func NewRelayClient(endpoint, apiKey string) *RelayClient {
	return &RelayClient{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &fasthttp.Client{},
		Timeout:  30 * time.Second,
	}
}

func (rc *RelayClient) Send(msg OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode relay payload: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rc.Endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if rc.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+rc.APIKey)
	}
	req.SetBody(body)

	if err := rc.Client.DoTimeout(req, resp, rc.Timeout); err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}

	if resp.StatusCode() >= 300 {
		// The relay's failure detail goes into the ledger verbatim.
		return errors.New(relayErrorDetail(resp))
	}
	return nil
}

func relayErrorDetail(resp *fasthttp.Response) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if detail := strings.TrimSpace(string(resp.Body())); detail != "" {
		return detail
	}
	return fmt.Sprintf("relay returned status %d", resp.StatusCode())
}

// SMTPTransport delivers directly over SMTP when no relay is configured.
// Attachment references are relay-only and are not fetched here.
type SMTPTransport struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
}

func (st *SMTPTransport) Send(msg OutboundMessage) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", st.FromEmail, msg.SenderName)
	m.SetHeader("To", msg.To)
	if msg.CC != "" {
		m.SetHeader("Cc", msg.CC)
	}
	if msg.BCC != "" {
		m.SetHeader("Bcc", msg.BCC)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	d := gomail.NewDialer(st.Host, st.Port, st.Username, st.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}
