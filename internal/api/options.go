package api

import (
	"time"
)

// Transport names accepted by WithTransport.
const (
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration for the API server and the service it runs.
type Opts struct {
	Addr      string
	JWTSecret string
	StateDir  string

	Transport        string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioWebhookURL string

	AdminIDs      []string
	TiersFile     string
	Timezone      string
	OTELEndpoint  string
	FastDelays    bool
	ShutdownGrace time.Duration
}

// Option is a functional option for configuring the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithJWTSecret enables the authenticated endpoints. Tokens are HS256 signed
// with secret.
func WithJWTSecret(secret string) Option {
	return func(o *Opts) { o.JWTSecret = secret }
}

// WithStateDir sets the directory that is locked for the lifetime of the process.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithTransport selects the messaging transport (TransportWhatsApp or TransportTwilio).
func WithTransport(name string) Option {
	return func(o *Opts) { o.Transport = name }
}

// WithTwilioCredentials configures the Twilio transport.
func WithTwilioCredentials(accountSID, authToken, from string) Option {
	return func(o *Opts) {
		o.TwilioAccountSID = accountSID
		o.TwilioAuthToken = authToken
		o.TwilioFrom = from
	}
}

// WithTwilioWebhookURL enables X-Twilio-Signature checks against the public
// webhook URL.
func WithTwilioWebhookURL(url string) Option {
	return func(o *Opts) { o.TwilioWebhookURL = url }
}

// WithAdmins grants the admin tier to the given participant ids.
func WithAdmins(ids []string) Option {
	return func(o *Opts) { o.AdminIDs = ids }
}

// WithTiersFile loads tier plans from a YAML file.
func WithTiersFile(path string) Option {
	return func(o *Opts) { o.TiersFile = path }
}

// WithTimezone sets the IANA zone used for daily quota boundaries.
func WithTimezone(tz string) Option {
	return func(o *Opts) { o.Timezone = tz }
}

// WithOTELEndpoint enables trace export to an OTLP/HTTP collector.
func WithOTELEndpoint(endpoint string) Option {
	return func(o *Opts) { o.OTELEndpoint = endpoint }
}

// WithFastDelays shrinks every follow-up delay to seconds, for manual testing.
func WithFastDelays() Option {
	return func(o *Opts) { o.FastDelays = true }
}

func defaultOpts() Opts {
	return Opts{
		Addr:          DefaultAddr,
		Transport:     TransportWhatsApp,
		Timezone:      "UTC",
		ShutdownGrace: 10 * time.Second,
	}
}
