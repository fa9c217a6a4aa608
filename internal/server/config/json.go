package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/pxauth/internal/flagx"
	"github.com/dmitrijs2005/pxauth/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Pointer fields
// distinguish "absent" from zero so a file only overrides what it names.
// Durations accept "15m" style strings or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC          *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN               *string         `json:"database_dsn"`
	FrontendHost              *string         `json:"frontend_host"`
	LogLevel                  *string         `json:"log_level"`
	ConfirmationTTL           *timex.Duration `json:"confirmation_ttl"`
	MaxCodeTrials             *int            `json:"max_code_trials"`
	TouchInterval             *timex.Duration `json:"touch_interval"`
	EmailChallengeOnNewDevice *bool           `json:"email_challenge_on_new_device"`
	BcryptCost                *int            `json:"bcrypt_cost"`
	TOTPIssuer                *string         `json:"totp_issuer"`
	TOTPPeriod                *int            `json:"totp_period"`
	TOTPDigits                *int            `json:"totp_digits"`
	TOTPSkew                  *int            `json:"totp_skew"`
	SMTPHost                  *string         `json:"smtp_host"`
	SMTPPort                  *int            `json:"smtp_port"`
	SMTPUser                  *string         `json:"smtp_user"`
	SMTPPassword              *string         `json:"smtp_password"`
	SMTPFrom                  *string         `json:"smtp_from"`
	MailQueueSize             *int            `json:"mail_queue_size"`
}

// parseJson loads the file named by -c/-config, if any, and copies the
// fields it sets into config. Unreadable files or invalid JSON panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.FrontendHost, c.FrontendHost)
	setString(&config.LogLevel, c.LogLevel)
	if c.ConfirmationTTL != nil {
		config.ConfirmationTTL = c.ConfirmationTTL.Duration
	}
	setInt(&config.MaxCodeTrials, c.MaxCodeTrials)
	if c.TouchInterval != nil {
		config.TouchInterval = c.TouchInterval.Duration
	}
	if c.EmailChallengeOnNewDevice != nil {
		config.EmailChallengeOnNewDevice = *c.EmailChallengeOnNewDevice
	}
	setInt(&config.BcryptCost, c.BcryptCost)
	setString(&config.TOTPIssuer, c.TOTPIssuer)
	setInt(&config.TOTPPeriod, c.TOTPPeriod)
	setInt(&config.TOTPDigits, c.TOTPDigits)
	setInt(&config.TOTPSkew, c.TOTPSkew)
	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SMTPFrom, c.SMTPFrom)
	setInt(&config.MailQueueSize, c.MailQueueSize)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
