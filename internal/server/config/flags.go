package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-f string   frontend host used in confirmation links
//	-l string   log level
//	-t int      confirmation validity, minutes
//	-n int      wrong codes allowed per confirmation
//	-m string   SMTP host
//
// Duration flags are accepted as integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-f", "-l", "-t", "-n", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.FrontendHost, "f", config.FrontendHost, "frontend host")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	confirmationTTL := fs.Int("t", int(config.ConfirmationTTL.Minutes()), "confirmation validity (in minutes)")

	fs.IntVar(&config.MaxCodeTrials, "n", config.MaxCodeTrials, "wrong codes allowed per confirmation")
	fs.StringVar(&config.SMTPHost, "m", config.SMTPHost, "SMTP host")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ConfirmationTTL = time.Duration(*confirmationTTL) * time.Minute
}
