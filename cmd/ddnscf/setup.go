package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	ddns "github.com/Travis-Britz/cfddns"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// runSetup prompts for an API token, verifies it, and writes it to keyFile.
func runSetup(ctx context.Context, keyFile, apiURL string, logger logrus.FieldLogger) error {
	fmt.Fprintf(os.Stderr, "Enter Cloudflare API Token: \n")
	bytekey, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	return saveToken(ctx, strings.TrimSpace(string(bytekey)), keyFile, apiURL, logger)
}

func saveToken(ctx context.Context, key, keyFile, apiURL string, logger logrus.FieldLogger) error {
	if key == "" {
		return &ddns.ConfigError{Setting: "API token", Reason: "cannot be empty"}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	logger.Info("verifying token...")
	if err := ddns.VerifyToken(ctx, key, ddns.APIURL(apiURL)); err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	logger.Info("token verified successfully")

	logger.Infof("creating key file at \"%s\"", keyFile)
	f, err := os.OpenFile(keyFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", keyFile, err)
	}
	defer f.Close()
	if _, err := io.WriteString(f, key+"\n"); err != nil {
		return fmt.Errorf("writing \"%s\": %w", keyFile, err)
	}
	logger.Infof("token written to \"%s\"", keyFile)
	return nil
}
