// Package main provides a CLI for issuing producer API tokens and unsubscribe links.
// Usage: catchup-notify-token producer NAME [--ttl 720h] [--output json]
//
//	catchup-notify-token unsubscribe USER_ID TYPE [--output json]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"catchup-notify/internal/domain/entity"
	hauth "catchup-notify/internal/handler/http/auth"
	"catchup-notify/internal/usecase/unsubscribe"

	"github.com/google/uuid"
)

// TokenOutput represents the JSON output format.
type TokenOutput struct {
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject"`
	Token     string    `json:"token,omitempty"`
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Getenv, time.Now(), os.Stdout, os.Stderr))
}

func run(args []string, getenv func(string) string, now time.Time, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("catchup-notify-token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		ttl          time.Duration
		outputFormat string
	)
	fs.DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	fs.StringVar(&outputFormat, "output", "text", "Output format: text or json")

	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	kind := args[0]

	// flag は最初の位置引数で止まるので、フラグと位置引数が混在しても拾えるよう繰り返す
	var rest []string
	remaining := args[1:]
	for {
		if err := fs.Parse(remaining); err != nil {
			return 2
		}
		remaining = fs.Args()
		if len(remaining) == 0 {
			break
		}
		rest = append(rest, remaining[0])
		remaining = remaining[1:]
	}

	var out TokenOutput
	var err error
	switch kind {
	case "producer":
		if len(rest) != 1 {
			usage(stderr)
			return 2
		}
		out, err = issueProducer(getenv("PRODUCER_JWT_SECRET"), rest[0], ttl, now)
	case "unsubscribe":
		if len(rest) != 2 {
			usage(stderr)
			return 2
		}
		out, err = issueUnsubscribe(getenv, rest[0], rest[1], ttl, now)
	default:
		usage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	if out.URL != "" {
		fmt.Fprintln(stdout, out.URL)
	} else {
		fmt.Fprintln(stdout, out.Token)
	}
	fmt.Fprintf(stderr, "expires at %s\n", out.ExpiresAt.Format(time.RFC3339))
	return 0
}

func issueProducer(secret, name string, ttl time.Duration, now time.Time) (TokenOutput, error) {
	token, err := hauth.IssueProducerToken([]byte(secret), name, ttl, now)
	if err != nil {
		return TokenOutput{}, err
	}
	return TokenOutput{Kind: "producer", Subject: name, Token: token, ExpiresAt: now.Add(ttl).UTC()}, nil
}

func issueUnsubscribe(getenv func(string) string, rawUserID, rawType string, ttl time.Duration, now time.Time) (TokenOutput, error) {
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return TokenOutput{}, fmt.Errorf("invalid user id: %w", err)
	}
	baseURL := getenv("UNSUBSCRIBE_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080/unsubscribe"
	}
	tokens, err := unsubscribe.NewTokenService(unsubscribe.TokenConfig{
		Secret:  []byte(getenv("UNSUBSCRIBE_SECRET")),
		TTL:     ttl,
		BaseURL: baseURL,
		Now:     func() time.Time { return now },
	})
	if err != nil {
		return TokenOutput{}, err
	}
	link, err := tokens.UnsubscribeURL(userID, entity.NotificationType(rawType))
	if err != nil {
		return TokenOutput{}, err
	}
	return TokenOutput{Kind: "unsubscribe", Subject: userID.String(), URL: link, ExpiresAt: now.Add(ttl).UTC()}, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  catchup-notify-token producer NAME [--ttl 720h] [--output json]")
	fmt.Fprintln(w, "  catchup-notify-token unsubscribe USER_ID TYPE [--ttl 720h] [--output json]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  PRODUCER_JWT_SECRET   signing secret for producer tokens")
	fmt.Fprintln(w, "  UNSUBSCRIBE_SECRET    signing secret for unsubscribe links")
	fmt.Fprintln(w, "  UNSUBSCRIBE_BASE_URL  public unsubscribe endpoint")
}
