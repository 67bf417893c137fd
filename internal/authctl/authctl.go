// Package authctl is the operator tool for gophauth: it generates
// configuration secrets, hashes and digests values with the configured
// envelope, and drives the gRPC API from a terminal.
package authctl

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
)

const usage = `usage: authctl <command> [args] [flags]

commands:
  keygen                     print fresh secrets as a JSON config fragment
  hash                       read a secret without echo and print its argon2 hash
  digest <value>             print the seasoned digest of value
  ping                       check the server
  register <username> [email]
  login <username>           print an access token
  session <token>            show the session behind a token
  logout <token>`

// ErrUsage is returned for unknown commands and missing arguments.
var ErrUsage = errors.New(usage)

type App struct {
	crypto *cryptox.Envelope
	client *Client
	reader *bufio.Reader
	out    io.Writer
	random io.Reader
}

// New returns an App. client may be nil when only offline commands are used.
func New(crypto *cryptox.Envelope, client *Client, in io.Reader, out io.Writer) *App {
	return &App{crypto: crypto, client: client, reader: bufio.NewReader(in), out: out, random: rand.Reader}
}

// positional returns the arguments before the first flag.
func positional(args []string) []string {
	for i, a := range args {
		if strings.HasPrefix(a, "-") {
			return args[:i]
		}
	}
	return args
}

func (a *App) Run(ctx context.Context, args []string) error {
	args = positional(args)
	if len(args) == 0 {
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "keygen":
		return a.keygen()
	case "hash":
		return a.hash()
	case "digest":
		if len(rest) != 1 {
			return ErrUsage
		}
		return a.digest(rest[0])
	case "ping", "register", "login", "session", "logout":
		if a.client == nil {
			return fmt.Errorf("%s: no server connection", cmd)
		}
		return a.remote(ctx, cmd, rest)
	case "help":
		fmt.Fprintln(a.out, usage)
		return nil
	}
	return ErrUsage
}

func (a *App) randomKey(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(a.random, b); err != nil {
		return "", err
	}
	defer common.WipeByteArray(b)
	return base64.StdEncoding.EncodeToString(b), nil
}

// keygen prints the secrets of a server JSON config.
func (a *App) keygen() error {
	out := map[string]string{}
	for _, k := range []string{"symmetric_encryption_key", "symmetric_signature_secret", "session_secret", "digest_checksum_salt", "digest_checksum_pepper"} {
		v, err := a.randomKey(cryptox.SymmetricKeySize)
		if err != nil {
			return err
		}
		out[k] = v
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (a *App) hash() error {
	secret, err := PromptSecret(a.reader, "Secret", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)
	if len(secret) == 0 {
		return fmt.Errorf("%w: empty secret", common.ErrorInvalidInput)
	}
	h, err := a.crypto.CreateSecretHash(string(secret))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, h)
	return nil
}

func (a *App) digest(value string) error {
	d, err := a.crypto.CreateSeasonedDigest(value)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, d)
	return nil
}

func (a *App) remote(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "ping":
		if err := a.client.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "OK")

	case "register":
		if len(args) < 1 || len(args) > 2 {
			return ErrUsage
		}
		var email string
		if len(args) == 2 {
			email = args[1]
		}
		pw, err := PromptSecret(a.reader, "Password", a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(pw)
		sub, err := a.client.Register(ctx, args[0], string(pw), email)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "registered", sub)

	case "login":
		if len(args) != 1 {
			return ErrUsage
		}
		pw, err := PromptSecret(a.reader, "Password", a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(pw)
		code, err := Prompt(a.reader, "TOTP code (empty if none)", a.out)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		token, err := a.client.Login(ctx, args[0], string(pw), code)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, token)

	case "session":
		if len(args) != 1 {
			return ErrUsage
		}
		info, err := a.client.Session(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)

	case "logout":
		if len(args) != 1 {
			return ErrUsage
		}
		if err := a.client.Logout(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "logged out")
	}
	return nil
}
