// Command keygen writes an Ed25519 key pair in the PEM layout the gateway loads
// and, optionally, a credential token signed with it for local testing.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/auth"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/keys"
)

type options struct {
	// Dir prefixes relative output paths.
	Dir        string
	PrivateOut string
	PublicOut  string
	TokenOut   string
	Issuer     string
	UID        int
	TTL        time.Duration
	Force      bool
}

type result struct {
	KeyPair     *keys.KeyPair
	PrivatePath string
	PublicPath  string
	TokenPath   string
}

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func main() {
	var opts options
	flag.StringVar(&opts.Dir, "dir", ".", "directory for relative output paths")
	flag.StringVar(&opts.PrivateOut, "private-out", "private_key.pem", "PKCS#8 private key output path")
	flag.StringVar(&opts.PublicOut, "public-out", "public_key.pem", "PKIX public key output path")
	flag.StringVar(&opts.TokenOut, "token-out", "", "optional credential token output path")
	flag.StringVar(&opts.Issuer, "issuer", "validator-gateway", "token issuer (must match GATEWAY_SIGNER_ID)")
	flag.IntVar(&opts.UID, "uid", 0, "token uid claim")
	flag.DurationVar(&opts.TTL, "ttl", 10*time.Minute, "token lifetime")
	flag.BoolVar(&opts.Force, "force", false, "overwrite existing key files")
	flag.Parse()

	res, err := generate(opts)
	must(err)
	fmt.Printf("wrote key pair -> %s, %s\n", res.PrivatePath, res.PublicPath)
	fmt.Printf("authorization: %s\n", res.KeyPair.PublicKeyRawB64())
	if res.TokenPath != "" {
		fmt.Printf("wrote token -> %s\n", res.TokenPath)
	}
}

// generate creates a key pair and writes it, plus the optional token, under
// opts.Dir. Existing key files are left alone unless opts.Force is set.
func generate(opts options) (*result, error) {
	res := &result{
		PrivatePath: resolve(opts.Dir, opts.PrivateOut),
		PublicPath:  resolve(opts.Dir, opts.PublicOut),
	}
	if !opts.Force {
		for _, p := range []string{res.PrivatePath, res.PublicPath} {
			if _, err := os.Stat(p); err == nil {
				return nil, fmt.Errorf("%s exists (use --force to overwrite)", p)
			}
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	kp, err := keys.New(priv, pub)
	if err != nil {
		return nil, err
	}
	privPEM, pubPEM, err := kp.MarshalPEM()
	if err != nil {
		return nil, err
	}
	if err := writeFile(res.PrivatePath, privPEM, 0o600); err != nil {
		return nil, err
	}
	if err := writeFile(res.PublicPath, pubPEM, 0o644); err != nil {
		return nil, err
	}
	res.KeyPair = kp

	if opts.TokenOut == "" {
		return res, nil
	}
	tok, err := auth.NewIssuer(kp, opts.Issuer, opts.TTL).Issue(opts.UID, "keygen")
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	res.TokenPath = resolve(opts.Dir, opts.TokenOut)
	if err := writeFile(res.TokenPath, []byte(tok+"\n"), 0o600); err != nil {
		return nil, err
	}
	return res, nil
}

func resolve(dir, path string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}
