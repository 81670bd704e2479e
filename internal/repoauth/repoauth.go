package repoauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
)

const (
	MethodPublic = "public"
	MethodBasic  = "basic"
	MethodSSHKey = "ssh_key"
)

// Options carries the credentials a user typed for a pipeline repository.
type Options struct {
	Method   string
	Username string
	Password string
	Key      string
}

// NormalizeMethod canonicalizes repo auth methods.
func NormalizeMethod(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "public":
		return MethodPublic
	case "basic", "password", "token":
		return MethodBasic
	case "ssh", "ssh_key", "ssh-key", "deploy_key", "deploy-key":
		return MethodSSHKey
	default:
		return ""
	}
}

// Validate checks the repo URL against the selected auth method.
func Validate(repoURL string, opts Options) error {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return fmt.Errorf("repo URL is required")
	}
	if _, err := hostFromRepoURL(repoURL); err != nil {
		return err
	}

	switch NormalizeMethod(opts.Method) {
	case MethodPublic:
		return nil
	case MethodBasic:
		if isSSHRepoURL(repoURL) {
			return fmt.Errorf("basic auth requires an HTTP(S) repo URL")
		}
		if strings.TrimSpace(opts.Username) == "" {
			return fmt.Errorf("username is required for basic auth")
		}
		return nil
	case MethodSSHKey:
		if !isSSHRepoURL(repoURL) {
			return fmt.Errorf("ssh key auth requires an SSH repo URL")
		}
		key := NormalizeKey(opts.Key)
		if key == "" {
			return fmt.Errorf("private key is required for ssh auth")
		}
		if _, err := ssh.ParseRawPrivateKey([]byte(key)); err != nil {
			var passErr *ssh.PassphraseMissingError
			if errors.As(err, &passErr) {
				return fmt.Errorf("passphrase-protected keys are not supported")
			}
			return fmt.Errorf("invalid private key")
		}
		return nil
	default:
		return fmt.Errorf("unsupported repo auth method")
	}
}

// AuthMethod builds the go-git transport auth for the options. Public repos get nil.
func AuthMethod(repoURL string, opts Options) (transport.AuthMethod, error) {
	if err := Validate(repoURL, opts); err != nil {
		return nil, err
	}

	switch NormalizeMethod(opts.Method) {
	case MethodBasic:
		return &githttp.BasicAuth{Username: opts.Username, Password: opts.Password}, nil
	case MethodSSHKey:
		user := "git"
		if u, err := userFromSSHURL(repoURL); err == nil && u != "" {
			user = u
		}
		keys, err := gitssh.NewPublicKeys(user, []byte(NormalizeKey(opts.Key)), "")
		if err != nil {
			return nil, fmt.Errorf("failed loading private key: %w", err)
		}
		return keys, nil
	default:
		return nil, nil
	}
}

// NormalizeKey normalizes copy-pasted private keys from prompts and forms.
func NormalizeKey(value string) string {
	normalized := strings.TrimSpace(value)
	normalized = strings.ReplaceAll(normalized, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	// Some clients send literal "\n" sequences.
	if strings.Contains(normalized, `\n`) && !strings.Contains(normalized, "\n") {
		normalized = strings.ReplaceAll(normalized, `\n`, "\n")
	}
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return ""
	}
	return normalized + "\n"
}

// ShortName returns "org/repo" for a repository URL.
func ShortName(repoURL string) string {
	u := strings.TrimSpace(repoURL)
	u = strings.TrimSuffix(u, ".git")

	// SSH format: git@github.com:org/repo
	if strings.HasPrefix(u, "git@") {
		if idx := strings.Index(u, ":"); idx > 0 && idx < len(u)-1 {
			return u[idx+1:]
		}
	}

	parts := strings.Split(u, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}

	return repoURL
}

func isSSHRepoURL(repoURL string) bool {
	trimmed := strings.TrimSpace(repoURL)
	if strings.HasPrefix(strings.ToLower(trimmed), "ssh://") {
		return true
	}
	return !strings.Contains(trimmed, "://") && strings.Contains(trimmed, "@") && strings.Contains(trimmed, ":")
}

func userFromSSHURL(repoURL string) (string, error) {
	trimmed := strings.TrimSpace(repoURL)
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", err
		}
		return parsed.User.Username(), nil
	}
	if idx := strings.Index(trimmed, "@"); idx > 0 {
		return trimmed[:idx], nil
	}
	return "", nil
}

func hostFromRepoURL(repoURL string) (string, error) {
	trimmed := strings.TrimSpace(repoURL)
	if trimmed == "" {
		return "", fmt.Errorf("repo URL is required")
	}

	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", fmt.Errorf("invalid repo URL: %w", err)
		}
		host := parsed.Hostname()
		if host == "" {
			return "", fmt.Errorf("invalid repo URL host")
		}
		return strings.ToLower(host), nil
	}

	parts := strings.SplitN(trimmed, "@", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid repo URL")
	}

	hostAndPath := parts[1]
	colonIdx := strings.Index(hostAndPath, ":")
	if colonIdx <= 0 {
		return "", fmt.Errorf("invalid SSH repo URL")
	}

	return strings.ToLower(hostAndPath[:colonIdx]), nil
}
