package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"gsbak/internal/config"
	"gsbak/internal/gs"
)

// SSHVault stores archives on a remote host over SSH. Each operation
// opens its own session on a shared connection; writes go to a temp
// name and are renamed into place so a dropped connection never leaves
// a truncated archive behind.
type SSHVault struct {
	name      string
	remoteDir string
	client    *ssh.Client
}

// NewSSHVault dials the remote host from the vault config. With
// ssh_known_hosts set the host key is verified against that file;
// without it the host key is accepted blindly.
func NewSSHVault(cfg config.VaultConfig) (*SSHVault, error) {
	if cfg.SSHHost == "" || cfg.SSHUser == "" || cfg.SSHRemoteDir == "" {
		return nil, fmt.Errorf("ssh vault requires ssh_host, ssh_user and ssh_remote_dir to be set")
	}

	keyData, err := os.ReadFile(cfg.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing ssh key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.SSHKnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(cfg.SSHKnownHosts)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
	}

	port := cfg.SSHPort
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", cfg.SSHHost, port)

	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	return &SSHVault{
		name:      cfg.Name,
		remoteDir: cfg.SSHRemoteDir,
		client:    client,
	}, nil
}

// Close closes the underlying SSH connection.
func (v *SSHVault) Close() error {
	return v.client.Close()
}

// remotePath maps an object name to a path under the remote directory,
// rejecting names that would escape it.
func (v *SSHVault) remotePath(name string) (string, error) {
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid object name: %q", name)
	}
	return path.Join(v.remoteDir, name), nil
}

// run opens a session, executes cmd with the given stdin/stdout, and
// honors ctx cancellation by tearing the session down.
func (v *SSHVault) run(ctx context.Context, cmd string, stdin io.Reader, stdout io.Writer) error {
	session, err := v.client.NewSession()
	if err != nil {
		return fmt.Errorf("opening ssh session: %w", err)
	}
	defer session.Close()

	session.Stdin = stdin
	session.Stdout = stdout
	var stderr bytes.Buffer
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return ctx.Err()
	case err := <-done:
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return fmt.Errorf("remote command failed: %s", msg)
			}
			return fmt.Errorf("remote command failed: %w", err)
		}
		return nil
	}
}

// Put stores an object, replacing any previous object with that name.
func (v *SSHVault) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	dest, err := v.remotePath(name)
	if err != nil {
		return err
	}
	tmp := dest + ".tmp"

	cmd := fmt.Sprintf("mkdir -p %q && cat > %q && mv %q %q", v.remoteDir, tmp, tmp, dest)
	if err := v.run(ctx, cmd, io.LimitReader(r, size), nil); err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	return nil
}

// Get retrieves an object by name and writes it to w.
func (v *SSHVault) Get(ctx context.Context, name string, w io.Writer) error {
	src, err := v.remotePath(name)
	if err != nil {
		return err
	}
	if err := v.run(ctx, fmt.Sprintf("cat %q", src), nil, w); err != nil {
		return fmt.Errorf("downloading %s: %w", name, err)
	}
	return nil
}

// List returns the names of all stored objects.
func (v *SSHVault) List(ctx context.Context) ([]string, error) {
	var out bytes.Buffer
	// ls exits non-zero on a missing directory; an empty vault that has
	// never seen a Put is still a valid empty vault.
	cmd := fmt.Sprintf("[ -d %q ] && ls -1 %q || true", v.remoteDir, v.remoteDir)
	if err := v.run(ctx, cmd, nil, &out); err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}

	var names []string
	for _, line := range strings.Split(out.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ".tmp") {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (v *SSHVault) Delete(ctx context.Context, name string) error {
	dest, err := v.remotePath(name)
	if err != nil {
		return err
	}
	if err := v.run(ctx, fmt.Sprintf("rm -f %q", dest), nil, nil); err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

// ValidateSetup verifies the remote directory can be created and written.
func (v *SSHVault) ValidateSetup(ctx context.Context) error {
	cmd := fmt.Sprintf("mkdir -p %q && [ -w %q ]", v.remoteDir, v.remoteDir)
	if err := v.run(ctx, cmd, nil, nil); err != nil {
		return fmt.Errorf("remote directory %s not writable: %w", v.remoteDir, err)
	}
	return nil
}

// Compile-time check that SSHVault implements gs.Vault interface
var _ gs.Vault = (*SSHVault)(nil)
