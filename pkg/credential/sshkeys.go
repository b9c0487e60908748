package credential

import (
	"io"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// fromSSHAgent resolves an SSH-agent-backed Credential for host,
// connecting to SSH_AUTH_SOCK and taking the agent's first key as the
// signer. Only meaningful for hosts reached over git+ssh; callers that
// want an HTTP credential simply get ok=false.
//
// Adapted from depot's SSH-key discovery (DiscoverSSHKeys/
// listAgentKeys): that code enumerates every agent key with metadata
// for display to an operator, where this only needs the first usable
// signer to hand to the VCS driver's SSH transport.
func (b *Broker) fromSSHAgent(host string) (Credential, bool) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return Credential{}, false
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return Credential{}, false
	}
	defer conn.Close()

	client := agent.NewClient(conn)
	keys, err := client.List()
	if err != nil || len(keys) == 0 {
		return Credential{}, false
	}

	pub, err := ssh.ParsePublicKey(keys[0].Marshal())
	if err != nil {
		return Credential{}, false
	}
	return Credential{
		Kind:   KindSSHKey,
		Signer: &agentSigner{socket: sock, publicKey: pub},
	}, true
}

// fromSSHKeyFile scans SSHKeyDir (default ~/.ssh) for an unencrypted
// private key, mirroring depot's listFileKeys fallback when no agent
// is available. Encrypted keys are skipped — this package has no
// terminal-prompt path for a key passphrase, only for host credentials.
func (b *Broker) fromSSHKeyFile(host string) (Credential, bool) {
	dir := b.SSHKeyDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Credential{}, false
		}
		dir = filepath.Join(home, ".ssh")
	}

	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			continue // encrypted or malformed; not handled here
		}
		return Credential{Kind: KindSSHKey, Signer: signer}, true
	}
	return Credential{}, false
}

// agentSigner implements ssh.Signer by re-dialing the agent socket for
// every signature, avoiding any agent-connection lifecycle management.
type agentSigner struct {
	socket    string
	publicKey ssh.PublicKey
}

func (s *agentSigner) PublicKey() ssh.PublicKey {
	return s.publicKey
}

func (s *agentSigner) Sign(rand io.Reader, data []byte) (*ssh.Signature, error) {
	conn, err := net.Dial("unix", s.socket)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	client := agent.NewClient(conn)
	return client.Sign(s.publicKey, data)
}
