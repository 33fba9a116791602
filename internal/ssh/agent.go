package ssh

import (
	"errors"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const agentChannelType = "auth-agent@openssh.com"

// forwardAgent asks the server to forward agent requests on sess and serves
// them from the local agent at SSH_AUTH_SOCK.
func (t *Transport) forwardAgent(sess *ssh.Session) error {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return errors.New("agent forwarding requested but SSH_AUTH_SOCK is not set")
	}
	// HandleChannelOpen returns nil once a handler is registered on the
	// client, which happens on the first forwarded command.
	if chans := t.client.HandleChannelOpen(agentChannelType); chans != nil {
		go serveAgent(chans, sock)
	}
	return agent.RequestAgentForwarding(sess)
}

func serveAgent(chans <-chan ssh.NewChannel, sock string) {
	for nc := range chans {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			nc.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}
		channel, reqs, err := nc.Accept()
		if err != nil {
			conn.Close()
			continue
		}
		go ssh.DiscardRequests(reqs)
		go func() {
			defer conn.Close()
			defer channel.Close()
			agent.ServeAgent(agent.NewClient(conn), channel)
		}()
	}
}
