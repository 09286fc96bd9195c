// ABOUTME: Serving the router on a tailnet through an embedded tsnet node
// ABOUTME: Plain HTTP on the router's own port, HTTPS with Tailscale certs, or public Funnel

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/model-router/internal/config"
)

// tailnetNode is the part of a tsnet.Server the gateway serves through.
type tailnetNode interface {
	Up(ctx context.Context) (*ipnstate.Status, error)
	Listen(network, addr string) (net.Listener, error)
	ListenFunnel(network, addr string) (net.Listener, error)
	// CertFunc returns a GetCertificate callback backed by Tailscale certs.
	CertFunc() (func(*tls.ClientHelloInfo) (*tls.Certificate, error), error)
	Close() error
}

// tsnetNode adapts *tsnet.Server to tailnetNode.
type tsnetNode struct {
	srv *tsnet.Server
}

func newTSNetNode(srv *tsnet.Server) tailnetNode {
	return tsnetNode{srv: srv}
}

func (n tsnetNode) Up(ctx context.Context) (*ipnstate.Status, error) { return n.srv.Up(ctx) }

func (n tsnetNode) Listen(network, addr string) (net.Listener, error) {
	return n.srv.Listen(network, addr)
}

func (n tsnetNode) ListenFunnel(network, addr string) (net.Listener, error) {
	return n.srv.ListenFunnel(network, addr)
}

func (n tsnetNode) CertFunc() (func(*tls.ClientHelloInfo) (*tls.Certificate, error), error) {
	lc, err := n.srv.LocalClient()
	if err != nil {
		return nil, err
	}
	return lc.GetCertificate, nil
}

func (n tsnetNode) Close() error { return n.srv.Close() }

type tailnetMode int

const (
	tailnetPlain tailnetMode = iota
	tailnetTLS
	tailnetFunnel
)

func (m tailnetMode) String() string {
	switch m {
	case tailnetTLS:
		return "https"
	case tailnetFunnel:
		return "funnel"
	default:
		return "http"
	}
}

// tailnetListenSpec picks how and where to listen on the tailnet. Plain HTTP
// keeps the port of server.http_addr so clients use the same port on the
// tailnet as on the host; HTTPS and Funnel need :443.
func tailnetListenSpec(cfg *config.Config) (tailnetMode, string) {
	switch {
	case cfg.Tailscale.Funnel:
		return tailnetFunnel, ":443"
	case cfg.Tailscale.HTTPS:
		return tailnetTLS, ":443"
	}
	if _, port, err := net.SplitHostPort(cfg.Server.HTTPAddr); err == nil && port != "" {
		return tailnetPlain, ":" + port
	}
	return tailnetPlain, ":80"
}

// tailnetURL is the address clients on the tailnet reach the router at, or
// "" when the node has no DNS name yet.
func tailnetURL(mode tailnetMode, dnsName, addr string) string {
	host := strings.TrimSuffix(dnsName, ".")
	if host == "" {
		return ""
	}
	scheme, defaultPort := "http", "80"
	if mode != tailnetPlain {
		scheme, defaultPort = "https", "443"
	}
	if _, port, err := net.SplitHostPort(addr); err == nil && port != "" && port != defaultPort {
		host = net.JoinHostPort(host, port)
	}
	return (&url.URL{Scheme: scheme, Host: host}).String()
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "model-router", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and returns the router's listener
// on it. The node is closed on any failure; on success Shutdown closes it.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	node := g.newTailnetNode(&tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
		UserLogf: func(format string, args ...any) {
			g.logger.Debug(fmt.Sprintf(format, args...), "source", "tsnet")
		},
	})

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := node.Up(ctx)
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	mode, addr := tailnetListenSpec(g.config)
	ln, err := listenTailnet(node, mode, addr)
	if err != nil {
		_ = node.Close()
		return nil, err
	}
	g.tailnet = node

	var tsIP, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsIP = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready",
		"hostname", tsCfg.Hostname,
		"tailscale_ip", tsIP,
		"mode", mode.String(),
		"url", tailnetURL(mode, dnsName, addr))
	return ln, nil
}

// listenTailnet opens the node's listener for mode. It never closes the node.
func listenTailnet(node tailnetNode, mode tailnetMode, addr string) (net.Listener, error) {
	switch mode {
	case tailnetFunnel:
		ln, err := node.ListenFunnel("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel %s: %w", addr, err)
		}
		return ln, nil
	case tailnetTLS:
		ln, err := node.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTPS %s: %w", addr, err)
		}
		getCert, err := node.CertFunc()
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("getting tailscale certificates: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: getCert,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := node.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP %s: %w", addr, err)
		}
		return ln, nil
	}
}
