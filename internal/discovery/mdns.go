// ABOUTME: mDNS service discovery for the pcmprobe metric feed
// ABOUTME: Advertises a running feed and browses for feeds on the local network
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the mDNS service a metric feed advertises
	ServiceType = "_pcmprobe._tcp"

	// FeedPath is the websocket path advertised in the TXT record
	FeedPath = "/meter"
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	// Info is appended to the TXT record after the path
	Info []string
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	feeds   chan *FeedInfo
	logger  *slog.Logger
	timeout time.Duration
}

// FeedInfo describes a discovered feed
type FeedInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// URL returns the websocket URL of the feed
func (f *FeedInfo) URL() string {
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(f.Host, fmt.Sprint(f.Port)), f.Path)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		feeds:   make(chan *FeedInfo, 10),
		logger:  slog.Default().With("component", "discovery"),
		timeout: 3 * time.Second,
	}
}

// Advertise advertises the feed via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.txtRecord(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info("advertising mDNS service", "name", m.config.ServiceName, "port", m.config.Port, "type", ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

func (m *Manager) txtRecord() []string {
	return append([]string{"path=" + FeedPath}, m.config.Info...)
}

// Browse searches for feeds until Stop
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop continuously browses for feeds
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				feed := feedFromEntry(entry)
				if feed == nil {
					continue
				}

				m.logger.Info("discovered feed", "name", feed.Name, "host", feed.Host, "port", feed.Port)

				select {
				case m.feeds <- feed:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = m.timeout
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			m.logger.Warn("mdns query failed", "err", err)
		}
		close(entries)
	}
}

// feedFromEntry converts an mDNS answer, returning nil without an IPv4 address
func feedFromEntry(entry *mdns.ServiceEntry) *FeedInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	feed := &FeedInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: FeedPath,
	}
	for _, field := range entry.InfoFields {
		if len(field) > 5 && field[:5] == "path=" {
			feed.Path = field[5:]
		}
	}
	return feed
}

// Feeds returns the channel of discovered feeds
func (m *Manager) Feeds() <-chan *FeedInfo {
	return m.feeds
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
