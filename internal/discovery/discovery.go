package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAlreadyStarted = errors.New("discovery service already started")
	ErrNotStarted     = errors.New("discovery service not started")
	ErrNoLocalAddr    = errors.New("no usable local address")
)

const maxDatagramSize = 1024

// staleFactor - a peer not re-announced within this many intervals is
// considered gone.
const staleFactor = 3

// Peer describes one discovered instance on the local network.
type Peer struct {
	InstanceID string
	Name       string
	Addr       string
	LastSeen   time.Time
}

// Service is the surface the embedding layer consumes. The broker core
// never touches it.
type Service interface {
	Start(ctx context.Context, identity string) error
	Stop() error
	Peers() []Peer
	LocalAddr() (net.IP, error)
}

// Multicast announces this instance's presence on a UDP multicast group and
// collects the announcements of other instances.
type Multicast struct {
	logger     *slog.Logger
	group      string
	interval   time.Duration
	instanceID string

	mu       sync.Mutex
	peers    map[string]Peer
	listener *net.UDPConn
	sender   *net.UDPConn
	cancel   context.CancelFunc
}

func NewMulticast(logger *slog.Logger, group string, interval time.Duration) *Multicast {
	return &Multicast{
		logger:     logger.With("component", "discovery"),
		group:      group,
		interval:   interval,
		instanceID: uuid.NewString(),
		peers:      make(map[string]Peer),
	}
}

// Start - joins the multicast group and begins announcing the given
// identity and listening for other instances. Returns ErrAlreadyStarted on
// a second call.
func (that *Multicast) Start(ctx context.Context, identity string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.cancel != nil {
		return ErrAlreadyStarted
	}

	groupAddr, err := net.ResolveUDPAddr("udp4", that.group)
	if err != nil {
		return fmt.Errorf("failed to resolve multicast group: %w", err)
	}

	listener, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		return fmt.Errorf("failed to join multicast group: %w", err)
	}

	if err = listener.SetReadBuffer(maxDatagramSize); err != nil {
		that.logger.Debug("failed to set read buffer", "error", err)
	}

	sender, err := net.DialUDP("udp4", nil, groupAddr)
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to open announce socket: %w", err)
	}

	record := announcement{
		InstanceID: that.instanceID,
		Name:       identity,
	}
	if ip, addrErr := that.LocalAddr(); addrErr == nil {
		record.Addr = ip.String()
	}

	ctx, cancel := context.WithCancel(ctx)

	that.listener = listener
	that.sender = sender
	that.cancel = cancel

	go that.announceLoop(ctx, sender, record)
	go that.listenLoop(ctx, listener)

	that.logger.Info("discovery service started", "group", that.group, "identity", identity)

	return nil
}

// Stop - terminates both loops and closes the sockets. Returns
// ErrNotStarted if the service is not running.
func (that *Multicast) Stop() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.cancel == nil {
		return ErrNotStarted
	}

	that.cancel()
	that.cancel = nil

	err := errors.Join(that.listener.Close(), that.sender.Close())
	that.listener = nil
	that.sender = nil

	if err != nil {
		return fmt.Errorf("failed to close discovery sockets: %w", err)
	}

	return nil
}

// Peers - returns the currently known peers, pruning any that have not
// re-announced within the staleness window.
func (that *Multicast) Peers() []Peer {
	that.mu.Lock()
	defer that.mu.Unlock()

	cutoff := time.Now().Add(-staleFactor * that.interval)

	peers := make([]Peer, 0, len(that.peers))
	for id, peer := range that.peers {
		if peer.LastSeen.Before(cutoff) {
			delete(that.peers, id)
			continue
		}

		peers = append(peers, peer)
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].InstanceID < peers[j].InstanceID
	})

	return peers
}

// LocalAddr - reports the preferred outbound interface address.
func (that *Multicast) LocalAddr() (net.IP, error) {
	if conn, err := net.Dial("udp4", "8.8.8.8:80"); err == nil {
		defer conn.Close()

		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			return addr.IP, nil
		}
	}

	// No route out; fall back to walking the interfaces.
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.To4() != nil {
				return ipNet.IP, nil
			}
		}
	}

	return nil, ErrNoLocalAddr
}
