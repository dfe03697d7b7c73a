// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

// Package discovery finds MQTT brokers on the local network via mDNS
// (multicast DNS). It is used when no broker host is configured: brokers
// such as Mosquitto advertise themselves under the service type
// "_mqtt._tcp", and the first responder wins.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/logger"
)

const (
	serviceType = "_mqtt._tcp"
	domain      = "local."
)

// Broker is one discovered MQTT broker advertisement.
type Broker struct {
	Name     string
	Address  net.IP
	Port     int
	Hostname string
}

// Scanner discovers MQTT brokers on the local network.
type Scanner struct {
	brokers map[string]*Broker
	mu      sync.RWMutex
}

// NewScanner creates a broker scanner.
func NewScanner() *Scanner {
	return &Scanner{
		brokers: make(map[string]*Broker),
	}
}

// Discover performs one mDNS scan and returns the brokers seen within the
// timeout. The zeroconf resolver produces service entries on a buffered
// channel; a consumer goroutine parses them while the scan is running.
func (s *Scanner) Discover(ctx context.Context, timeout time.Duration) ([]*Broker, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 10)
	found := make([]*Broker, 0)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			broker := parseServiceEntry(entry)
			if broker == nil {
				continue
			}

			key := fmt.Sprintf("%s:%d", broker.Address, broker.Port)
			s.mu.Lock()
			s.brokers[key] = broker
			s.mu.Unlock()

			found = append(found, broker)

			logger.Info().
				Str("name", broker.Name).
				Str("address", broker.Address.String()).
				Int("port", broker.Port).
				Msg("Discovered MQTT broker")
		}
	}()

	discoverCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := resolver.Browse(discoverCtx, serviceType, domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse: %w", err)
	}

	<-discoverCtx.Done()
	wg.Wait()

	return found, nil
}

// First runs a scan and returns the first broker found.
func (s *Scanner) First(ctx context.Context, timeout time.Duration) (*Broker, error) {
	brokers, err := s.Discover(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no MQTT broker found on the local network")
	}
	return brokers[0], nil
}

// Brokers returns all brokers seen so far, across scans.
func (s *Scanner) Brokers() []*Broker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	brokers := make([]*Broker, 0, len(s.brokers))
	for _, b := range s.brokers {
		brokers = append(brokers, b)
	}
	return brokers
}

// parseServiceEntry converts a zeroconf service entry to a Broker.
// IPv4 is preferred, IPv6 is the fallback.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Broker {
	if entry == nil {
		return nil
	}
	if len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0 {
		return nil
	}

	var addr net.IP
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0]
	} else {
		addr = entry.AddrIPv6[0]
	}

	return &Broker{
		Name:     entry.Instance,
		Address:  addr,
		Port:     entry.Port,
		Hostname: entry.HostName,
	}
}
