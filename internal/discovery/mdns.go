package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/immxrtalbeast/trailboard/lib/logger/sl"
)

const ServiceType = "_trailboard._tcp"

// Advertiser announces the relay on the local network until Shutdown.
type Advertiser struct {
	server *mdns.Server
	log    *slog.Logger
}

// Advertise registers the relay under instance. An empty instance uses the
// host name.
func Advertise(log *slog.Logger, instance string, port int) (*Advertiser, error) {
	const op = "discovery.advertise"

	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("%s: hostname: %w", op, err)
		}
		instance = host
	}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, nil, []string{"trailboard"})
	if err != nil {
		return nil, fmt.Errorf("%s: create service: %w", op, err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("%s: start server: %w", op, err)
	}

	log.Info("advertising relay",
		slog.String("op", op),
		slog.String("instance", instance),
		slog.Int("port", port),
	)
	return &Advertiser{server: server, log: log}, nil
}

func (a *Advertiser) Shutdown() error {
	if a == nil || a.server == nil {
		return nil
	}
	if err := a.server.Shutdown(); err != nil {
		a.log.Warn("failed to stop advertising", sl.Err(err))
		return err
	}
	a.log.Info("advertising stopped")
	return nil
}

// Browse collects relays answering within timeout and returns their
// host:port addresses, sorted and without duplicates. It returns early
// with ctx's error when ctx is done first.
func Browse(ctx context.Context, timeout time.Duration) ([]string, error) {
	const op = "discovery.browse"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	result := make(chan error, 1)
	go func() {
		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = timeout
		params.DisableIPv6 = true
		result <- mdns.Query(params)
		close(entries)
	}()

	found := make([]string, 0)
	for {
		select {
		case <-ctx.Done():
			// let the query run out without blocking on entries
			go func() {
				for range entries {
				}
			}()
			return nil, ctx.Err()
		case e, ok := <-entries:
			if !ok {
				if err := <-result; err != nil {
					return nil, fmt.Errorf("%s: %w", op, err)
				}
				slices.Sort(found)
				return slices.Compact(found), nil
			}
			if addr, ok := entryAddr(e); ok {
				found = append(found, addr)
			}
		}
	}
}

func entryAddr(e *mdns.ServiceEntry) (string, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return "", false
	}
	return fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port), true
}
