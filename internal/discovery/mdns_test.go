package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryAddr(t *testing.T) {
	t.Parallel()

	addr, ok := entryAddr(&mdns.ServiceEntry{AddrV4: net.IPv4(192, 168, 1, 20), Port: 8080})
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.20:8080", addr)

	_, ok = entryAddr(&mdns.ServiceEntry{AddrV4: net.IPv4(192, 168, 1, 20)})
	assert.False(t, ok)

	_, ok = entryAddr(&mdns.ServiceEntry{Port: 8080})
	assert.False(t, ok)

	_, ok = entryAddr(nil)
	assert.False(t, ok)
}

func TestBrowseCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	found, err := Browse(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, found)
}

func TestBrowseStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := Browse(ctx, time.Minute)

	// without multicast the query itself may fail first
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAdvertiserShutdownNil(t *testing.T) {
	t.Parallel()

	var a *Advertiser
	assert.NoError(t, a.Shutdown())
}
