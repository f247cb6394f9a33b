package target

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinationAddressDefaultsPort(t *testing.T) {
	assert.Equal(t, "10.0.0.5:22", Destination{Host: "10.0.0.5"}.Address())
	assert.Equal(t, "10.0.0.5:2222", Destination{Host: " 10.0.0.5 ", Port: 2222}.Address())
	assert.Equal(t, "[fe80::1]:22", Destination{Host: "fe80::1"}.Address())
}

func TestDestinationProblems(t *testing.T) {
	assert.Empty(t, Destination{Local: true}.Problems())
	assert.Len(t, Destination{}.Problems(), 2)
	assert.Len(t, Destination{Host: "deck", User: "deck", Port: 70000}.Problems(), 1)
	assert.Empty(t, Destination{Host: "deck", User: "deck"}.Problems())
}

func TestProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)

	reachable := Destination{Host: "127.0.0.1", Port: addr.Port, User: "deck"}
	require.NoError(t, Probe(context.Background(), reachable, time.Second))

	require.NoError(t, ln.Close())
	assert.Error(t, Probe(context.Background(), reachable, 500*time.Millisecond))

	assert.NoError(t, Probe(context.Background(), Destination{Local: true}, time.Second))
}

func TestQuoteRemotePath(t *testing.T) {
	assert.Equal(t, `"$HOME/.config/SLSsteam/config.yaml"`, quoteRemotePath("~/.config/SLSsteam/config.yaml"))
	assert.Equal(t, `"$HOME"`, quoteRemotePath("~"))
	assert.Equal(t, `"/home/deck/Game \"Deluxe\" \$5"`, quoteRemotePath(`/home/deck/Game "Deluxe" $5`))
}
