package discovery

import (
	"context"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"golang.org/x/net/ipv4"

	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/utils"
)

// ErrNoResponse is returned by Find when no responder answered any query.
var ErrNoResponse = errors.New("no discovery response received")

// Options configures a discovery lookup.
type Options struct {
	// GroupAddress is where queries are sent. It defaults to DefaultGroupAddress.
	GroupAddress string
	// Attempts is how many queries are sent. It defaults to DefaultAttempts.
	Attempts int
	// Window is how long to wait for a response to each query. It defaults to
	// utils.GetDiscoveryWindow.
	Window time.Duration
	// Clock measures the windows. It defaults to the wall clock.
	Clock clock.Clock
}

func (opts Options) withDefaults(logger logging.Logger) Options {
	if opts.GroupAddress == "" {
		opts.GroupAddress = DefaultGroupAddress
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Window <= 0 {
		opts.Window = utils.GetDiscoveryWindow(logger)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return opts
}

// Find queries the discovery group and returns the address carried by the first valid response.
// Each attempt sends a fresh query and waits up to the window for an answer to any query sent so
// far, so a late answer to an earlier attempt still counts. Responses to other queries are
// ignored.
func Find(ctx context.Context, opts Options, logger logging.Logger) (string, error) {
	opts = opts.withDefaults(logger)
	group, err := net.ResolveUDPAddr("udp4", opts.GroupAddress)
	if err != nil {
		return "", errors.Wrapf(err, "invalid discovery group %q", opts.GroupAddress)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return "", errors.Wrap(err, "failed to open discovery socket")
	}
	if group.IP.IsMulticast() {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetMulticastLoopback(true); err != nil {
			logger.Debugw("cannot enable multicast loopback", "error", err)
		}
		if err := pc.SetMulticastTTL(1); err != nil {
			logger.Debugw("cannot set multicast ttl", "error", err)
		}
	}

	responses := make(chan Message, 8)
	readerDone := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		defer close(readerDone)
		readResponses(conn, responses, logger)
	})
	defer func() {
		goutils.UncheckedError(conn.Close())
		<-readerDone
	}()

	sent := make(map[string]struct{}, opts.Attempts)
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		query := NewQuery()
		sent[query.ID] = struct{}{}
		data, err := query.Marshal()
		if err != nil {
			return "", err
		}
		if _, err := conn.WriteToUDP(data, group); err != nil {
			logger.Debugw("failed to send discovery query", "attempt", attempt, "error", err)
		} else {
			logger.Debugw("sent discovery query", "attempt", attempt, "group", opts.GroupAddress, "id", query.ID)
		}

		address, err := awaitResponse(ctx, opts.Clock, opts.Window, sent, responses)
		if err == nil {
			logger.Infow("discovered provider", "address", address, "attempt", attempt)
			return address, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", ErrNoResponse
}

// awaitResponse waits up to window for a response to any of the sent queries.
func awaitResponse(
	ctx context.Context,
	clk clock.Clock,
	window time.Duration,
	sent map[string]struct{},
	responses <-chan Message,
) (string, error) {
	timer := clk.Timer(window)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			return "", ErrNoResponse
		case resp := <-responses:
			if _, ok := sent[resp.ID]; ok {
				return resp.Address, nil
			}
		}
	}
}

// readResponses forwards valid responses read from conn until it is closed. Responses that
// arrive while nobody is waiting are dropped.
func readResponses(conn *net.UDPConn, responses chan<- Message, logger logging.Logger) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debugw("error reading discovery response", "error", err)
			continue
		}
		msg, err := ParseMessage(buf[:n])
		if err != nil || msg.Type != TypeResponse {
			logger.Debugw("ignoring discovery datagram", "from", src.String(), "error", err)
			continue
		}
		select {
		case responses <- msg:
		default:
		}
	}
}

// Resolve returns the provider address found by discovery, or fallback if discovery finds
// nothing. It fails with a DiscoveryTimeout error when neither yields an address.
func Resolve(ctx context.Context, opts Options, fallback string, logger logging.Logger) (string, error) {
	address, err := Find(ctx, opts, logger)
	if err == nil {
		return address, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if fallback != "" {
		logger.Infow("discovery found no provider, using fallback address", "fallback", fallback, "error", err)
		return fallback, nil
	}
	return "", utils.NewDiscoveryTimeoutError(err)
}
