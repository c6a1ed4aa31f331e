package discovery

import (
	"context"
	"net"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"golang.org/x/net/ipv4"

	"go.viam.com/sensorhub/logging"
	"go.viam.com/sensorhub/utils"
)

// Responder answers discovery queries with the address of a provider.
type Responder struct {
	advertised string
	logger     logging.Logger
	conn       *net.UDPConn
	workers    utils.StoppableWorkers
}

// NewResponder listens for queries sent to groupAddress and answers them with advertised. If the
// host of advertised is unspecified, each answer carries the local address used to reach the
// querier instead. Multicast groups are joined on every multicast capable interface.
func NewResponder(groupAddress, advertised string, logger logging.Logger) (*Responder, error) {
	if _, _, err := net.SplitHostPort(advertised); err != nil {
		return nil, errors.Wrapf(err, "invalid advertised address %q", advertised)
	}
	group, err := net.ResolveUDPAddr("udp4", groupAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid discovery group %q", groupAddress)
	}

	var conn *net.UDPConn
	if group.IP.IsMulticast() {
		conn, err = net.ListenUDP("udp4", &net.UDPAddr{Port: group.Port})
		if err != nil {
			return nil, errors.Wrap(err, "failed to listen for discovery queries")
		}
		if err := joinGroup(conn, group, logger); err != nil {
			goutils.UncheckedError(conn.Close())
			return nil, err
		}
	} else {
		conn, err = net.ListenUDP("udp4", group)
		if err != nil {
			return nil, errors.Wrap(err, "failed to listen for discovery queries")
		}
	}

	r := &Responder{advertised: advertised, logger: logger, conn: conn}
	r.workers = utils.NewStoppableWorkers(r.serve)
	logger.Infow("answering discovery queries", "group", groupAddress, "listening", conn.LocalAddr().String(), "advertised", advertised)
	return r, nil
}

// joinGroup joins group on every interface that supports multicast.
func joinGroup(conn *net.UDPConn, group *net.UDPAddr, logger logging.Logger) error {
	pc := ipv4.NewPacketConn(conn)
	ifaces, err := net.Interfaces()
	if err != nil {
		return errors.Wrap(err, "failed to list network interfaces")
	}
	joined := 0
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(&iface, &net.UDPAddr{IP: group.IP}); err != nil {
			logger.Debugw("failed to join discovery group", "interface", iface.Name, "error", err)
			continue
		}
		joined++
	}
	if joined == 0 {
		return errors.Errorf("could not join discovery group %s on any interface", group.IP)
	}
	return nil
}

// Addr returns the address the responder listens on.
func (r *Responder) Addr() net.Addr {
	return r.conn.LocalAddr()
}

func (r *Responder) serve(ctx context.Context) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Debugw("error reading discovery query", "error", err)
			continue
		}
		query, err := ParseMessage(buf[:n])
		if err != nil {
			r.logger.Debugw("ignoring discovery datagram", "from", src.String(), "error", err)
			continue
		}
		if query.Type != TypeQuery {
			continue
		}
		r.answer(query, src)
	}
}

func (r *Responder) answer(query Message, src *net.UDPAddr) {
	address, err := r.addressFor(src)
	if err != nil {
		r.logger.Warnw("cannot determine address to advertise", "to", src.String(), "error", err)
		return
	}
	data, err := query.Answer(address).Marshal()
	if err != nil {
		r.logger.Errorw("failed to encode discovery response", "error", err)
		return
	}
	if _, err := r.conn.WriteToUDP(data, src); err != nil {
		r.logger.Debugw("failed to send discovery response", "to", src.String(), "error", err)
		return
	}
	r.logger.Debugw("answered discovery query", "to", src.String(), "id", query.ID, "address", address)
}

// addressFor returns the address to advertise to a querier at src.
func (r *Responder) addressFor(src *net.UDPAddr) (string, error) {
	host, port, err := net.SplitHostPort(r.advertised)
	if err != nil {
		return "", err
	}
	if ip := net.ParseIP(host); host != "" && (ip == nil || !ip.IsUnspecified()) {
		return r.advertised, nil
	}
	local, err := OutboundIP(src.IP)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(local.String(), port), nil
}

// OutboundIP returns the local IP the host would use to reach remote. No packet is sent.
func OutboundIP(remote net.IP) (net.IP, error) {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: remote, Port: 9})
	if err != nil {
		return nil, errors.Wrapf(err, "no route to %s", remote)
	}
	defer goutils.UncheckedErrorFunc(conn.Close)
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, utils.NewUnexpectedTypeError[net.UDPAddr](conn.LocalAddr())
	}
	return local.IP, nil
}

// Close stops answering queries.
func (r *Responder) Close() error {
	err := r.conn.Close()
	r.workers.Stop()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
