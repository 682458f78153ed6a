package forwarder

import (
	"context"
	"fmt"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/config"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net"
	"sync"
)

const udpBufferSize = 64

type packet struct {
	typ  uint8
	body interface{}
}

// UDPForwarder sends readings and state changes as little-endian packets.
type UDPForwarder struct {
	Config config.UDPConfig

	conn    net.Conn
	fwdChan chan packet
	once    sync.Once
}

func NewUDPForwarder(cfg config.UDPConfig) (*UDPForwarder, error) {
	udp := &UDPForwarder{
		Config:  cfg,
		fwdChan: make(chan packet, udpBufferSize),
	}
	if err := udp.connect(); err != nil {
		return nil, err
	}
	return udp, nil
}

func (udp *UDPForwarder) Close() error {
	var err error
	udp.once.Do(func() {
		err = udp.conn.Close()
	})
	return err
}

func (udp *UDPForwarder) ForwardReading(r comms.MeasurementReading) {
	udp.enqueue(packet{typ: TypeReading, body: newReadingPacket(r)})
}

func (udp *UDPForwarder) ForwardState(s statemachine.State) {
	udp.enqueue(packet{typ: TypeState, body: newStatePacket(s)})
}

func (udp *UDPForwarder) enqueue(p packet) {
	select {
	case udp.fwdChan <- p:
	default:
		// if channel is full, skip
	}
}

func (udp *UDPForwarder) Start(ctx context.Context) error {
	for {
		select {
		case p := <-udp.fwdChan:
			if err := udp.forward(p); err != nil {
				log.Error("unable to forward to server ", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (udp *UDPForwarder) forward(p packet) error {
	buf, err := encodePacket(p.typ, p.body)
	if err != nil {
		return err
	}
	_, err = udp.conn.Write(buf)
	return err
}

func (udp *UDPForwarder) connect() error {
	writeBufSize := maxPacketSize * udpBufferSize

	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d",
		udp.Config.Server,
		udp.Config.Port))
	if err != nil {
		return err
	}
	udpConn := conn.(*net.UDPConn)
	if err = udpConn.SetWriteBuffer(writeBufSize); err != nil {
		return errors.Wrapf(err, "unable to set OS write buffer to %v", writeBufSize)
	}

	udp.conn = conn
	return nil
}
