package forwarder

import (
	"bytes"
	"context"
	"encoding/binary"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/config"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"testing"
	"time"
)

func TestUDPForwarder(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	udpAddr := pc.LocalAddr().(*net.UDPAddr)

	type datagram struct {
		data []byte
		len  int
	}
	dataChan := make(chan datagram, 2)
	go func() {
		for i := 0; i < 2; i++ {
			buffer := make([]byte, 1024)
			assert.NoError(t, pc.SetReadDeadline(time.Now().Add(time.Second*3)))
			n, _, err := pc.ReadFrom(buffer)
			if !assert.NoError(t, err) {
				return
			}
			dataChan <- datagram{data: buffer, len: n}
		}
	}()

	udp, err := NewUDPForwarder(config.UDPConfig{
		Server: "127.0.0.1",
		Port:   udpAddr.Port,
	})
	require.NoError(t, err)
	defer udp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = udp.Start(ctx)
	}()

	reading := comms.MeasurementReading{
		Reading:     comms.F32Data(9.81),
		Board:       comms.BoardNavigation,
		Measurement: 3,
	}
	udp.ForwardReading(reading)
	udp.ForwardState(statemachine.Levitating)

	recv := <-dataChan
	assert.Equal(t, 12, recv.len)
	hdr := Header{}
	pkt := ReadingPacket{}
	rdr := bytes.NewReader(recv.data)
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &hdr))
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &pkt))
	assert.Equal(t, uint8(TypeReading), hdr.Type)
	assert.Equal(t, newReadingPacket(reading), pkt)

	decoded, err := comms.DecodeData(pkt.Payload)
	assert.NoError(t, err)
	assert.Equal(t, reading.Reading, decoded)

	recv = <-dataChan
	assert.Equal(t, 2, recv.len)
	assert.Equal(t, []byte{TypeState, uint8(statemachine.Levitating)}, recv.data[:recv.len])
}

func TestUDPForwarderSkipsWhenFull(t *testing.T) {
	udp := &UDPForwarder{fwdChan: make(chan packet, 1)}
	udp.ForwardState(statemachine.Idle)
	udp.ForwardState(statemachine.Calibrate)
	p := <-udp.fwdChan
	assert.Equal(t, newStatePacket(statemachine.Idle), p.body)
}
